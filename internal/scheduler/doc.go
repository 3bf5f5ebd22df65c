// Package scheduler shapes play traffic into waves, a held concurrency level,
// or a single burst, and coordinates graceful shutdown.
//
// Every policy is built on one supervised task set: the scheduler's
// coordinating goroutine is the only launcher, each attempt runs in its own
// goroutine, and the set tracks how many are in flight.
//
// # Policies
//
//   - [PolicyWave]: W sequential waves of U attempts. Wave k+1 never starts
//     before every attempt of wave k has returned.
//   - [PolicyContinuous]: hold C attempts in flight for a duration D,
//     launching replacements as attempts finish.
//   - [PolicyStress]: launch T attempts back to back, then wait for all.
//
// # Cancellation
//
// Cancelling the context passed to [Scheduler.Run] stops new launches. The
// scheduler then waits up to Options.DrainTimeout for in-flight attempts and
// returns; attempts still running are abandoned but keep their own timeout
// and still report into the stats aggregator when they finish.
//
// # Eligibility
//
// Each launch targets a random game from the [Eligibility] source. An empty
// eligible set ends the run early with [StopNoEligibleGames].
package scheduler
