// Package stats aggregates attempt outcomes across concurrent executors.
//
// Every logical update (a submission, a settled result, an unresolved poll)
// happens under one lock, so a Snapshot never observes a torn state such as
// winners exceeding resultsChecked.
package stats
