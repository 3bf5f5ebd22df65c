// Package budget tracks per-(game, brand) promotional budgets across a run and
// reconciles them against the remaining balances held in an external store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrStoreUnavailable marks a reconciliation that could not reach the store.
var ErrStoreUnavailable = errors.New("budget store unavailable")

// ErrMissingKey is returned by RequirePresent when the store has no balance.
var ErrMissingKey = errors.New("budget key missing from store")

// Key derives the store key holding the remaining budget for a pair.
func Key(gameID, brandID string) string {
	return fmt.Sprintf("budget:game:%s:brand:%s", gameID, brandID)
}

// Store reads remaining budgets. The returned map holds only keys that exist;
// a value that cannot be parsed as an integer is an error for the whole batch.
type Store interface {
	Remaining(ctx context.Context, keys []string) (map[string]int64, error)
}

// MissingKeyPolicy decides the final budget for a pair whose key is absent.
type MissingKeyPolicy func(gameID, brandID string, initial int64) (int64, error)

// AssumeExhausted treats an absent key as fully consumed. The platform is
// expected to drop the key once a brand's budget runs out, but that is not
// a confirmed contract, so a missing key may also mean it was never written.
func AssumeExhausted(string, string, int64) (int64, error) { return 0, nil }

// RequirePresent fails reconciliation when any key is absent.
func RequirePresent(gameID, brandID string, _ int64) (int64, error) {
	return 0, fmt.Errorf("%w: %s", ErrMissingKey, Key(gameID, brandID))
}

// Record is one tracked (game, brand) budget. Final is nil until reconciled.
type Record struct {
	GameID    string
	BrandID   string
	GameName  string
	BrandName string
	Initial   int64
	Final     *int64
}

type pair struct {
	game  string
	brand string
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	records    map[pair]*Record
	gameNames  map[string]string
	brandNames map[string]string
	missing    MissingKeyPolicy
}

type LedgerOption func(*Ledger)

// WithMissingKeyPolicy swaps the default AssumeExhausted policy.
func WithMissingKeyPolicy(p MissingKeyPolicy) LedgerOption {
	return func(l *Ledger) {
		if p != nil {
			l.missing = p
		}
	}
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		records:    make(map[pair]*Record),
		gameNames:  make(map[string]string),
		brandNames: make(map[string]string),
		missing:    AssumeExhausted,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores the initial budget for a pair. Recording a pair twice keeps
// the last value, clears any reconciled final, and reports replaced=true.
func (l *Ledger) Record(gameID, brandID string, initial int64) (replaced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := pair{gameID, brandID}
	_, replaced = l.records[k]
	l.records[k] = &Record{GameID: gameID, BrandID: brandID, Initial: initial}
	return replaced
}

// NameGame attaches a display name to a game. Names survive re-recording and
// a blank name is ignored.
func (l *Ledger) NameGame(gameID, name string) {
	if name == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gameNames[gameID] = name
}

// NameBrand attaches a display name to a brand. A blank name is ignored.
func (l *Ledger) NameBrand(brandID, name string) {
	if name == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.brandNames[brandID] = name
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// GameIDs lists the distinct games with at least one record, sorted.
func (l *Ledger) GameIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(l.records))
	ids := make([]string, 0, len(l.records))
	for k := range l.records {
		if _, ok := seen[k.game]; ok {
			continue
		}
		seen[k.game] = struct{}{}
		ids = append(ids, k.game)
	}
	sort.Strings(ids)
	return ids
}

// Records returns copies of every record sorted by game then brand.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		cp := *r
		cp.GameName = l.gameNames[r.GameID]
		cp.BrandName = l.brandNames[r.BrandID]
		if r.Final != nil {
			v := *r.Final
			cp.Final = &v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].BrandID < out[j].BrandID
	})
	return out
}

// Reconcile fetches the final budget of every unreconciled record in one
// batch. On any error no record is updated. Finals that are already set are
// never overwritten.
func (l *Ledger) Reconcile(ctx context.Context, store Store) error {
	if store == nil {
		return fmt.Errorf("reconcile: %w: no store configured", ErrStoreUnavailable)
	}

	l.mu.Lock()
	pending := make(map[string]*Record)
	keys := make([]string, 0, len(l.records))
	for _, r := range l.records {
		if r.Final != nil {
			continue
		}
		key := Key(r.GameID, r.BrandID)
		pending[key] = r
		keys = append(keys, key)
	}
	l.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	remaining, err := store.Remaining(ctx, keys)
	if err != nil {
		return fmt.Errorf("reconcile %d budgets: %w", len(keys), err)
	}

	finals := make(map[string]int64, len(keys))
	for _, key := range keys {
		if v, ok := remaining[key]; ok {
			finals[key] = v
			continue
		}
		r := pending[key]
		v, err := l.missing(r.GameID, r.BrandID, r.Initial)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		finals[key] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, r := range pending {
		// Skip records replaced by Record while the fetch was in flight.
		if l.records[pair{r.GameID, r.BrandID}] != r || r.Final != nil {
			continue
		}
		v := finals[key]
		r.Final = &v
	}
	return nil
}

// Row is one line of the reconciliation report. Violation is set when more
// budget remains than was recorded initially.
type Row struct {
	GameID      string  `json:"game_id"`
	BrandID     string  `json:"brand_id"`
	GameName    string  `json:"game_name,omitempty"`
	BrandName   string  `json:"brand_name,omitempty"`
	Initial     int64   `json:"initial_budget"`
	Final       *int64  `json:"final_budget"`
	Consumed    int64   `json:"consumed"`
	ConsumedPct float64 `json:"consumed_pct"`
	Reconciled  bool    `json:"reconciled"`
	Violation   bool    `json:"violation"`
}

// Report summarizes the ledger. Rows are sorted by game then brand.
type Report struct {
	Rows          []Row `json:"rows"`
	Unreconciled  int   `json:"unreconciled"`
	Violations    int   `json:"violations"`
	TotalInitial  int64 `json:"total_initial"`
	TotalConsumed int64 `json:"total_consumed"`
}

// Complete reports whether every row has a final budget.
func (r Report) Complete() bool {
	return r.Unreconciled == 0
}

func (l *Ledger) Report() Report {
	records := l.Records()
	rep := Report{Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		row := Row{
			GameID:    rec.GameID,
			BrandID:   rec.BrandID,
			GameName:  rec.GameName,
			BrandName: rec.BrandName,
			Initial:   rec.Initial,
			Final:     rec.Final,
		}
		rep.TotalInitial += rec.Initial
		if rec.Final == nil {
			rep.Unreconciled++
			rep.Rows = append(rep.Rows, row)
			continue
		}
		row.Reconciled = true
		row.Consumed = rec.Initial - *rec.Final
		if rec.Initial != 0 {
			row.ConsumedPct = float64(row.Consumed) / float64(rec.Initial) * 100
		}
		if row.Consumed < 0 {
			row.Violation = true
			rep.Violations++
		}
		rep.TotalConsumed += row.Consumed
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}
