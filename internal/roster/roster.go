// Package roster loads the demo data file that lists the users to drive and,
// optionally, the initial budgets to reconcile.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/frolic/frolicsim/internal/budget"
)

// ErrNoUsers is returned when neither the file nor the flags name a user.
var ErrNoUsers = errors.New("roster: no user ids")

// Roster is the decoded demo data file. JSON files parse as YAML.
type Roster struct {
	UserIDs []string     `yaml:"user_ids"`
	Budgets []BudgetSeed `yaml:"budgets"`
}

type BudgetSeed struct {
	GameID        string `yaml:"game_id"`
	BrandID       string `yaml:"brand_id"`
	GameName      string `yaml:"game_name"`
	BrandName     string `yaml:"brand_name"`
	InitialBudget int64  `yaml:"initial_budget"`
}

// Load reads path. An empty path returns an empty roster.
func Load(path string) (*Roster, error) {
	r := &Roster{}
	if strings.TrimSpace(path) == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	for i, b := range r.Budgets {
		if strings.TrimSpace(b.GameID) == "" || strings.TrimSpace(b.BrandID) == "" {
			return nil, fmt.Errorf("parse roster %s: budget %d needs game_id and brand_id", path, i)
		}
		if b.InitialBudget < 0 {
			return nil, fmt.Errorf("parse roster %s: budget %d has negative initial_budget", path, i)
		}
	}
	return r, nil
}

// Users merges extra ids into the file's ids, dropping blanks and duplicates
// while keeping first-seen order.
func (r *Roster) Users(extra ...string) ([]string, error) {
	seen := make(map[string]struct{}, len(r.UserIDs)+len(extra))
	out := make([]string, 0, len(r.UserIDs)+len(extra))
	for _, list := range [][]string{r.UserIDs, extra} {
		for _, id := range list {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoUsers
	}
	return out, nil
}

// Seed records every budget in the file into ledger, along with any game and
// brand names, and returns the ids of pairs that were recorded more than once.
func (r *Roster) Seed(ledger *budget.Ledger) []string {
	var dups []string
	for _, b := range r.Budgets {
		ledger.NameGame(b.GameID, strings.TrimSpace(b.GameName))
		ledger.NameBrand(b.BrandID, strings.TrimSpace(b.BrandName))
		if ledger.Record(b.GameID, b.BrandID, b.InitialBudget) {
			dups = append(dups, budget.Key(b.GameID, b.BrandID))
		}
	}
	return dups
}
