package schema

import (
	"log/slog"

	"dtindex/internal/dataset"
)

// Match records which rule claimed a column.
type Match struct {
	Column string `json:"column"`
	Rule   string `json:"rule"`
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Roles   Roles          `json:"roles"`
	Matches map[Role]Match `json:"matches"`
}

// Resolver applies ranked rule sets to tables.
type Resolver struct {
	sets   []RuleSet
	logger *slog.Logger
}

// NewResolver builds a resolver. Rule sets are evaluated in the given order
// within each rule kind.
func NewResolver(logger *slog.Logger, sets ...RuleSet) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sets: sets, logger: logger}
}

// Resolve infers column roles for t. It returns an *UnresolvedError when a
// required role has no column.
func (r *Resolver) Resolve(t *dataset.Table) (Resolution, error) {
	res := Resolution{Matches: make(map[Role]Match)}
	claimed := make(map[string]bool)

	for _, kind := range []RuleKind{Exact, Heuristic} {
		for _, set := range r.sets {
			if _, done := res.Matches[set.Role]; done {
				continue
			}
			if m, ok := firstMatch(t, set.Rules, kind, claimed); ok {
				claimed[m.Column] = true
				res.Matches[set.Role] = m
				res.Roles.set(set.Role, m.Column)
				r.logger.Debug("Column role resolved",
					slog.String("role", string(set.Role)),
					slog.String("column", m.Column),
					slog.String("rule", m.Rule))
			}
		}
	}

	var missing []Role
	for _, role := range RequiredRoles {
		if res.Roles.Column(role) == "" {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		r.logger.Warn("Column roles unresolved",
			slog.String("source", t.Source()),
			slog.Any("missing_roles", missing))
		return Resolution{}, &UnresolvedError{Missing: missing, Columns: t.Schema(), Partial: res.Roles}
	}
	return res, nil
}

// firstMatch walks rules in rank order and, for each, the table in column
// order. The first unclaimed column accepted wins.
func firstMatch(t *dataset.Table, rules []Rule, kind RuleKind, claimed map[string]bool) (Match, bool) {
	for _, rule := range rules {
		if rule.Kind != kind {
			continue
		}
		for i := 0; i < t.Width(); i++ {
			col := t.ColumnAt(i)
			if claimed[col.Name()] {
				continue
			}
			if rule.Match(col) {
				return Match{Column: col.Name(), Rule: rule.Name}, true
			}
		}
	}
	return Match{}, false
}
