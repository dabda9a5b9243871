package schema

import (
	"fmt"
	"regexp"

	"dtindex/internal/dataset"
)

// RuleKind orders rules across roles: every Exact rule of every role runs
// before any Heuristic rule.
type RuleKind int

const (
	Exact RuleKind = iota
	Heuristic
)

// Rule accepts or rejects a column for a role. Match must be pure.
type Rule struct {
	Name  string
	Kind  RuleKind
	Match func(col *dataset.Column) bool
}

// RuleSet is the ranked rule list of one role.
type RuleSet struct {
	Role  Role
	Rules []Rule
}

// Candidate column names per role, highest priority first.
var (
	IdentifierNames = []string{"股票代码", "证券代码", "代码", "stock_code", "code"}
	PeriodNames     = []string{"年份", "年度", "year", "Year"}
	MetricNames     = []string{"数字化转型指数", "转型指数", "数字化指数", "指数", "digital_index", "index"}
	GroupNames      = []string{"行业代码", "industry_code", "group"}
	GroupNameNames  = []string{"行业名称", "industry_name", "group_name"}
	DisplayNames    = []string{"企业名称", "公司名称", "证券简称", "company_name", "name"}
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// NameIs matches a column with exactly this name.
func NameIs(name string) Rule {
	return Rule{
		Name: fmt.Sprintf("name=%q", name),
		Kind: Exact,
		Match: func(col *dataset.Column) bool {
			return col.Name() == name
		},
	}
}

// NamedAny expands a candidate list into ranked NameIs rules.
func NamedAny(names ...string) []Rule {
	rules := make([]Rule, len(names))
	for i, n := range names {
		rules[i] = NameIs(n)
	}
	return rules
}

// TextMatching matches a text column with at least one value matching re.
func TextMatching(label string, re *regexp.Regexp) Rule {
	return Rule{
		Name: "text:" + label,
		Kind: Heuristic,
		Match: func(col *dataset.Column) bool {
			if col.Type() != dataset.TypeText {
				return false
			}
			for _, c := range col.Cells() {
				if !c.Missing() && re.MatchString(c.Text) {
					return true
				}
			}
			return false
		},
	}
}

// NumericWithin matches a numeric column with at least one value in [lo, hi].
func NumericWithin(lo, hi float64) Rule {
	return Rule{
		Name: fmt.Sprintf("numeric:%g-%g", lo, hi),
		Kind: Heuristic,
		Match: func(col *dataset.Column) bool {
			if !col.Type().Numeric() {
				return false
			}
			for _, c := range col.Cells() {
				if c.Numeric && c.Num >= lo && c.Num <= hi {
					return true
				}
			}
			return false
		},
	}
}

// AnyNumeric matches any numeric column.
func AnyNumeric() Rule {
	return Rule{
		Name: "numeric",
		Kind: Heuristic,
		Match: func(col *dataset.Column) bool {
			return col.Type().Numeric()
		},
	}
}

// PeriodBounds is the plausible calendar-year window for the period heuristic.
type PeriodBounds struct {
	Min int
	Max int
}

// DefaultPeriodBounds covers 2000 to 2100.
var DefaultPeriodBounds = PeriodBounds{Min: 2000, Max: 2100}

// DefaultRules returns the rule sets used when nothing else is configured.
func DefaultRules(bounds PeriodBounds) []RuleSet {
	return []RuleSet{
		{Role: RoleIdentifier, Rules: append(NamedAny(IdentifierNames...), TextMatching("code", codePattern))},
		{Role: RolePeriod, Rules: append(NamedAny(PeriodNames...), NumericWithin(float64(bounds.Min), float64(bounds.Max)))},
		{Role: RoleMetric, Rules: append(NamedAny(MetricNames...), AnyNumeric())},
		{Role: RoleGroup, Rules: NamedAny(GroupNames...)},
		{Role: RoleGroupName, Rules: NamedAny(GroupNameNames...)},
		{Role: RoleName, Rules: NamedAny(DisplayNames...)},
	}
}
