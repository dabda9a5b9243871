package schema

import (
	"errors"
	"fmt"
	"strings"

	"dtindex/internal/dataset"
)

// Role is the part a column plays in queries.
type Role string

const (
	RoleIdentifier Role = "identifier"
	RolePeriod     Role = "period"
	RoleMetric     Role = "metric"
	RoleGroup      Role = "group"
	RoleGroupName  Role = "group_name"
	RoleName       Role = "name"
)

// RequiredRoles must all resolve for a table to be queryable.
var RequiredRoles = []Role{RoleIdentifier, RolePeriod, RoleMetric}

// AllRoles lists every role in resolution order.
var AllRoles = []Role{RoleIdentifier, RolePeriod, RoleMetric, RoleGroup, RoleGroupName, RoleName}

// Required reports whether the role must resolve.
func (r Role) Required() bool {
	for _, req := range RequiredRoles {
		if r == req {
			return true
		}
	}
	return false
}

// Roles maps roles to column names. Optional roles may be empty. A Roles
// value is replaced as a whole, never edited in place.
type Roles struct {
	Identifier string `json:"identifier" yaml:"identifier" validate:"required"`
	Period     string `json:"period" yaml:"period" validate:"required"`
	Metric     string `json:"metric" yaml:"metric" validate:"required"`
	Group      string `json:"group,omitempty" yaml:"group"`
	GroupName  string `json:"group_name,omitempty" yaml:"group_name"`
	Name       string `json:"name,omitempty" yaml:"name"`
}

// Column returns the column bound to role, or "".
func (r Roles) Column(role Role) string {
	switch role {
	case RoleIdentifier:
		return r.Identifier
	case RolePeriod:
		return r.Period
	case RoleMetric:
		return r.Metric
	case RoleGroup:
		return r.Group
	case RoleGroupName:
		return r.GroupName
	case RoleName:
		return r.Name
	}
	return ""
}

func (r *Roles) set(role Role, column string) {
	switch role {
	case RoleIdentifier:
		r.Identifier = column
	case RolePeriod:
		r.Period = column
	case RoleMetric:
		r.Metric = column
	case RoleGroup:
		r.Group = column
	case RoleGroupName:
		r.GroupName = column
	case RoleName:
		r.Name = column
	}
}

// Complete reports whether every required role is bound.
func (r Roles) Complete() bool {
	return r.Identifier != "" && r.Period != "" && r.Metric != ""
}

// IsZero reports whether no role is bound.
func (r Roles) IsZero() bool {
	return r == Roles{}
}

var (
	// ErrUnresolved classifies every UnresolvedError.
	ErrUnresolved = errors.New("schema roles could not be inferred")
	// ErrUnknownColumn is returned by Override for a mapping that names an
	// absent column or binds one column to two required roles.
	ErrUnknownColumn = errors.New("column mapping rejected")
)

// UnresolvedError lists the required roles no rule could fill together
// with the table's columns, which is what a user needs to map them by hand.
type UnresolvedError struct {
	Missing []Role               `json:"missing_roles"`
	Columns []dataset.ColumnInfo `json:"columns"`
	// Partial holds whatever did resolve.
	Partial Roles `json:"partial"`
	// Cause is the mapping failure behind a configured binding, if any.
	Cause error `json:"-"`
}

func (e *UnresolvedError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		missing[i] = string(r)
	}
	msg := fmt.Sprintf("%s: no column found for %s", ErrUnresolved, strings.Join(missing, ", "))
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

// Override validates an explicit mapping against the table and returns it
// unchanged. Named columns must exist and the required roles must name
// distinct columns.
func Override(t *dataset.Table, mapping Roles) (Roles, error) {
	for _, role := range AllRoles {
		if err := checkRole(t, mapping, role); err != nil {
			return Roles{}, err
		}
	}
	return mapping, nil
}

// Unbound describes a mapping Override rejected as an *UnresolvedError, so
// a binding fixed at load time marks the dataset unusable instead of
// failing each query. Missing lists every role the mapping cannot fill.
func Unbound(t *dataset.Table, mapping Roles, cause error) *UnresolvedError {
	e := &UnresolvedError{Columns: t.Schema(), Cause: cause}
	for _, role := range AllRoles {
		if checkRole(t, mapping, role) != nil {
			e.Missing = append(e.Missing, role)
			continue
		}
		e.Partial.set(role, mapping.Column(role))
	}
	return e
}

func checkRole(t *dataset.Table, mapping Roles, role Role) error {
	col := mapping.Column(role)
	switch {
	case col == "":
		if role.Required() {
			return fmt.Errorf("%w: no column given for %s", ErrUnknownColumn, role)
		}
	case !t.Has(col):
		return fmt.Errorf("%w: %s column %q not in table", ErrUnknownColumn, role, col)
	case role.Required():
		for _, other := range RequiredRoles {
			if other == role {
				break
			}
			if mapping.Column(other) == col {
				return fmt.Errorf("%w: column %q given for both %s and %s", ErrUnknownColumn, col, other, role)
			}
		}
	}
	return nil
}
