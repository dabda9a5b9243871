package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"dtindex/internal/dataset"
)

// LookupKind says how a query string is matched.
type LookupKind string

const (
	ByAuto       LookupKind = "auto"
	ByIdentifier LookupKind = "id"
	ByName       LookupKind = "name"
)

// Query is an identifier or display name to resolve.
type Query struct {
	By    LookupKind
	Value string
}

// ByID is shorthand for an identifier query.
func ByID(id string) Query { return Query{By: ByIdentifier, Value: id} }

// ByDisplayName is shorthand for a display name query.
func ByDisplayName(name string) Query { return Query{By: ByName, Value: name} }

// EntityRef identifies one entity and the descriptive fields of its first
// row. It holds no metric data.
type EntityRef struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Group      string `json:"group,omitempty"`
	GroupName  string `json:"group_name,omitempty"`
}

// Label is "name (identifier)", or the bare identifier without a name.
func (r EntityRef) Label() string {
	if r.Name == "" {
		return r.Identifier
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.Identifier)
}

// FindEntity resolves q to at most one entity. Identifier input is checked
// against the fixed-width format before any lookup. When several rows share
// a display name the first row wins.
func (e *Engine) FindEntity(q Query) (EntityRef, error) {
	value := strings.TrimSpace(q.Value)
	if value == "" {
		return EntityRef{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}

	switch q.By {
	case ByIdentifier:
		return e.findByIdentifier(value)
	case ByName:
		return e.findByName(value)
	case ByAuto, "":
		if digitsOnly(value) {
			return e.findByIdentifier(value)
		}
		ref, err := e.findByName(value)
		if errors.Is(err, ErrNotFound) && e.idPattern == nil {
			return e.findByIdentifier(value)
		}
		return ref, err
	default:
		return EntityRef{}, fmt.Errorf("unknown lookup kind %q", q.By)
	}
}

// ValidateIdentifier checks identifier input against the fixed-width format.
func (e *Engine) ValidateIdentifier(id string) error {
	if e.idPattern != nil && !e.idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be exactly %d digits", ErrInvalidIdentifierFormat, id, e.opts.IdentifierWidth)
	}
	return nil
}

func (e *Engine) findByIdentifier(id string) (EntityRef, error) {
	if err := e.ValidateIdentifier(id); err != nil {
		return EntityRef{}, err
	}
	for row := range e.table.Where(e.roles.Identifier, func(c dataset.Cell) bool { return c.Text == id }) {
		return e.entityAt(row), nil
	}
	return EntityRef{}, fmt.Errorf("%w: identifier %q", ErrNotFound, id)
}

func (e *Engine) findByName(name string) (EntityRef, error) {
	if e.name == nil {
		return EntityRef{}, fmt.Errorf("%w: dataset has no display name column to search for %q", ErrNotFound, name)
	}
	for row := range e.table.Where(e.roles.Name, func(c dataset.Cell) bool { return c.Text == name }) {
		return e.entityAt(row), nil
	}
	return EntityRef{}, fmt.Errorf("%w: name %q", ErrNotFound, name)
}

// entityAt describes the entity of row. Name and group come from the
// first of its rows that carries them.
func (e *Engine) entityAt(row int) EntityRef {
	ref := EntityRef{Identifier: e.identifierAt(row)}
	for r := range e.table.Where(e.roles.Identifier, func(c dataset.Cell) bool { return c.Text == ref.Identifier }) {
		if ref.Name == "" {
			ref.Name = textOf(e.name, r)
		}
		if ref.Group == "" {
			ref.Group = textOf(e.group, r)
			ref.GroupName = textOf(e.groupName, r)
		}
		if ref.Name != "" && (ref.Group != "" || e.group == nil) {
			break
		}
	}
	return ref
}

// ListEntities returns each distinct entity sorted by identifier. A non-empty
// group keeps only that group's entities.
func (e *Engine) ListEntities(group string) []EntityRef {
	group = strings.TrimSpace(group)
	byID := make(map[string]*EntityRef)
	for row := range e.table.Rows() {
		id := e.identifierAt(row)
		ref, ok := byID[id]
		if !ok {
			ref = &EntityRef{Identifier: id}
			byID[id] = ref
		}
		if ref.Name == "" {
			ref.Name = textOf(e.name, row)
		}
		if ref.Group == "" {
			ref.Group = textOf(e.group, row)
			ref.GroupName = textOf(e.groupName, row)
		}
	}

	refs := make([]EntityRef, 0, len(byID))
	for _, ref := range byID {
		if group != "" && ref.Group != group {
			continue
		}
		refs = append(refs, *ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Identifier < refs[j].Identifier })
	return refs
}

// CrossGroupGuard reports whether a and b may be compared: both must carry
// the same, non-empty group.
func CrossGroupGuard(a, b EntityRef) bool {
	return a.Group != "" && a.Group == b.Group
}

// RequireSameGroup turns a failed CrossGroupGuard into ErrGroupMismatch.
func RequireSameGroup(a, b EntityRef) error {
	if CrossGroupGuard(a, b) {
		return nil
	}
	return fmt.Errorf("%w: %s is in %q, %s is in %q",
		ErrGroupMismatch, a.Label(), a.groupLabel(), b.Label(), b.groupLabel())
}

func (r EntityRef) groupLabel() string {
	switch {
	case r.GroupName != "":
		return r.GroupName
	case r.Group != "":
		return r.Group
	default:
		return "no group"
	}
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
