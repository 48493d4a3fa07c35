package selection

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sanonone/pageselect/pkg/core/types"
)

// Field names a page column a predicate tests.
type Field string

const (
	FieldUID     Field = "uid"
	FieldPID     Field = "pid"
	FieldDokType Field = "doktype"
	FieldNavHide Field = "nav_hide"
)

// Kind enumerates the supported predicates.
type Kind int

const (
	// IncludeByIdentifier keeps pages whose uid is in the set.
	IncludeByIdentifier Kind = iota
	// IncludeByParent keeps pages whose pid is in the set.
	IncludeByParent
	// ExcludeByIdentifier removes pages whose uid is in the set.
	ExcludeByIdentifier
	// IncludeByCategory keeps pages whose doktype is in the set.
	IncludeByCategory
	// NavigationVisibility keeps pages whose nav_hide flag is in the set.
	NavigationVisibility
)

var kindNames = [...]string{
	IncludeByIdentifier:  "include_uid",
	IncludeByParent:      "include_pid",
	ExcludeByIdentifier:  "exclude_uid",
	IncludeByCategory:    "doktype",
	NavigationVisibility: "nav_hide",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Predicate is a single set-membership rule over one page column.
// Values is always de-duplicated.
type Predicate struct {
	Kind   Kind
	Values []uint32
}

// NewPredicate builds a predicate over a de-duplicated copy of values.
func NewPredicate(kind Kind, values []uint32) Predicate {
	return Predicate{Kind: kind, Values: dedupIDs(values)}
}

// Field returns the column the predicate reads.
func (p Predicate) Field() Field {
	switch p.Kind {
	case IncludeByParent:
		return FieldPID
	case IncludeByCategory:
		return FieldDokType
	case NavigationVisibility:
		return FieldNavHide
	default:
		return FieldUID
	}
}

// Negated reports whether the predicate removes matching pages instead of keeping them.
func (p Predicate) Negated() bool {
	return p.Kind == ExcludeByIdentifier
}

// Matches evaluates the predicate against a single page.
func (p Predicate) Matches(page *types.Page) bool {
	var v uint32
	switch p.Field() {
	case FieldPID:
		v = page.PID
	case FieldDokType:
		v = page.DokType
	case FieldNavHide:
		v = page.NavHide
	default:
		v = page.UID
	}
	in := slices.Contains(p.Values, v)
	if p.Negated() {
		return !in
	}
	return in
}

// String renders the predicate in the filter syntax, e.g. "NOT uid IN (3,4)".
func (p Predicate) String() string {
	expr := fmt.Sprintf("%s IN (%s)", p.Field(), FormatIDList(p.Values))
	if p.Negated() {
		return "NOT " + expr
	}
	return expr
}

// Filter is the conjunction of its predicates. A filter without predicates
// matches every page.
type Filter struct {
	Predicates []Predicate
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// Matches reports whether page satisfies every predicate.
func (f Filter) Matches(page *types.Page) bool {
	for _, p := range f.Predicates {
		if !p.Matches(page) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "*"
	}
	parts := make([]string, len(f.Predicates))
	for i, p := range f.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

// ConstraintSet accumulates predicates for one query round.
type ConstraintSet struct {
	predicates []Predicate
}

// Add appends p unconditionally.
func (cs *ConstraintSet) Add(p Predicate) {
	cs.predicates = append(cs.predicates, p)
}

// IsEmpty reports whether no predicate has been added since the last Reset.
func (cs *ConstraintSet) IsEmpty() bool {
	return len(cs.predicates) == 0
}

// Len returns the number of accumulated predicates.
func (cs *ConstraintSet) Len() int {
	return len(cs.predicates)
}

// Compose returns the AND of all predicates in insertion order.
// The returned filter does not share memory with the set.
func (cs *ConstraintSet) Compose() Filter {
	return Filter{Predicates: slices.Clone(cs.predicates)}
}

// Reset drops every predicate.
func (cs *ConstraintSet) Reset() {
	cs.predicates = nil
}
