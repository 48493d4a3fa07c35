package selection

import (
	"slices"
	"testing"

	"github.com/sanonone/pageselect/pkg/core/types"
)

func TestPredicateMatches(t *testing.T) {
	page := &types.Page{UID: 7, PID: 3, DokType: types.DokTypeShortcut, NavHide: 1}

	testCases := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"uid hit", NewPredicate(IncludeByIdentifier, []uint32{1, 7}), true},
		{"uid miss", NewPredicate(IncludeByIdentifier, []uint32{1}), false},
		{"pid hit", NewPredicate(IncludeByParent, []uint32{3}), true},
		{"exclude hit", NewPredicate(ExcludeByIdentifier, []uint32{7}), false},
		{"exclude miss", NewPredicate(ExcludeByIdentifier, []uint32{8}), true},
		{"doktype", NewPredicate(IncludeByCategory, []uint32{types.DokTypeShortcut}), true},
		{"nav visible only", NewPredicate(NavigationVisibility, []uint32{0}), false},
		{"nav any", NewPredicate(NavigationVisibility, []uint32{0, 1}), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pred.Matches(page); got != tc.want {
				t.Errorf("%s: Matches = %v, want %v", tc.pred, got, tc.want)
			}
		})
	}
}

func TestNewPredicateDedups(t *testing.T) {
	p := NewPredicate(IncludeByIdentifier, []uint32{4, 4, 2, 4})
	if !slices.Equal(p.Values, []uint32{4, 2}) {
		t.Errorf("Values = %v", p.Values)
	}
}

func TestFilterString(t *testing.T) {
	var cs ConstraintSet
	if got := cs.Compose().String(); got != "*" {
		t.Errorf("empty filter = %q", got)
	}

	cs.Add(NewPredicate(IncludeByIdentifier, []uint32{5, 7, 9}))
	cs.Add(NewPredicate(ExcludeByIdentifier, []uint32{6}))
	cs.Add(NewPredicate(NavigationVisibility, []uint32{0}))

	want := "uid IN (5,7,9) AND NOT uid IN (6) AND nav_hide IN (0)"
	if got := cs.Compose().String(); got != want {
		t.Errorf("filter = %q, want %q", got, want)
	}
}

func TestConstraintSetComposeIsDetached(t *testing.T) {
	var cs ConstraintSet
	cs.Add(NewPredicate(IncludeByParent, []uint32{1}))
	f := cs.Compose()

	cs.Reset()
	if !cs.IsEmpty() || cs.Len() != 0 {
		t.Fatal("Reset left predicates behind")
	}
	if len(f.Predicates) != 1 {
		t.Errorf("composed filter lost its predicates after Reset")
	}
}

func TestKindString(t *testing.T) {
	if IncludeByParent.String() != "include_pid" {
		t.Errorf("IncludeByParent = %q", IncludeByParent.String())
	}
	if Kind(42).String() != "kind(42)" {
		t.Errorf("unknown kind = %q", Kind(42).String())
	}
}
