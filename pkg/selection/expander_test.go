package selection

import (
	"errors"
	"slices"
	"testing"

	"github.com/sanonone/pageselect/pkg/core/types"
)

// scenarioTree: 5 -> {6, 7}, 9 has no children, 1 and 2 are unrelated.
func scenarioTree() *fakeStore {
	return newFakeStore(
		types.Page{UID: 1},
		types.Page{UID: 2},
		types.Page{UID: 5},
		types.Page{UID: 6, PID: 5},
		types.Page{UID: 7, PID: 5},
		types.Page{UID: 9},
	)
}

func TestExpandIdentityAtDepthZero(t *testing.T) {
	store := scenarioTree()
	te := NewTreeExpander(store, 0)

	for _, seeds := range [][]uint32{{}, {5}, {9, 5}, {1, 2, 5, 9}} {
		for _, start := range []int{0, 1, 3} {
			got, err := te.Expand(seeds, start, 0)
			if err != nil {
				t.Fatalf("Expand(%v, %d, 0) failed: %v", seeds, start, err)
			}
			if !slices.Equal(got, seeds) {
				t.Errorf("Expand(%v, %d, 0) = %v, want seeds unchanged", seeds, start, got)
			}
		}
	}
	if len(store.fetchCalls) != 0 {
		t.Errorf("store was called %d times for maxDepth 0", len(store.fetchCalls))
	}
}

func TestExpandEmptySeeds(t *testing.T) {
	store := scenarioTree()
	got, err := NewTreeExpander(store, 0).Expand(nil, 0, 255)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if len(store.fetchCalls) != 0 {
		t.Errorf("store must not be called for empty seeds")
	}
}

func TestExpandScenario(t *testing.T) {
	store := scenarioTree()
	got, err := NewTreeExpander(store, 0).Expand([]uint32{5, 9}, 0, 255)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{5, 6, 7, 9}
	if !slices.Equal(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
	if !slices.Equal(store.fetchCalls, []uint32{5, 9}) {
		t.Errorf("expected one fetch per seed, got %v", store.fetchCalls)
	}
}

func TestExpandStartDepth(t *testing.T) {
	store := newFakeStore(
		types.Page{UID: 1},
		types.Page{UID: 2, PID: 1},
		types.Page{UID: 3, PID: 2},
		types.Page{UID: 4, PID: 3},
	)
	te := NewTreeExpander(store, 0)

	got, err := te.Expand([]uint32{1}, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []uint32{1, 2, 3}) {
		t.Errorf("start 0, max 2: got %v", got)
	}

	got, err = te.Expand([]uint32{1}, 1, 255)
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(got, 1) {
		t.Errorf("seed must not be included with startDepth 1: %v", got)
	}
	if !slices.Equal(got, []uint32{2, 3, 4}) {
		t.Errorf("start 1: got %v", got)
	}

	got, err = te.Expand([]uint32{1}, 2, 255)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []uint32{3, 4}) {
		t.Errorf("start 2: got %v", got)
	}
}

func TestExpandSelfChildIsBoundedByDepth(t *testing.T) {
	// Page 4 lists itself as its own child.
	store := newFakeStore(types.Page{UID: 4, PID: 4})
	te := NewTreeExpander(store, 0)

	got, err := te.Expand([]uint32{4}, 1, 255)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []uint32{4}) {
		t.Errorf("self-child should be reported once, got %v", got)
	}
}

func TestExpandDepthOutOfRange(t *testing.T) {
	te := NewTreeExpander(scenarioTree(), 10)
	cases := []struct{ start, max int }{{-1, 3}, {0, -1}, {0, 11}}
	for _, c := range cases {
		if _, err := te.Expand([]uint32{5}, c.start, c.max); !errors.Is(err, ErrDepthOutOfRange) {
			t.Errorf("Expand(start=%d, max=%d) err = %v, want ErrDepthOutOfRange", c.start, c.max, err)
		}
	}
	if te.Ceiling() != 10 {
		t.Errorf("Ceiling = %d", te.Ceiling())
	}
	if NewTreeExpander(scenarioTree(), 0).Ceiling() != DefaultDepthCeiling {
		t.Error("zero ceiling should fall back to the default")
	}
}

func TestExpandPropagatesStoreError(t *testing.T) {
	boom := errors.New("tree unavailable")
	store := scenarioTree()
	store.fetchErr = boom

	_, err := NewTreeExpander(store, 0).Expand([]uint32{5}, 0, 3)
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
