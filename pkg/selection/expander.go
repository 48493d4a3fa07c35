package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sanonone/pageselect/pkg/metrics"
)

// DefaultDepthCeiling is the largest recursion depth accepted when no ceiling is configured.
const DefaultDepthCeiling = 255

// ErrDepthOutOfRange is returned when a recursion window is negative or exceeds the ceiling.
var ErrDepthOutOfRange = errors.New("recursion depth out of range")

// DescendantFetcher lists the descendants of a page.
//
// FetchDescendants returns the uids found between startDepth and maxDepth
// levels below seed (children are level 1). The seed itself is level 0 and is
// only reported if the tree lists it as its own descendant.
type DescendantFetcher interface {
	FetchDescendants(seed uint32, maxDepth, startDepth int) ([]uint32, error)
}

// TreeExpander turns seed uids into the union of the seeds and their descendants.
// It holds no mutable state and is safe for concurrent use when the fetcher is.
type TreeExpander struct {
	fetcher DescendantFetcher
	ceiling int
}

// NewTreeExpander returns an expander over fetcher. A ceiling <= 0 selects DefaultDepthCeiling.
func NewTreeExpander(fetcher DescendantFetcher, ceiling int) *TreeExpander {
	if ceiling <= 0 {
		ceiling = DefaultDepthCeiling
	}
	return &TreeExpander{fetcher: fetcher, ceiling: ceiling}
}

// Ceiling returns the maximum accepted maxDepth.
func (te *TreeExpander) Ceiling() int {
	return te.ceiling
}

// Expand resolves seeds to the de-duplicated union of each seed's expansion.
//
// With maxDepth 0 the seeds are returned unchanged. With startDepth 0 every
// seed is placed before its own descendants. The fetcher is called once per
// seed and never for an empty seed list.
func (te *TreeExpander) Expand(seeds []uint32, startDepth, maxDepth int) ([]uint32, error) {
	if startDepth < 0 || maxDepth < 0 || maxDepth > te.ceiling {
		return nil, fmt.Errorf("%w: start=%d max=%d ceiling=%d", ErrDepthOutOfRange, startDepth, maxDepth, te.ceiling)
	}
	if maxDepth == 0 {
		return slices.Clone(seeds), nil
	}
	if len(seeds) == 0 {
		return []uint32{}, nil
	}

	result := make([]uint32, 0, len(seeds))
	seen := make(map[uint32]struct{}, len(seeds))
	add := func(id uint32) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}

	for _, seed := range seeds {
		descendants, err := te.fetcher.FetchDescendants(seed, maxDepth, startDepth)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch descendants of page %d: %w", seed, err)
		}
		if startDepth == 0 {
			add(seed)
		}
		for _, id := range descendants {
			add(id)
		}
	}

	metrics.ExpandedIDs.Observe(float64(len(result)))
	return result, nil
}
