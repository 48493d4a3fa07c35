package selection

import (
	"github.com/sanonone/pageselect/pkg/core/types"
)

// fakeStore is an in-memory Store that evaluates filters with Filter.Matches
// and lists descendants purely by depth, without remembering visited pages.
type fakeStore struct {
	pages    []*types.Page
	children map[uint32][]uint32

	fetchCalls []uint32
	fetchErr   error
	execErr    error
}

func newFakeStore(pages ...types.Page) *fakeStore {
	fs := &fakeStore{children: make(map[uint32][]uint32)}
	for _, p := range pages {
		page := p
		fs.pages = append(fs.pages, &page)
		fs.children[page.PID] = append(fs.children[page.PID], page.UID)
	}
	return fs
}

// flatPages returns pages 1..n below the root.
func flatPages(n uint32) []types.Page {
	pages := make([]types.Page, 0, n)
	for uid := uint32(1); uid <= n; uid++ {
		pages = append(pages, types.Page{UID: uid, DokType: types.DokTypeDefault})
	}
	return pages
}

func (fs *fakeStore) FetchDescendants(seed uint32, maxDepth, startDepth int) ([]uint32, error) {
	fs.fetchCalls = append(fs.fetchCalls, seed)
	if fs.fetchErr != nil {
		return nil, fs.fetchErr
	}
	var out []uint32
	frontier := []uint32{seed}
	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		var next []uint32
		for _, id := range frontier {
			for _, child := range fs.children[id] {
				if level >= startDepth {
					out = append(out, child)
				}
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out, nil
}

func (fs *fakeStore) ExecuteFilter(f Filter) ([]*types.Page, error) {
	if fs.execErr != nil {
		return nil, fs.execErr
	}
	var out []*types.Page
	for _, p := range fs.pages {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
