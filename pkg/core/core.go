// Package core provides the in-memory page tree of pageselect.
//
// This file defines the DB struct, which holds all pages together with the
// secondary indexes used to answer selection filters: a parent index
// (pid -> children), inverted indexes for doktype and nav_hide, and a B-Tree
// that fixes the order in which results are returned. It also implements
// snapshotting, descendant listing and filter execution.
package core

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tidwall/btree"

	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/selection"
)

var (
	// ErrPageNotFound is returned when a uid is not in the tree.
	ErrPageNotFound = errors.New("page not found")
	// ErrInvalidPage is returned when a page cannot be stored (uid 0).
	ErrInvalidPage = errors.New("invalid page")
)

// Order selects the order in which ExecuteFilter returns pages.
type Order int

const (
	// OrderByUID returns pages by ascending uid.
	OrderByUID Order = iota
	// OrderByNewest returns the most recently changed pages first (tstamp
	// descending, uid ascending as tie-breaker).
	OrderByNewest
)

// ParseOrder maps "uid" and "newest" to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "uid":
		return OrderByUID, nil
	case "newest":
		return OrderByNewest, nil
	default:
		return OrderByUID, fmt.Errorf("unknown order %q (use uid or newest)", s)
	}
}

// Options configures a DB.
type Options struct {
	Order Order

	// IncludeHidden makes ExecuteFilter return pages with the hidden flag set.
	// Deleted pages are never returned.
	IncludeHidden bool
}

// orderItem is the B-Tree entry that fixes the result order.
type orderItem struct {
	Tstamp int64
	UID    uint32
}

// Snapshot is the complete serializable state of the page tree.
type Snapshot struct {
	Pages []types.Page
}

// DB is the in-memory page tree. It is safe for concurrent use.
type DB struct {
	mu    sync.RWMutex
	opts  Options
	pages map[uint32]*types.Page

	// children maps a parent uid to the set of its child uids,
	// e.g. children[1] = {2: {}, 5: {}} for pages 2 and 5 below page 1.
	children map[uint32]map[uint32]struct{}

	// Inverted indexes: value -> set of uids.
	byDokType map[uint32]map[uint32]struct{}
	byNavHide map[uint32]map[uint32]struct{}

	order *btree.BTreeG[orderItem]
}

// NewDB creates and returns a new, empty DB.
func NewDB(opts Options) *DB {
	less := uidLess
	if opts.Order == OrderByNewest {
		less = newestLess
	}
	return &DB{
		opts:      opts,
		pages:     make(map[uint32]*types.Page),
		children:  make(map[uint32]map[uint32]struct{}),
		byDokType: make(map[uint32]map[uint32]struct{}),
		byNavHide: make(map[uint32]map[uint32]struct{}),
		order:     btree.NewBTreeG[orderItem](less),
	}
}

func uidLess(a, b orderItem) bool {
	return a.UID < b.UID
}

// newestLess sorts by Tstamp descending, using UID as a tie-breaker to keep items distinct.
func newestLess(a, b orderItem) bool {
	if a.Tstamp != b.Tstamp {
		return a.Tstamp > b.Tstamp
	}
	return a.UID < b.UID
}

// Put inserts or replaces a page.
func (s *DB) Put(p types.Page) error {
	if p.UID == 0 {
		return fmt.Errorf("%w: uid must be positive", ErrInvalidPage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putUnlocked(p)
	return nil
}

func (s *DB) putUnlocked(p types.Page) {
	if old, ok := s.pages[p.UID]; ok {
		s.unindexUnlocked(old)
	}
	page := p
	s.pages[p.UID] = &page
	addToSet(s.children, page.PID, page.UID)
	addToSet(s.byDokType, page.DokType, page.UID)
	addToSet(s.byNavHide, page.NavHide, page.UID)
	s.order.Set(orderItem{Tstamp: page.Tstamp, UID: page.UID})
}

// Delete removes a page. Its children keep their pid and become unreachable
// from the root until they are moved or deleted.
func (s *DB) Delete(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.pages[uid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPageNotFound, uid)
	}
	s.unindexUnlocked(old)
	delete(s.pages, uid)
	return nil
}

func (s *DB) unindexUnlocked(p *types.Page) {
	removeFromSet(s.children, p.PID, p.UID)
	removeFromSet(s.byDokType, p.DokType, p.UID)
	removeFromSet(s.byNavHide, p.NavHide, p.UID)
	s.order.Delete(orderItem{Tstamp: p.Tstamp, UID: p.UID})
}

// Get returns a copy of the page with the given uid.
func (s *DB) Get(uid uint32) (types.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[uid]
	if !ok {
		return types.Page{}, false
	}
	return *p, true
}

// Len returns the number of stored pages, deleted ones included.
func (s *DB) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// All returns copies of all pages sorted by uid.
func (s *DB) All() []types.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allUnlocked()
}

func (s *DB) allUnlocked() []types.Page {
	out := make([]types.Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// FetchDescendants lists the pages between startDepth and maxDepth levels
// below seed, level by level, children in (sorting, uid) order.
//
// Deleted pages are neither reported nor traversed. A page reached twice is
// reported once and expanded once, so a malformed tree (a page listed as its
// own child, or a parent loop) terminates even before maxDepth runs out.
func (s *DB) FetchDescendants(seed uint32, maxDepth, startDepth int) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []uint32{}
	if maxDepth <= 0 {
		return result, nil
	}

	visited := map[uint32]struct{}{seed: {}}
	reported := make(map[uint32]struct{})
	frontier := []uint32{seed}

	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		var next []uint32
		for _, curr := range frontier {
			for _, child := range s.sortedChildrenUnlocked(curr) {
				if level >= startDepth {
					if _, ok := reported[child]; !ok {
						reported[child] = struct{}{}
						result = append(result, child)
					}
				}
				if _, seen := visited[child]; !seen {
					visited[child] = struct{}{}
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

func (s *DB) sortedChildrenUnlocked(pid uint32) []uint32 {
	set := s.children[pid]
	kids := make([]*types.Page, 0, len(set))
	for uid := range set {
		if p := s.pages[uid]; p != nil && !p.Deleted {
			kids = append(kids, p)
		}
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].Sorting != kids[j].Sorting {
			return kids[i].Sorting < kids[j].Sorting
		}
		return kids[i].UID < kids[j].UID
	})
	out := make([]uint32, len(kids))
	for i, p := range kids {
		out[i] = p.UID
	}
	return out
}

// ExecuteFilter returns copies of all pages matching f in the DB's order.
//
// Inclusion predicates are resolved to uid sets through the indexes and
// intersected; exclusion predicates are united and subtracted. Deleted
// pages, and hidden ones unless Options.IncludeHidden is set, are dropped.
func (s *DB) ExecuteFilter(f selection.Filter) ([]*types.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var included map[uint32]struct{} // nil = every page
	excluded := make(map[uint32]struct{})

	for _, p := range f.Predicates {
		set := s.evaluatePredicateUnlocked(p)
		if p.Negated() {
			excluded = unionSets(excluded, set)
			continue
		}
		if included == nil {
			included = set
		} else {
			included = intersectSets(included, set)
		}
	}

	result := make([]*types.Page, 0)
	s.order.Scan(func(item orderItem) bool {
		if included != nil {
			if _, ok := included[item.UID]; !ok {
				return true
			}
		}
		if _, ok := excluded[item.UID]; ok {
			return true
		}
		p := s.pages[item.UID]
		if p == nil || p.Deleted || (p.Hidden && !s.opts.IncludeHidden) {
			return true
		}
		page := *p
		result = append(result, &page)
		return true
	})
	return result, nil
}

// evaluatePredicateUnlocked returns the uids whose column value is in p.Values,
// ignoring negation. The returned set is always a fresh map.
func (s *DB) evaluatePredicateUnlocked(p selection.Predicate) map[uint32]struct{} {
	idSet := make(map[uint32]struct{})
	var index map[uint32]map[uint32]struct{}

	switch p.Field() {
	case selection.FieldUID:
		for _, uid := range p.Values {
			if _, ok := s.pages[uid]; ok {
				idSet[uid] = struct{}{}
			}
		}
		return idSet
	case selection.FieldPID:
		index = s.children
	case selection.FieldDokType:
		index = s.byDokType
	case selection.FieldNavHide:
		index = s.byNavHide
	}

	for _, v := range p.Values {
		for uid := range index[v] {
			idSet[uid] = struct{}{}
		}
	}
	return idSet
}

// Snapshot serializes all pages in gob format to writer.
func (s *DB) Snapshot(writer io.Writer) error {
	s.mu.RLock()
	snapshot := Snapshot{Pages: s.allUnlocked()}
	s.mu.RUnlock()

	if err := gob.NewEncoder(writer).Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// LoadFromSnapshot replaces the current content with a gob snapshot read from reader.
func (s *DB) LoadFromSnapshot(reader io.Reader) error {
	var snapshot Snapshot
	if err := gob.NewDecoder(reader).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	less := uidLess
	if s.opts.Order == OrderByNewest {
		less = newestLess
	}
	s.pages = make(map[uint32]*types.Page, len(snapshot.Pages))
	s.children = make(map[uint32]map[uint32]struct{})
	s.byDokType = make(map[uint32]map[uint32]struct{})
	s.byNavHide = make(map[uint32]map[uint32]struct{})
	s.order = btree.NewBTreeG[orderItem](less)

	for _, p := range snapshot.Pages {
		if p.UID == 0 {
			continue
		}
		s.putUnlocked(p)
	}
	return nil
}

func addToSet(index map[uint32]map[uint32]struct{}, key, uid uint32) {
	set, ok := index[key]
	if !ok {
		set = make(map[uint32]struct{})
		index[key] = set
	}
	set[uid] = struct{}{}
}

func removeFromSet(index map[uint32]map[uint32]struct{}, key, uid uint32) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, uid)
	if len(set) == 0 {
		delete(index, key)
	}
}

// intersectSets calculates the intersection of two sets (a ∩ b)
func intersectSets(a, b map[uint32]struct{}) map[uint32]struct{} {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make(map[uint32]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			res[id] = struct{}{}
		}
	}
	return res
}

// unionSets calculates the union of two sets (a ∪ b)
func unionSets(a, b map[uint32]struct{}) map[uint32]struct{} {
	res := make(map[uint32]struct{}, len(a)+len(b))
	for id := range a {
		res[id] = struct{}{}
	}
	for id := range b {
		res[id] = struct{}{}
	}
	return res
}
