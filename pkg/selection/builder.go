// Package selection builds page selections over a page tree.
//
// A Builder accumulates predicates (uid lists, parent lists, exclusions,
// doktype and menu-visibility filters), optionally expanding uid lists
// recursively through the tree, and then executes their conjunction against
// a Store in one round trip. The uids of the last result are remembered so a
// later query can build on them.
//
// Basic usage:
//
//	b := selection.NewBuilder(db)
//	if err := b.SelectByParentsRecursive("12"); err != nil {
//	    return err
//	}
//	b.ExcludeIDs("15,16")
//	b.SetNavigationVisibility(false)
//	pages, err := b.Execute()
package selection

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/metrics"
)

// DefaultRecursionDepth is the depth used by the recursive builder methods.
// It stands in for "the whole subtree" in any sane page tree.
const DefaultRecursionDepth = 255

// Store is the backing page tree a Builder queries.
type Store interface {
	DescendantFetcher

	// ExecuteFilter returns every page matching f, in the store's result order.
	ExecuteFilter(f Filter) ([]*types.Page, error)
}

// State is the lifecycle state of a Builder.
type State int

const (
	// StateIdle means no predicate is pending (new builder, or right after Execute).
	StateIdle State = iota
	// StateBuilding means at least one predicate is waiting for Execute.
	StateBuilding
)

func (s State) String() string {
	if s == StateBuilding {
		return "building"
	}
	return "idle"
}

// Options configures a Builder.
type Options struct {
	// RecursionDepth is the maxDepth passed to the expander by the recursive methods.
	RecursionDepth int

	// DepthCeiling bounds every expansion. RecursionDepth must not exceed it.
	DepthCeiling int

	// Logger receives debug and error records. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the options used by NewBuilder.
func DefaultOptions() Options {
	return Options{
		RecursionDepth: DefaultRecursionDepth,
		DepthCeiling:   DefaultDepthCeiling,
	}
}

// Builder is a selection session. It is owned by one goroutine at a time.
type Builder struct {
	id          string
	store       Store
	expander    *TreeExpander
	constraints ConstraintSet
	selected    []uint32
	state       State
	depth       int
	log         *slog.Logger
}

// NewBuilder returns a builder over store using DefaultOptions.
func NewBuilder(store Store) *Builder {
	b, _ := NewBuilderWithOptions(store, DefaultOptions())
	return b
}

// NewBuilderWithOptions returns a builder over store.
// It fails if the recursion depth is negative or above the ceiling.
func NewBuilderWithOptions(store Store, opts Options) (*Builder, error) {
	ceiling := opts.DepthCeiling
	if ceiling <= 0 {
		ceiling = DefaultDepthCeiling
	}
	if opts.RecursionDepth < 0 || opts.RecursionDepth > ceiling {
		return nil, fmt.Errorf("%w: recursion depth %d, ceiling %d", ErrDepthOutOfRange, opts.RecursionDepth, ceiling)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Builder{
		id:       id,
		store:    store,
		expander: NewTreeExpander(store, ceiling),
		selected: []uint32{},
		depth:    opts.RecursionDepth,
		log:      logger.With("selection", id),
	}, nil
}

// ID returns the session identifier used in log records.
func (b *Builder) ID() string {
	return b.id
}

// State returns the lifecycle state.
func (b *Builder) State() State {
	return b.state
}

// Pending returns the number of predicates waiting for Execute.
func (b *Builder) Pending() int {
	return b.constraints.Len()
}

// Filter returns the conjunction Execute would run now, without consuming it.
func (b *Builder) Filter() Filter {
	return b.constraints.Compose()
}

// Expander returns the tree expander used by the recursive methods.
func (b *Builder) Expander() *TreeExpander {
	return b.expander
}

func (b *Builder) add(kind Kind, values []uint32) {
	p := NewPredicate(kind, values)
	b.constraints.Add(p)
	b.state = StateBuilding
	metrics.PredicatesTotal.WithLabelValues(kind.String()).Inc()
	b.log.Debug("Predicate added", "predicate", p.String())
}

// expandList parses list and expands it from depth 0 down to the configured depth.
func (b *Builder) expandList(list string) ([]uint32, error) {
	seeds := ParseIDList(list)
	if len(seeds) == 0 {
		return nil, nil
	}
	ids, err := b.expander.Expand(seeds, 0, b.depth)
	if err != nil {
		b.log.Error("Tree expansion failed", "seeds", FormatIDList(seeds), "error", err)
		return nil, err
	}
	return ids, nil
}

// SelectByIDs keeps only the pages listed in list.
func (b *Builder) SelectByIDs(list string) {
	if ids := ParseIDList(list); len(ids) > 0 {
		b.add(IncludeByIdentifier, ids)
	}
}

// SelectByParents keeps only the direct children of the pages listed in list.
func (b *Builder) SelectByParents(list string) {
	if ids := ParseIDList(list); len(ids) > 0 {
		b.add(IncludeByParent, ids)
	}
}

// SelectByIDsRecursive keeps the listed pages and all their descendants.
func (b *Builder) SelectByIDsRecursive(list string) error {
	ids, err := b.expandList(list)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		b.add(IncludeByIdentifier, ids)
	}
	return nil
}

// SelectByParentsRecursive keeps the pages whose parent is one of the listed
// pages or any of their descendants, i.e. the whole subtrees below them.
func (b *Builder) SelectByParentsRecursive(list string) error {
	ids, err := b.expandList(list)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		b.add(IncludeByParent, ids)
	}
	return nil
}

// ExcludeIDs removes the listed pages from the result.
func (b *Builder) ExcludeIDs(list string) {
	if ids := ParseIDList(list); len(ids) > 0 {
		b.add(ExcludeByIdentifier, ids)
	}
}

// ExcludeIDsRecursive removes the listed pages and all their descendants.
func (b *Builder) ExcludeIDsRecursive(list string) error {
	ids, err := b.expandList(list)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		b.add(ExcludeByIdentifier, ids)
	}
	return nil
}

// ExcludeCombined applies ExcludeIDs(plain) and ExcludeIDsRecursive(recursive)
// as two independent predicates. Either list may be empty.
func (b *Builder) ExcludeCombined(plain, recursive string) error {
	if plain != "" {
		b.ExcludeIDs(plain)
	}
	if recursive != "" {
		return b.ExcludeIDsRecursive(recursive)
	}
	return nil
}

// ExcludeSelected removes the pages returned by the previous Execute.
// It does nothing before the first Execute or after an empty result.
func (b *Builder) ExcludeSelected() {
	if len(b.selected) > 0 {
		b.add(ExcludeByIdentifier, b.selected)
	}
}

// SetNavigationVisibility restricts the result by the nav_hide flag: pages
// hidden in menus are only kept when includeHidden is true. It always adds a predicate.
func (b *Builder) SetNavigationVisibility(includeHidden bool) {
	if includeHidden {
		b.add(NavigationVisibility, []uint32{0, 1})
		return
	}
	b.add(NavigationVisibility, []uint32{0})
}

// SetCategoryFilter keeps only pages of the given doktypes.
// An empty list means "no doktype filter", not "match nothing".
func (b *Builder) SetCategoryFilter(doktypes []uint32) {
	if len(doktypes) > 0 {
		b.add(IncludeByCategory, doktypes)
	}
}

// Execute runs the conjunction of all pending predicates against the store,
// remembers the uids of the result and returns to StateIdle.
//
// Pending predicates are dropped whether or not the store call succeeds.
// On failure the remembered uids of the previous run are kept.
func (b *Builder) Execute() ([]*types.Page, error) {
	filter := b.constraints.Compose()
	b.constraints.Reset()
	b.state = StateIdle

	pages, err := b.store.ExecuteFilter(filter)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		b.log.Error("Selection failed", "filter", filter.String(), "error", err)
		return nil, fmt.Errorf("failed to execute selection: %w", err)
	}

	b.selected = types.UIDs(pages)
	metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
	b.log.Debug("Selection executed", "filter", filter.String(), "pages", len(pages))
	return pages, nil
}

// SelectedIDs returns a copy of the uids produced by the last successful Execute.
func (b *Builder) SelectedIDs() []uint32 {
	return slices.Clone(b.selected)
}
