package selection

// Request is a declarative selection, as sent by the HTTP API and built by
// the CLI flags. List fields use the comma-separated uid syntax of ParseIDList.
type Request struct {
	UIDs             string   `json:"uids,omitempty"`
	PIDs             string   `json:"pids,omitempty"`
	UIDsRecursive    string   `json:"uids_recursive,omitempty"`
	PIDsRecursive    string   `json:"pids_recursive,omitempty"`
	Exclude          string   `json:"exclude,omitempty"`
	ExcludeRecursive string   `json:"exclude_recursive,omitempty"`
	DokTypes         []uint32 `json:"doktypes,omitempty"`

	// NavHidden controls the nav_hide predicate: nil adds none, false keeps
	// only pages shown in menus, true keeps both.
	NavHidden *bool `json:"nav_hidden,omitempty"`

	// ExcludeSelected drops the pages returned by the builder's previous Execute.
	ExcludeSelected bool `json:"exclude_selected,omitempty"`
}

// Apply adds the predicates described by r to b. It stops at the first
// failed tree expansion; predicates added before it stay pending.
func (r Request) Apply(b *Builder) error {
	b.SelectByIDs(r.UIDs)
	b.SelectByParents(r.PIDs)
	if err := b.SelectByIDsRecursive(r.UIDsRecursive); err != nil {
		return err
	}
	if err := b.SelectByParentsRecursive(r.PIDsRecursive); err != nil {
		return err
	}
	if err := b.ExcludeCombined(r.Exclude, r.ExcludeRecursive); err != nil {
		return err
	}
	if r.ExcludeSelected {
		b.ExcludeSelected()
	}
	if r.NavHidden != nil {
		b.SetNavigationVisibility(*r.NavHidden)
	}
	b.SetCategoryFilter(r.DokTypes)
	return nil
}
