package types

// Page types (the "doktype" column of the page tree).
const (
	DokTypeDefault    uint32 = 1
	DokTypeLink       uint32 = 3
	DokTypeShortcut   uint32 = 4
	DokTypeMountPoint uint32 = 7
	DokTypeSpacer     uint32 = 199
	DokTypeSysFolder  uint32 = 254
	DokTypeRecycler   uint32 = 255
)

// Page is a single node of the page tree.
// UID identifies the page, PID is the uid of its parent (0 for root-level pages).
type Page struct {
	UID     uint32 `json:"uid" yaml:"uid"`
	PID     uint32 `json:"pid" yaml:"pid"`
	DokType uint32 `json:"doktype" yaml:"doktype"`
	NavHide uint32 `json:"nav_hide" yaml:"nav_hide"` // 1 = hidden in menus
	Hidden  bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Deleted bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Title   string `json:"title" yaml:"title"`
	Sorting int    `json:"sorting,omitempty" yaml:"sorting,omitempty"`
	CrDate  int64  `json:"crdate,omitempty" yaml:"crdate,omitempty"` // Unix seconds
	Tstamp  int64  `json:"tstamp,omitempty" yaml:"tstamp,omitempty"` // Unix seconds, last change
}

// UIDs extracts the uids of pages, preserving order.
func UIDs(pages []*Page) []uint32 {
	ids := make([]uint32, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.UID)
	}
	return ids
}
