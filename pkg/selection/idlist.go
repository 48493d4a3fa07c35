package selection

import (
	"strconv"
	"strings"
)

// ParseIDList parses a comma-separated list of page uids such as "1, 5,9".
//
// Parsing is lenient: empty tokens and tokens that are not unsigned decimal
// integers ("a", "-3", "4.5") are dropped silently, so "1,a,3" yields [1 3].
// The result is de-duplicated and keeps the order in which each uid first appeared.
// An empty or fully invalid list yields an empty (non-nil) slice.
func ParseIDList(list string) []uint32 {
	ids := make([]uint32, 0, strings.Count(list, ",")+1)
	seen := make(map[uint32]struct{})

	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		v, err := strconv.ParseUint(token, 10, 32)
		if err != nil {
			continue
		}
		id := uint32(v)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// FormatIDList renders ids as a comma-separated list, the inverse of ParseIDList.
func FormatIDList(ids []uint32) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}

// dedupIDs returns a copy of ids without duplicates, first occurrence wins.
func dedupIDs(ids []uint32) []uint32 {
	out := make([]uint32, 0, len(ids))
	seen := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
