package leads

import (
	"sort"

	"calltrack/internal/calls"
)

// KeyOf derives the owning lead of a call. Explicit ids win over the storage path.
// ok is false when the tenant or the lead cannot be determined.
func KeyOf(c calls.Call) (Key, bool) {
	k := Key{TenantID: c.TenantID, LeadID: c.LeadID}
	if k.TenantID == "" || k.LeadID == "" {
		tid, lid, _, _ := calls.ParsePath(c.Path)
		if k.TenantID == "" {
			k.TenantID = tid
		}
		if k.LeadID == "" {
			k.LeadID = lid
		}
	}
	return k, k.TenantID != "" && k.LeadID != ""
}

// Resolve builds the latest call per (tenant, lead) from scratch.
// The call with the largest creation time wins; on a tie the first one seen stays.
func Resolve(cs []calls.Call) map[Key]LatestCall {
	out := make(map[Key]LatestCall, len(cs))
	for _, c := range cs {
		k, ok := KeyOf(c)
		if !ok {
			continue
		}
		prev, seen := out[k]
		if !seen || c.CreatedMillis() > prev.CreatedMs {
			out[k] = latestOf(c, k)
		}
	}
	return out
}

// SortByLastSeen orders leads by most recent activity first.
func SortByLastSeen(ls []Lead) {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].LastSeenMillis() > ls[j].LastSeenMillis() })
}
