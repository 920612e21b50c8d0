package streamcfg

import (
	"fmt"

	"github.com/t0ops/runconfig/internal/store"
)

// repackLFNBases returns the unmerged and merged LFN bases for a bulk
// stream. A backfill label redirects merged output into the backfill
// namespace.
func repackLFNBases(info *store.RunInfo) (unmerged, merged string) {
	unmerged = "/store/unmerged/" + info.BulkDataType
	if info.Backfill != "" {
		merged = fmt.Sprintf("/store/backfill/%s/%s", info.Backfill, info.BulkDataType)
	} else {
		merged = "/store/" + info.BulkDataType
	}
	return unmerged, merged
}

// expressLFNBases returns the unmerged and merged LFN bases for an
// express stream.
func expressLFNBases(info *store.RunInfo) (unmerged, merged string) {
	unmerged = "/store/unmerged/express"
	if info.Backfill != "" {
		merged = fmt.Sprintf("/store/backfill/%s/express", info.Backfill)
	} else {
		merged = "/store/express"
	}
	return unmerged, merged
}
