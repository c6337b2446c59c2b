package scrape

// minRecentWindow is the floor on how many recent detail URLs are loaded
// per organization before dedup. The window must cover at least the
// current batch, or a slow site pushing old notices back onto page one
// would be re-inserted.
const minRecentWindow = 100

// WindowSize returns how many recent detail URLs to load for a batch.
func WindowSize(batchSize int) int {
	if batchSize > minRecentWindow {
		return batchSize
	}
	return minRecentWindow
}

// PartitionNew returns the rows whose detail URL is neither in the recent
// window nor earlier in the same batch, preserving input (oldest-first)
// order. Sequence numbers are assigned over exactly this slice.
func PartitionNew(rows []*RawRecord, recent map[string]struct{}) []*RawRecord {
	seen := make(map[string]struct{}, len(rows))
	var fresh []*RawRecord
	for _, rec := range rows {
		u := rec.DetailURL()
		if u == "" {
			continue
		}
		if _, ok := recent[u]; ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}
