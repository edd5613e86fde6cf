package graphdb

// Stats is a point-in-time summary of a store.
type Stats struct {
	Nodes         int      `json:"nodes"`         // Live nodes, excluding the reference node
	Relationships int      `json:"relationships"` // Live relationships
	Properties    int      `json:"properties"`    // Property values across all records
	IndexEntries  int      `json:"index_entries"` // Entries across all indexes
	Indexes       []string `json:"indexes"`       // Declared index keys
	NextID        uint64   `json:"next_id"`       // Next identifier to be allocated
	Ops           OpStats  `json:"ops"`           // Operation counters since Open
	Log           LogStats `json:"log"`           // Commit log state, zero for in-memory stores
}

// OpStats counts operations since the store was opened.
type OpStats struct {
	Commits   uint64 `json:"commits"`
	Rollbacks uint64 `json:"rollbacks"`
	Lookups   uint64 `json:"lookups"`
	CacheHits uint64 `json:"cache_hits"`
}

// LogStats describes the commit log.
type LogStats struct {
	Path  string `json:"path,omitempty"`
	Bytes int64  `json:"bytes"`
	LSN   uint64 `json:"lsn"`
}

// Stats returns current store statistics. Counts are read under the store's
// read lock and are consistent with one another.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Nodes:         s.state.arena.NodeCount() - 1,
		Relationships: s.state.arena.RelationshipCount(),
		Properties:    s.state.props.Len(),
		IndexEntries:  s.state.index.Len(),
		Indexes:       s.state.index.Keys(),
		NextID:        uint64(s.state.arena.NextID()),
	}
	s.mu.RUnlock()

	st.Ops = OpStats{
		Commits:   s.stats.commits.Load(),
		Rollbacks: s.stats.rollbacks.Load(),
		Lookups:   s.stats.lookups.Load(),
		CacheHits: s.stats.cacheHits.Load(),
	}
	if s.log != nil {
		st.Log = LogStats{Path: s.log.Path(), Bytes: s.log.Size(), LSN: s.log.LSN()}
	}
	return st
}
