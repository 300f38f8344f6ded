package store

import "time"

// Record is one row of the crates table.
type Record struct {
	Name    string
	Visited bool
	// AnnouncedAt is zero until the crate has been announced.
	AnnouncedAt time.Time
}

// SyncResult summarizes a Sync call.
type SyncResult struct {
	Seen     int // distinct names in the input
	Inserted int // names that had no record before
}

// UpToDate reports whether the sync added nothing.
func (r SyncResult) UpToDate() bool {
	return r.Inserted == 0
}

// Stats aggregates the table for status output.
type Stats struct {
	Total         int
	Visited       int
	Unvisited     int
	LastName      string
	LastAnnounced time.Time
}

// ListFilter selects which records ListRecords returns.
type ListFilter int

const (
	ListAll ListFilter = iota
	ListVisited
	ListUnvisited
)
