package database

import (
	"fmt"
	"time"
)

// Stats is a read-only snapshot of storage health.
type Stats struct {
	Feeds     int64 `json:"feeds"`
	Folders   int64 `json:"folders"`
	Articles  int64 `json:"articles"`
	ReadState int64 `json:"read_state"`

	PageCount     int64   `json:"page_count"`
	PageSize      int64   `json:"page_size"`
	FreePages     int64   `json:"free_pages"`
	SizeBytes     int64   `json:"size_bytes"`
	Fragmentation float64 `json:"fragmentation"` // free pages / total pages
}

// CollectStats gathers table counts and page-level fragmentation.
func (db *DB) CollectStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		table string
		dest  *int64
	}{
		{"feeds", &s.Feeds},
		{"folders", &s.Folders},
		{"articles", &s.Articles},
		{"read_state", &s.ReadState},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&s.PageCount); err != nil {
		return nil, fmt.Errorf("page_count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&s.PageSize); err != nil {
		return nil, fmt.Errorf("page_size: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA freelist_count").Scan(&s.FreePages); err != nil {
		return nil, fmt.Errorf("freelist_count: %w", err)
	}
	s.SizeBytes = s.PageCount * s.PageSize
	if s.PageCount > 0 {
		s.Fragmentation = float64(s.FreePages) / float64(s.PageCount)
	}
	return s, nil
}

// CompactionWorthwhile reports whether the fragmentation ratio clears the
// threshold below which a full rewrite is not worth suggesting.
func (db *DB) CompactionWorthwhile(threshold float64) (bool, float64, error) {
	s, err := db.CollectStats()
	if err != nil {
		return false, 0, err
	}
	return s.Fragmentation >= threshold, s.Fragmentation, nil
}

// Optimize refreshes planner statistics and rebuilds indexes. Safe to run
// at any time.
func (db *DB) Optimize() (time.Duration, error) {
	start := time.Now()
	for _, stmt := range []string{"ANALYZE;", "REINDEX;", "PRAGMA optimize;"} {
		if _, err := db.conn.Exec(stmt); err != nil {
			return time.Since(start), fmt.Errorf("optimize: %w", err)
		}
	}
	return time.Since(start), nil
}

// Vacuum rewrites the database file to reclaim free pages. Returns bytes
// reclaimed and elapsed time.
func (db *DB) Vacuum() (int64, time.Duration, error) {
	before, err := db.CollectStats()
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	if _, err := db.conn.Exec("VACUUM;"); err != nil {
		return 0, time.Since(start), fmt.Errorf("vacuum: %w", err)
	}
	after, err := db.CollectStats()
	if err != nil {
		return 0, time.Since(start), err
	}
	reclaimed := before.SizeBytes - after.SizeBytes
	if reclaimed < 0 {
		reclaimed = 0
	}
	return reclaimed, time.Since(start), nil
}
