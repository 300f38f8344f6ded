package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Count returns the number of known crates.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM crates`).Scan(&n); err != nil {
		return 0, wrapQueryErr("failed to count rows in table crates", err)
	}
	return n, nil
}

// Sync inserts an unvisited record for every name that is not yet known.
// Existing records are never modified, so re-running Sync with overlapping
// input is a no-op for the overlap. All inserts happen in one transaction.
func (s *Store) Sync(names []string) (SyncResult, error) {
	var result SyncResult
	if len(names) == 0 {
		return result, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return result, fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO crates (name, visited, date) VALUES (?, 0, NULL)`)
	if err != nil {
		return result, wrapQueryErr("failed to prepare sync insert", err)
	}
	defer stmt.Close()

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		res, err := stmt.Exec(name)
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to insert crate %s: %w", name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to read rows affected for crate %s: %w", name, err)
		}
		result.Inserted += int(affected)
	}
	result.Seen = len(seen)

	if err := tx.Commit(); err != nil {
		return SyncResult{}, fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	return result, nil
}

// UnvisitedNames returns the names of all crates not yet announced, in
// insertion order.
func (s *Store) UnvisitedNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM crates WHERE visited = 0 ORDER BY rowid`)
	if err != nil {
		return nil, wrapQueryErr("failed to query unvisited crates", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan crate name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unvisited crates: %w", err)
	}

	return names, nil
}

// MarkVisited flags name as announced at the given time. It returns
// ErrNotFound for unknown names. A crate that is already visited keeps its
// original timestamp.
func (s *Store) MarkVisited(name string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE crates SET visited = 1, date = ? WHERE name = ? AND visited = 0`,
		at.UTC().Format(time.RFC3339),
		name,
	)
	if err != nil {
		return wrapQueryErr(fmt.Sprintf("failed to mark crate %s visited", name), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for crate %s: %w", name, err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing changed: either the name is unknown or it was already visited.
	if _, err := s.GetRecord(name); err != nil {
		return err
	}
	return nil
}

// GetRecord retrieves a single crate record by name.
func (s *Store) GetRecord(name string) (*Record, error) {
	row := s.db.QueryRow(`SELECT name, visited, date FROM crates WHERE name = ?`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("crate %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, wrapQueryErr(fmt.Sprintf("failed to get crate %s", name), err)
	}
	return rec, nil
}

// ListRecords returns records matching filter ordered by name.
func (s *Store) ListRecords(filter ListFilter) ([]*Record, error) {
	query := `SELECT name, visited, date FROM crates`
	switch filter {
	case ListVisited:
		query += ` WHERE visited = 1`
	case ListUnvisited:
		query += ` WHERE visited = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapQueryErr("failed to list crates", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crate: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crates: %w", err)
	}

	return records, nil
}

// Stats returns aggregate counts and the most recent announcement.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(visited), 0) FROM crates`,
	).Scan(&st.Total, &st.Visited)
	if err != nil {
		return nil, wrapQueryErr("failed to compute crate stats", err)
	}
	st.Unvisited = st.Total - st.Visited

	var date string
	err = s.db.QueryRow(
		`SELECT name, date FROM crates WHERE visited = 1 AND date IS NOT NULL ORDER BY date DESC LIMIT 1`,
	).Scan(&st.LastName, &date)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &st, nil
	case err != nil:
		return nil, wrapQueryErr("failed to query last announcement", err)
	}

	st.LastAnnounced, err = time.Parse(time.RFC3339, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date for crate %s: %w", st.LastName, err)
	}

	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var visited int
	var date sql.NullString

	if err := row.Scan(&rec.Name, &visited, &date); err != nil {
		return nil, err
	}
	rec.Visited = visited != 0

	if date.Valid && date.String != "" {
		t, err := time.Parse(time.RFC3339, date.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date for crate %s: %w", rec.Name, err)
		}
		rec.AnnouncedAt = t
	}

	return &rec, nil
}
