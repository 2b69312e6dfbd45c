// Package sqlite persists which issues were processed and which review
// outcomes were announced.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_issues (
	issue_id     TEXT PRIMARY KEY,
	updated_on   TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS review_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id    TEXT NOT NULL,
	updated_on  TEXT NOT NULL DEFAULT '',
	qa_status   TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	announced   INTEGER NOT NULL DEFAULT 0,
	run_id      TEXT NOT NULL DEFAULT '',
	reviewed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rh_issue ON review_history(issue_id, id);
`

// InitDB opens the state database in WAL mode and creates the schema.
func InitDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

// ProcessedIssues returns issue id -> last processed updated_on.
func (s *Store) ProcessedIssues() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT issue_id, updated_on FROM processed_issues`)
	if err != nil {
		return nil, fmt.Errorf("loading processed issues: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, updated string
		if err := rows.Scan(&id, &updated); err != nil {
			return nil, fmt.Errorf("scanning processed issue: %w", err)
		}
		out[id] = updated
	}
	return out, rows.Err()
}

// ProcessedUpdatedOn returns the stored updated_on for one issue, or "" if unseen.
func (s *Store) ProcessedUpdatedOn(issueID string) (string, error) {
	var updated string
	err := s.db.QueryRow(`SELECT updated_on FROM processed_issues WHERE issue_id = ?`, issueID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading issue %s: %w", issueID, err)
	}
	return updated, nil
}

func (s *Store) SaveProcessedIssue(issueID, updatedOn string) error {
	_, err := s.db.Exec(
		`INSERT INTO processed_issues (issue_id, updated_on, last_seen_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(issue_id) DO UPDATE SET
			updated_on = excluded.updated_on,
			last_seen_at = excluded.last_seen_at`,
		issueID, updatedOn, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("saving issue %s: %w", issueID, err)
	}
	return nil
}

// DeleteProcessedIssue forgets an issue. Deleting an unknown issue is not an error.
func (s *Store) DeleteProcessedIssue(issueID string) error {
	if _, err := s.db.Exec(`DELETE FROM processed_issues WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("deleting issue %s: %w", issueID, err)
	}
	return nil
}

// PruneStaleIssues removes issues whose updated_on is older than maxAge.
// Rows with an unparseable updated_on are kept.
func (s *Store) PruneStaleIssues(maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)
	issues, err := s.ProcessedIssues()
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting prune: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for id, updated := range issues {
		ts, ok := ParseTimestamp(updated)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM processed_issues WHERE issue_id = ?`, id); err != nil {
			return 0, fmt.Errorf("pruning issue %s: %w", id, err)
		}
		removed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return removed, nil
}

type ReviewRecord struct {
	IssueID     string
	UpdatedOn   string
	QAStatus    string
	Outcome     string
	Reason      string
	Fingerprint string
	Announced   bool
	RunID       string
}

func (s *Store) InsertReview(r ReviewRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO review_history (issue_id, updated_on, qa_status, outcome, reason, fingerprint, announced, run_id, reviewed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.IssueID, r.UpdatedOn, r.QAStatus, r.Outcome, r.Reason, r.Fingerprint, r.Announced, r.RunID, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("recording review for issue %s: %w", r.IssueID, err)
	}
	return nil
}

// LastAnnouncedFingerprint returns the fingerprint of the latest announced
// review for an issue, or "" when nothing was announced yet.
func (s *Store) LastAnnouncedFingerprint(issueID string) (string, error) {
	var fp string
	err := s.db.QueryRow(
		`SELECT fingerprint FROM review_history
		 WHERE issue_id = ? AND announced = 1
		 ORDER BY id DESC LIMIT 1`, issueID,
	).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading last review for issue %s: %w", issueID, err)
	}
	return fp, nil
}

// ReviewCount is the number of recorded reviews for an issue, announced or not.
func (s *Store) ReviewCount(issueID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM review_history WHERE issue_id = ?`, issueID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting reviews for issue %s: %w", issueID, err)
	}
	return n, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp shapes Redmine emits. Zone-less
// values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp renders s as UTC RFC 3339, or returns it unchanged
// when it cannot be parsed.
func NormalizeTimestamp(s string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format(time.RFC3339)
}
