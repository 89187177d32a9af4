package store

import (
	"time"

	"github.com/fablemill/fable-go/internal/models"
)

// LogSession appends a flushed reading-session summary to the local session
// log. The backend flush remains fire-and-forget; this log exists so the
// maintenance CLI can inspect engagement locally.
func (s *Store) LogSession(summary models.SessionSummary) error {
	query := `
		INSERT OR IGNORE INTO session_log
		(session_id, story_id, started_at, duration_seconds, last_chapter, last_percent)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		summary.SessionID, summary.StoryID, summary.StartedAt,
		int(summary.Duration.Seconds()), summary.LastChapter, summary.LastPercent)
	return err
}

// GetSessionLog returns all logged sessions for a story, newest first.
func (s *Store) GetSessionLog(storyID string) ([]*models.SessionSummary, error) {
	query := `
		SELECT session_id, story_id, started_at, duration_seconds, last_chapter, last_percent
		FROM session_log WHERE story_id = ? ORDER BY started_at DESC
	`
	rows, err := s.db.Query(query, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		var seconds int
		if err := rows.Scan(&sum.SessionID, &sum.StoryID, &sum.StartedAt, &seconds, &sum.LastChapter, &sum.LastPercent); err != nil {
			return nil, err
		}
		sum.Duration = time.Duration(seconds) * time.Second
		sessions = append(sessions, &sum)
	}
	return sessions, rows.Err()
}
