package store

import (
	"database/sql"
	"errors"
)

// ChapterProgress is the durable per-chapter reading record for a story.
type ChapterProgress struct {
	StoryID       string `json:"story_id"`
	ChapterNumber int    `json:"chapter_number"`
	Read          bool   `json:"read"`
	Percent       int    `json:"percent"`
}

// UpsertChapterProgress records the reading progress for a chapter of a story.
func (s *Store) UpsertChapterProgress(storyID string, chapterNumber int, percent int, read bool) error {
	query := `
		INSERT INTO story_progress (story_id, chapter_number, read, percent, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(story_id, chapter_number) DO UPDATE SET
			read = excluded.read,
			percent = excluded.percent,
			updated_at = CURRENT_TIMESTAMP;
	`
	_, err := s.db.Exec(query, storyID, chapterNumber, read, percent)
	return err
}

// GetStoryProgress returns all recorded chapter progress for a story,
// ordered by chapter number.
func (s *Store) GetStoryProgress(storyID string) ([]*ChapterProgress, error) {
	rows, err := s.db.Query(
		"SELECT story_id, chapter_number, read, percent FROM story_progress WHERE story_id = ? ORDER BY chapter_number ASC",
		storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ChapterProgress
	for rows.Next() {
		var p ChapterProgress
		if err := rows.Scan(&p.StoryID, &p.ChapterNumber, &p.Read, &p.Percent); err != nil {
			return nil, err
		}
		records = append(records, &p)
	}
	return records, rows.Err()
}

// GreatestUnreadChapter returns the number of the greatest chapter that is
// not yet marked read, used to restore the reading position on story load.
// It returns 0 when no progress has been recorded for the story.
func (s *Store) GreatestUnreadChapter(storyID string) (int, error) {
	// The first chapter after the highest read one. If nothing is read yet
	// but progress rows exist, that is chapter 1; with no rows at all, 0.
	var maxRead sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(chapter_number) FROM story_progress WHERE story_id = ? AND read = 1",
		storyID).Scan(&maxRead)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM story_progress WHERE story_id = ?", storyID).Scan(&total); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if !maxRead.Valid {
		return 1, nil
	}
	return int(maxRead.Int64) + 1, nil
}

// MarkChapterRead marks a single chapter as fully read.
func (s *Store) MarkChapterRead(storyID string, chapterNumber int) error {
	return s.UpsertChapterProgress(storyID, chapterNumber, 100, true)
}
