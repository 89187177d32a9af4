package store

// Tracks the one-time onboarding ceremony shown per story. The set of story
// ids lives in the local database so the ceremony is never repeated across
// app launches.

// HasSeenOnboarding reports whether the onboarding ceremony was already
// shown for the given story.
func (s *Store) HasSeenOnboarding(storyID string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM onboarding_stories WHERE story_id = ?", storyID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkOnboardingSeen records that the onboarding ceremony was shown for the
// given story. Recording the same story twice is a no-op.
func (s *Store) MarkOnboardingSeen(storyID string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO onboarding_stories (story_id) VALUES (?)", storyID)
	return err
}

// ListOnboardedStories returns all story ids the ceremony was shown for.
func (s *Store) ListOnboardedStories() ([]string, error) {
	rows, err := s.db.Query("SELECT story_id FROM onboarding_stories ORDER BY shown_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearOnboarding removes the onboarding record for a story, used by the
// maintenance CLI.
func (s *Store) ClearOnboarding(storyID string) error {
	_, err := s.db.Exec("DELETE FROM onboarding_stories WHERE story_id = ?", storyID)
	return err
}
