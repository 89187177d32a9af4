package reader

import (
	"context"
	"fmt"

	"github.com/fablemill/fable-go/internal/backend"
	"github.com/fablemill/fable-go/internal/models"
)

// ProgressSource answers where reading left off in a previous session.
// The durable progress store implements it.
type ProgressSource interface {
	GreatestUnreadChapter(storyID string) (int, error)
}

// Store is the in-memory ordered chapter collection for the active story.
// It is session-scoped and holds no durable state; the orchestrator is its
// single owner and serializes all access.
type Store struct {
	stories  backend.StoryService
	progress ProgressSource

	story    *models.Story
	chapters []*models.Chapter
}

// NewStore creates a Store backed by the given collaborators.
func NewStore(stories backend.StoryService, progress ProgressSource) *Store {
	return &Store{stories: stories, progress: progress}
}

// Load fetches the story and its currently available chapters, replacing
// any previously held collection. It returns the initial chapter index:
// the greatest chapter not yet read per recorded progress, or 0.
func (s *Store) Load(ctx context.Context, storyID string) (int, error) {
	story, err := s.stories.LoadStory(ctx, storyID)
	if err != nil {
		return 0, err
	}
	chapters, err := s.stories.ListChapters(ctx, storyID)
	if err != nil {
		return 0, err
	}

	// The backend must deliver contiguous 1-based chapter numbers.
	for i, ch := range chapters {
		if ch.Number != i+1 {
			return 0, fmt.Errorf("chapter %d at position %d: %w", ch.Number, i, ErrOutOfOrder)
		}
	}

	s.story = story
	s.chapters = chapters

	resume, err := s.progress.GreatestUnreadChapter(storyID)
	if err != nil {
		// Progress lookup failure is recoverable: start at the beginning.
		return 0, nil
	}
	index := resume - 1
	if index < 0 {
		index = 0
	}
	if index >= len(chapters) && len(chapters) > 0 {
		index = len(chapters) - 1
	}
	return index, nil
}

// Story returns the loaded story, or nil before Load.
func (s *Store) Story() *models.Story {
	return s.story
}

// AppendChapter inserts a newly generated chapter. The backend must never
// skip numbers; a gap fails with ErrOutOfOrder.
func (s *Store) AppendChapter(chapter *models.Chapter) error {
	if chapter.Number != len(s.chapters)+1 {
		return fmt.Errorf("expected chapter %d, got %d: %w", len(s.chapters)+1, chapter.Number, ErrOutOfOrder)
	}
	s.chapters = append(s.chapters, chapter)
	return nil
}

// ChapterCount returns the number of chapters currently held.
func (s *Store) ChapterCount() int {
	return len(s.chapters)
}

// HasChapter reports whether the chapter with the given number is present.
func (s *Store) HasChapter(number int) bool {
	return number >= 1 && number <= len(s.chapters)
}

// ChapterAt returns the chapter at the given 0-based index.
func (s *Store) ChapterAt(index int) (*models.Chapter, error) {
	if index < 0 || index >= len(s.chapters) {
		return nil, fmt.Errorf("index %d with %d chapters: %w", index, len(s.chapters), ErrIndexOutOfRange)
	}
	return s.chapters[index], nil
}
