package reader

import "github.com/fablemill/fable-go/internal/models"

// Checkpoint evaluation is a pure decision table: no I/O, always returns.
// Arriving at chapters 3, 6 and 9 solicits feedback on the chapters just
// read; finishing chapter 12 triggers the book-completion interview.

const (
	// completionChapter is the final chapter of a book.
	completionChapter = 12
	// completionThreshold is the scroll fraction past which chapter 12
	// counts as finished.
	completionThreshold = 0.9
)

// CheckpointForChapter returns the checkpoint that arriving at the given
// chapter solicits, if any. The completion checkpoint is not an arrival
// checkpoint; it requires scroll depth and is handled by EvaluateCheckpoint.
func CheckpointForChapter(chapterNumber int) (models.Checkpoint, bool) {
	switch chapterNumber {
	case 3:
		return models.CheckpointChapter2, true
	case 6:
		return models.CheckpointChapter5, true
	case 9:
		return models.CheckpointChapter8, true
	}
	return "", false
}

// EvaluateCheckpoint maps the current reading position onto at most one
// newly fired checkpoint. Checkpoints already in the fired set never fire
// again; the caller owns the set and clears it when a session restarts.
func EvaluateCheckpoint(chapterNumber int, scrollFraction float64, fired map[models.Checkpoint]bool) (models.Checkpoint, bool) {
	if cp, ok := CheckpointForChapter(chapterNumber); ok {
		if !fired[cp] {
			return cp, true
		}
		return "", false
	}

	if chapterNumber == completionChapter && scrollFraction > completionThreshold {
		if !fired[models.CheckpointBookComplete] {
			return models.CheckpointBookComplete, true
		}
	}
	return "", false
}
