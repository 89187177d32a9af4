package models

// Checkpoint identifies a chapter boundary at which structured reader
// feedback is solicited before further generation proceeds.
type Checkpoint string

const (
	CheckpointChapter2     Checkpoint = "chapter_2"
	CheckpointChapter5     Checkpoint = "chapter_5"
	CheckpointChapter8     Checkpoint = "chapter_8"
	CheckpointBookComplete Checkpoint = "chapter_12_complete"
)

// FeedbackVersion is the current version of the StructuredFeedback record.
// Unknown fields sent by newer clients are dropped at the API boundary.
const FeedbackVersion = 1

// StructuredFeedback is the closed, versioned feedback record collected at
// a checkpoint. It replaces the free-form preference maps the interview
// flow used to pass around.
type StructuredFeedback struct {
	Version         int    `json:"version"`
	Pacing          string `json:"pacing"`
	Tone            string `json:"tone"`
	Character       string `json:"character"`
	ProtagonistName string `json:"protagonist_name,omitempty"`
}

// FreeformFeedback is the simpler free-text checkpoint response variant.
type FreeformFeedback struct {
	Response       string `json:"response"`
	FollowUpAction string `json:"follow_up_action,omitempty"`
}
