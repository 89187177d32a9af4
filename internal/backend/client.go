package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fablemill/fable-go/internal/models"
)

// Client implements Backend over the generation service's JSON API.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a backend client for the given base URL. The timeout
// applies per request; polling cadence is the caller's concern.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// checkStatus maps HTTP status codes onto the package's error taxonomy.
func checkStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 400:
		return fmt.Errorf("backend returned status %d", code)
	}
	return nil
}

// LoadStory fetches a story's metadata and generation progress snapshot.
func (c *Client) LoadStory(ctx context.Context, storyID string) (*models.Story, error) {
	var story models.Story
	if err := c.get(ctx, "/v1/stories/"+storyID, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// ListChapters fetches the currently available chapters for a story,
// ordered by chapter number.
func (c *Client) ListChapters(ctx context.Context, storyID string) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	if err := c.get(ctx, "/v1/stories/"+storyID+"/chapters", &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

// GetChapterGenerationStatus asks whether the given chapter exists yet.
func (c *Client) GetChapterGenerationStatus(ctx context.Context, storyID string, chapterNumber int) (*GenerationStatusResult, error) {
	var result GenerationStatusResult
	path := fmt.Sprintf("/v1/stories/%s/chapters/%d/status", storyID, chapterNumber)
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetFeedbackStatus reports whether feedback was already submitted for the
// (story, checkpoint) pair in any previous session.
func (c *Client) GetFeedbackStatus(ctx context.Context, storyID string, checkpoint models.Checkpoint) (bool, error) {
	var result struct {
		HasFeedback bool `json:"has_feedback"`
	}
	path := fmt.Sprintf("/v1/stories/%s/feedback/%s", storyID, checkpoint)
	if err := c.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.HasFeedback, nil
}

// SubmitFeedback sends the structured checkpoint feedback record.
func (c *Client) SubmitFeedback(ctx context.Context, storyID string, checkpoint models.Checkpoint, feedback models.StructuredFeedback) error {
	feedback.Version = models.FeedbackVersion
	var result struct {
		Accepted bool `json:"accepted"`
	}
	path := fmt.Sprintf("/v1/stories/%s/feedback/%s", storyID, checkpoint)
	if err := c.post(ctx, path, feedback, &result); err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("backend rejected feedback for checkpoint %s", checkpoint)
	}
	return nil
}

// SubmitFreeformFeedback sends the free-text checkpoint response variant and
// reports whether the backend resumed chapter generation in response.
func (c *Client) SubmitFreeformFeedback(ctx context.Context, storyID string, checkpoint models.Checkpoint, feedback models.FreeformFeedback) (bool, error) {
	var result struct {
		GeneratingChapters bool `json:"generating_chapters"`
	}
	path := fmt.Sprintf("/v1/stories/%s/feedback/%s/freeform", storyID, checkpoint)
	if err := c.post(ctx, path, feedback, &result); err != nil {
		return false, err
	}
	return result.GeneratingChapters, nil
}

// FlushSession hands a reading-session summary to the analytics endpoint.
func (c *Client) FlushSession(ctx context.Context, summary models.SessionSummary) error {
	return c.post(ctx, "/v1/stories/"+summary.StoryID+"/sessions", summary, nil)
}
