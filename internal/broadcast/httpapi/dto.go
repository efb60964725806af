package httpapi

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

const (
	minHours, maxHours       = 1, 48
	minArticles, maxArticles = 3, 10
)

// CreateBroadcastRequest is the POST /broadcasts body. Omitted fields take
// the defaults of models.DefaultRequest; unknown category names are ignored.
type CreateBroadcastRequest struct {
	TimePeriodHours *int     `json:"time_period_hours"`
	Categories      []string `json:"categories"`
	MaxArticles     *int     `json:"max_articles"`
}

func (r CreateBroadcastRequest) toRequest() (models.Request, error) {
	req := models.DefaultRequest()

	if r.TimePeriodHours != nil {
		req.TimePeriodHours = *r.TimePeriodHours
	}
	if req.TimePeriodHours < minHours || req.TimePeriodHours > maxHours {
		return req, fmt.Errorf("%w: time_period_hours must be between %d and %d", models.ErrInvalidArgument, minHours, maxHours)
	}

	if r.MaxArticles != nil {
		req.MaxArticles = *r.MaxArticles
	}
	if req.MaxArticles < minArticles || req.MaxArticles > maxArticles {
		return req, fmt.Errorf("%w: max_articles must be between %d and %d", models.ErrInvalidArgument, minArticles, maxArticles)
	}

	if r.Categories != nil {
		req.Categories = make([]models.Category, 0, len(r.Categories))
		seen := make(map[models.Category]bool, len(r.Categories))
		for _, raw := range r.Categories {
			c, ok := models.ParseCategory(raw)
			if !ok || seen[c] {
				continue
			}
			seen[c] = true
			req.Categories = append(req.Categories, c)
		}
		if len(req.Categories) == 0 {
			return req, fmt.Errorf("%w: at least one valid category is required", models.ErrInvalidArgument)
		}
	}
	return req, nil
}

type BroadcastResponse struct {
	JobID           uuid.UUID  `json:"job_id"`
	Status          string     `json:"status"`
	StatusMessage   string     `json:"status_message"`
	ProgressPercent int        `json:"progress_percent"`
	VideoURL        string     `json:"video_url,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// StatusEvent is the data of one server-sent status event.
type StatusEvent struct {
	JobID           uuid.UUID `json:"job_id"`
	Status          string    `json:"status"`
	StatusMessage   string    `json:"status_message"`
	ProgressPercent int       `json:"progress_percent"`
	VideoURL        string    `json:"video_url,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func toBroadcastResponse(j *models.Job) BroadcastResponse {
	resp := BroadcastResponse{
		JobID:           j.ID,
		Status:          j.Status.String(),
		StatusMessage:   j.StatusMessage,
		ProgressPercent: j.ProgressPercent,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
	switch j.Status {
	case domain.Completed:
		resp.VideoURL = j.OutputVideoPath
	case domain.Failed:
		resp.ErrorMessage = j.ErrorMessage
	}
	return resp
}

func jobEvent(j *models.Job) StatusEvent {
	r := toBroadcastResponse(j)
	return StatusEvent{
		JobID:           r.JobID,
		Status:          r.Status,
		StatusMessage:   r.StatusMessage,
		ProgressPercent: r.ProgressPercent,
		VideoURL:        r.VideoURL,
		ErrorMessage:    r.ErrorMessage,
		OccurredAt:      j.UpdatedAt,
	}
}

func messageEvent(m models.BroadcastStatusMessage) StatusEvent {
	ev := StatusEvent{
		JobID:           m.BroadcastID,
		Status:          m.Status.String(),
		StatusMessage:   m.StatusMessage,
		ProgressPercent: m.ProgressPercent,
		OccurredAt:      m.OccurredAt,
	}
	switch m.Status {
	case domain.Completed:
		ev.VideoURL = m.OutputVideoPath
	case domain.Failed:
		ev.ErrorMessage = m.ErrorMessage
	}
	return ev
}
