package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/ports"
	"github.com/romariotrain/newsroom/internal/broadcast/service"
)

const (
	defaultRecent = 10
	maxRecent     = 50
)

type Broadcasts interface {
	StartBroadcast(ctx context.Context, req models.Request) (*models.Job, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListRecent(ctx context.Context, n int) ([]*models.Job, error)
}

type StatusFeed interface {
	Subscribe(jobID uuid.UUID, buffer int) (<-chan models.BroadcastStatusMessage, func())
}

type Handler struct {
	svc       Broadcasts
	feed      StatusFeed
	news      ports.NewsSource
	keepAlive time.Duration
	logger    zerolog.Logger
}

func New(svc Broadcasts, feed StatusFeed, news ports.NewsSource, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		feed:      feed,
		news:      news,
		keepAlive: 15 * time.Second,
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body CreateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.StartBroadcast(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toBroadcastResponse(job))
}

func (h *Handler) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.GetJobStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBroadcastResponse(job))
}

func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	count := defaultRecent
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorJSON(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxRecent)
	}

	jobs, err := h.svc.ListRecent(r.Context(), count)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]BroadcastResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toBroadcastResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

// StreamEvents writes the current job snapshot and then every status change
// as server-sent events until the job is terminal or the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorJSON(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// подписка до чтения снапшота, чтобы не потерять переход между ними
	updates, unsubscribe := h.feed.Subscribe(id, 0)
	defer unsubscribe()

	job, err := h.svc.GetJobStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, jobEvent(job)); err != nil {
		return
	}
	flusher.Flush()
	if job.Status.IsTerminal() {
		return
	}

	last := job.ProgressPercent
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-updates:
			if !ok {
				return
			}
			// события из очереди могут быть старше снапшота
			if !msg.Status.IsTerminal() && msg.ProgressPercent < last {
				continue
			}
			last = msg.ProgressPercent
			if err := writeEvent(w, messageEvent(msg)); err != nil {
				h.logger.Debug().Err(err).Str("broadcast_id", id.String()).Msg("event stream closed")
				return
			}
			flusher.Flush()
			if msg.Status.IsTerminal() {
				return
			}
		}
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "broadcast not found")
	case errors.Is(err, models.ErrInvalidArgument):
		writeErrorJSON(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, service.ErrShuttingDown):
		writeErrorJSON(w, http.StatusServiceUnavailable, "shutting down")
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeEvent(w http.ResponseWriter, ev StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
