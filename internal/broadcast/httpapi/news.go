package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type ArticleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	SourceName  string    `json:"source_name"`
	SourceURL   string    `json:"source_url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}

// newsQuery parses GET /news parameters. Without categories every known
// category is searched; unknown names are ignored.
func newsQuery(r *http.Request) (models.Request, error) {
	q := r.URL.Query()
	req := models.DefaultRequest()
	req.Categories = models.Categories()

	if raw := q.Get("time_period_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minHours || n > maxHours {
			return req, fmt.Errorf("%w: time_period_hours must be between %d and %d", models.ErrInvalidArgument, minHours, maxHours)
		}
		req.TimePeriodHours = n
	}
	if raw := q.Get("max_articles"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxArticles {
			return req, fmt.Errorf("%w: max_articles must be between 1 and %d", models.ErrInvalidArgument, maxArticles)
		}
		req.MaxArticles = n
	}

	if raw := strings.TrimSpace(q.Get("categories")); raw != "" {
		body := CreateBroadcastRequest{Categories: strings.Split(raw, ",")}
		// повторно используем разбор категорий из POST /broadcasts
		parsed, err := body.toRequest()
		if err != nil {
			return req, err
		}
		req.Categories = parsed.Categories
	}
	return req, nil
}

// PreviewNews returns the articles a broadcast with the same filters would
// start from.
func (h *Handler) PreviewNews(w http.ResponseWriter, r *http.Request) {
	req, err := newsQuery(r)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	articles, err := h.news.FetchArticles(r.Context(), req.TimePeriodHours, req.Categories, req.MaxArticles)
	if err != nil {
		h.logger.Error().Err(err).Msg("news preview failed")
		writeErrorJSON(w, http.StatusBadGateway, "news source unavailable")
		return
	}

	out := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, ArticleResponse{
			ID:          a.ID,
			Title:       a.Title,
			Summary:     a.Summary,
			SourceName:  a.SourceName,
			SourceURL:   a.SourceURL,
			ImageURL:    a.ImageURL,
			Category:    string(a.Category),
			PublishedAt: a.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := models.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	writeJSON(w, http.StatusOK, out)
}
