package httpapi

import "net/http"

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /broadcasts", h.CreateBroadcast)
	// более конкретный шаблон выигрывает у /broadcasts/{id}
	mux.HandleFunc("GET /broadcasts/recent", h.ListRecent)
	mux.HandleFunc("GET /broadcasts/{id}", h.GetBroadcast)
	mux.HandleFunc("GET /broadcasts/{id}/events", h.StreamEvents)

	mux.HandleFunc("GET /news", h.PreviewNews)
	mux.HandleFunc("GET /news/categories", h.ListCategories)

	return mux
}
