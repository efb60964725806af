package models

import "time"

type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	SourceName  string    `json:"source_name"`
	SourceURL   string    `json:"source_url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    Category  `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}
