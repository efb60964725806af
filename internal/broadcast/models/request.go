package models

import "strings"

type Category string

const (
	Inrikes Category = "Inrikes"
	Utrikes Category = "Utrikes"
	Sport   Category = "Sport"
	Politik Category = "Politik"
	Noje    Category = "Noje"
	Ekonomi Category = "Ekonomi"
	Teknik  Category = "Teknik"
	Vader   Category = "Vader"
	Kultur  Category = "Kultur"
)

var knownCategories = []Category{Inrikes, Utrikes, Sport, Politik, Noje, Ekonomi, Teknik, Vader, Kultur}

// Categories lists every known category in display order.
func Categories() []Category {
	return append([]Category(nil), knownCategories...)
}

// ParseCategory matches raw case-insensitively against the known categories.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range knownCategories {
		if strings.EqualFold(string(c), raw) {
			return c, true
		}
	}
	return "", false
}

type Request struct {
	TimePeriodHours int        `json:"time_period_hours"`
	Categories      []Category `json:"categories"`
	MaxArticles     int        `json:"max_articles"`
}

func DefaultRequest() Request {
	return Request{
		TimePeriodHours: 24,
		Categories:      []Category{Inrikes, Utrikes, Sport, Politik},
		MaxArticles:     7,
	}
}

func (r Request) clone() Request {
	cp := r
	cp.Categories = append([]Category(nil), r.Categories...)
	return cp
}

// Includes reports whether c is part of the request's category filter.
func (r Request) Includes(c Category) bool {
	for _, rc := range r.Categories {
		if rc == c {
			return true
		}
	}
	return false
}
