package models

import "strings"

type Business struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Subcategory  string  `json:"subcategory"`
	Description  string  `json:"description"`
	Address      string  `json:"address"`
	Phone        string  `json:"phone"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	Image        string  `json:"image,omitempty"`
	IsOpen       bool    `json:"isOpen"`
	OpeningHours string  `json:"openingHours,omitempty"`
	SyncStatus   string  `json:"status,omitempty"` // empty for confirmed, pending_sync for offline writes
}

// IsLocal reports whether the business only exists in the local mirror,
// i.e. was created offline and has not been confirmed by the remote API yet.
func (b *Business) IsLocal() bool {
	return strings.HasPrefix(b.ID, TempIDPrefix)
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// BusinessFilter mirrors the query parameters of GET /businesses.
type BusinessFilter struct {
	Category    string
	Subcategory string
	Search      string
}

func (f BusinessFilter) Params() map[string]string {
	params := make(map[string]string)
	if f.Category != "" {
		params["category"] = f.Category
	}
	if f.Subcategory != "" {
		params["subcategory"] = f.Subcategory
	}
	if f.Search != "" {
		params["search"] = f.Search
	}
	return params
}
