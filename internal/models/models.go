package models

import (
	"time"

	"completions-gateway/internal/config"
)

type ListResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// BuildListResponse lists the configured model names in sorted order.
func BuildListResponse(cfg *config.Config, now time.Time) ListResponse {
	names := cfg.ModelNames()
	items := make([]Model, 0, len(names))
	for _, name := range names {
		route, _ := cfg.RouteByModel(name)
		items = append(items, Model{
			ID:      name,
			Object:  "model",
			Created: now.Unix(),
			OwnedBy: route.OwnedBy,
		})
	}
	return ListResponse{
		Object: "list",
		Data:   items,
	}
}
