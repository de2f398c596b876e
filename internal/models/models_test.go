package models_test

import (
	"testing"
	"time"

	"completions-gateway/internal/config"
	"completions-gateway/internal/models"
)

func TestBuildListResponseSortedWithOwners(t *testing.T) {
	cfg, err := config.Parse([]byte(`
model_list:
  - model_name: gpt-4
    owned_by: anthropic
    params:
      api_key: key
  - model_name: claude-cli
    params:
      backend: command
      command: ["claude", "-p"]
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	now := time.Unix(1700000000, 0)
	got := models.BuildListResponse(cfg, now)
	if got.Object != "list" || len(got.Data) != 2 {
		t.Fatalf("unexpected list: %+v", got)
	}

	want := []models.Model{
		{ID: "claude-cli", Object: "model", Created: 1700000000, OwnedBy: "completions-gateway"},
		{ID: "gpt-4", Object: "model", Created: 1700000000, OwnedBy: "anthropic"},
	}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("data[%d] = %+v, want %+v", i, got.Data[i], want[i])
		}
	}
}
