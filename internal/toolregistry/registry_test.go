package toolregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/pkg/models"
)

func newTestManifestServer(t *testing.T, manifest models.ModuleManifest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manifest)
	}))
}

func TestRefreshAllPopulatesManifestsAndBusCache(t *testing.T) {
	server := newTestManifestServer(t, models.ModuleManifest{
		ModuleName: "weather",
		Tools: []models.ToolDefinition{
			{Name: "weather.get_forecast", RequiredPermission: models.PermissionUser},
		},
	})
	defer server.Close()

	b := bus.NewMemoryBus()
	reg := New(Config{Endpoints: map[string]string{"weather": server.URL}}, b, nil, nil)

	reg.RefreshAll(context.Background())

	manifest, ok := reg.Manifest(context.Background(), "weather")
	if !ok {
		t.Fatal("expected manifest to be cached")
	}
	if len(manifest.Tools) != 1 || manifest.Tools[0].Name != "weather.get_forecast" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	cached, found, err := b.Get(context.Background(), manifestCacheKey("weather"))
	if err != nil || !found {
		t.Fatalf("expected bus cache entry, found=%v err=%v", found, err)
	}
	if len(cached) == 0 {
		t.Fatal("expected non-empty cached manifest payload")
	}
}

func TestManifestFallsBackToBusCacheWhenNotInProcess(t *testing.T) {
	b := bus.NewMemoryBus()
	manifest := models.ModuleManifest{ModuleName: "calendar", Tools: []models.ToolDefinition{{Name: "calendar.create_event"}}}
	payload, _ := json.Marshal(manifest)
	_ = b.Set(context.Background(), manifestCacheKey("calendar"), payload, 0)

	reg := New(Config{}, b, nil, nil)
	got, ok := reg.Manifest(context.Background(), "calendar")
	if !ok {
		t.Fatal("expected manifest recovered from bus cache")
	}
	if got.ModuleName != "calendar" {
		t.Fatalf("unexpected manifest: %+v", got)
	}
}

func TestToolsForFiltersByModuleAndPermission(t *testing.T) {
	server := newTestManifestServer(t, models.ModuleManifest{
		ModuleName: "weather",
		Tools: []models.ToolDefinition{
			{Name: "weather.get_forecast", RequiredPermission: models.PermissionUser},
			{Name: "weather.admin_reset", RequiredPermission: models.PermissionAdmin},
		},
	})
	defer server.Close()

	b := bus.NewMemoryBus()
	reg := New(Config{Endpoints: map[string]string{"weather": server.URL}}, b, nil, nil)
	reg.RefreshAll(context.Background())

	tools := reg.ToolsFor(context.Background(), models.PermissionUser, []string{"weather"})
	if len(tools) != 1 || tools[0].Name != "weather.get_forecast" {
		t.Fatalf("expected only user-level tool, got %+v", tools)
	}

	none := reg.ToolsFor(context.Background(), models.PermissionUser, []string{"calendar"})
	if len(none) != 0 {
		t.Fatalf("expected no tools for disallowed module, got %+v", none)
	}

	admin := reg.ToolsFor(context.Background(), models.PermissionAdmin, []string{"weather"})
	if len(admin) != 2 {
		t.Fatalf("expected both tools for admin, got %d", len(admin))
	}
}
