// Package toolregistry discovers tool modules via their /manifest
// endpoint, caches the result in the shared bus and in-process, filters
// tools by permission, and dispatches canonical tool calls to the owning
// module's /execute endpoint.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/pkg/models"
)

const manifestCacheTTL = time.Hour

// Registry discovers, caches, and dispatches to tool modules.
type Registry struct {
	endpoints    map[string]string // module name -> base URL
	manifestPath string
	executePath  string
	dispatchTimeout time.Duration

	bus     bus.Bus
	auth    *svcauth.Service
	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	manifests map[string]*models.ModuleManifest
}

// Config configures a Registry.
type Config struct {
	Endpoints       map[string]string
	ManifestPath    string
	ExecutePath     string
	DispatchTimeout time.Duration
	Metrics         *observability.Metrics // nil disables dispatch instrumentation
}

// New constructs a Registry. bus and auth may be nil: a nil bus skips the
// shared manifest cache and a nil auth sends no bearer token.
func New(cfg Config, b bus.Bus, auth *svcauth.Service, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	manifestPath := cfg.ManifestPath
	if manifestPath == "" {
		manifestPath = "/manifest"
	}
	executePath := cfg.ExecutePath
	if executePath == "" {
		executePath = "/execute"
	}
	dispatchTimeout := cfg.DispatchTimeout
	if dispatchTimeout == 0 {
		dispatchTimeout = 30 * time.Second
	}
	return &Registry{
		endpoints:       cfg.Endpoints,
		manifestPath:    manifestPath,
		executePath:     executePath,
		dispatchTimeout: dispatchTimeout,
		bus:             b,
		auth:            auth,
		client:          &http.Client{Timeout: dispatchTimeout},
		logger:          logger,
		metrics:         cfg.Metrics,
		manifests:       map[string]*models.ModuleManifest{},
	}
}

func manifestCacheKey(module string) string {
	return "manifest:" + module
}

// RefreshAll fetches a fresh manifest from every configured module,
// caching each one in the bus (TTL ~1h) and in-process. A module that
// fails to respond keeps its last-known manifest and logs a warning.
func (r *Registry) RefreshAll(ctx context.Context) {
	for module, baseURL := range r.endpoints {
		if err := r.refreshOne(ctx, module, baseURL); err != nil {
			r.logger.Warn("manifest refresh failed", "module", module, "error", err)
		}
	}
}

func (r *Registry) refreshOne(ctx context.Context, module, baseURL string) error {
	manifest, err := r.fetchManifest(ctx, module, baseURL)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.manifests[module] = manifest
	r.mu.Unlock()

	if r.bus != nil {
		if payload, err := json.Marshal(manifest); err == nil {
			if err := r.bus.Set(ctx, manifestCacheKey(module), payload, manifestCacheTTL); err != nil {
				r.logger.Warn("manifest cache write failed", "module", module, "error", err)
			}
		}
	}
	return nil
}

func (r *Registry) fetchManifest(ctx context.Context, module, baseURL string) (*models.ModuleManifest, error) {
	url := strings.TrimRight(baseURL, "/") + r.manifestPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request for %s: %w", module, err)
	}
	if r.auth != nil {
		r.auth.SetBearer(req)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", module, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request for %s returned status %d", module, resp.StatusCode)
	}

	var manifest models.ModuleManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest for %s: %w", module, err)
	}
	return &manifest, nil
}

// Manifest returns the cached manifest for a module, checking the
// in-process cache first and falling back to the bus KV cache.
func (r *Registry) Manifest(ctx context.Context, module string) (*models.ModuleManifest, bool) {
	r.mu.RLock()
	manifest, ok := r.manifests[module]
	r.mu.RUnlock()
	if ok {
		return manifest, true
	}

	if r.bus == nil {
		return nil, false
	}
	payload, found, err := r.bus.Get(ctx, manifestCacheKey(module))
	if err != nil || !found {
		return nil, false
	}
	var m models.ModuleManifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, false
	}

	r.mu.Lock()
	r.manifests[module] = &m
	r.mu.Unlock()
	return &m, true
}

// ToolsFor returns the tools a user may invoke: the module must be in
// allowedModules and the user's permission must be at least the tool's
// required permission.
func (r *Registry) ToolsFor(ctx context.Context, userPermission models.PermissionLevel, allowedModules []string) []models.ToolDefinition {
	allowed := make(map[string]bool, len(allowedModules))
	for _, m := range allowedModules {
		allowed[m] = true
	}

	var result []models.ToolDefinition
	for module := range r.allKnownModules(ctx) {
		if !allowed[module] {
			continue
		}
		manifest, ok := r.Manifest(ctx, module)
		if !ok {
			continue
		}
		for _, tool := range manifest.Tools {
			if userPermission.AtLeast(tool.RequiredPermission) {
				result = append(result, tool)
			}
		}
	}
	return result
}

func (r *Registry) allKnownModules(ctx context.Context) map[string]bool {
	modules := map[string]bool{}
	for module := range r.endpoints {
		modules[module] = true
	}
	r.mu.RLock()
	for module := range r.manifests {
		modules[module] = true
	}
	r.mu.RUnlock()
	return modules
}
