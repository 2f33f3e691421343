// Package engine implements the provider-facing ingestion core: station
// identity, geo enrichment with cached external lookups, measure
// normalization and idempotent inserts. Adapters never talk to Mongo,
// Redis or Google directly, they go through a per-provider Handle.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/log"
)

// Store is the station and measure persistence the engine writes to.
// *database.Client is the production implementation.
type Store interface {
	UpsertStation(ctx context.Context, st *database.Station) error
	StationLocation(ctx context.Context, stationID string) (lon, lat float64, found bool, err error)
	EnsureMeasureStream(ctx context.Context, stationID string) error
	FindFix(ctx context.Context, stationID string) (*database.Fix, error)
	HasMeasure(ctx context.Context, stationID string, ts int64) (bool, error)
	InsertMeasures(ctx context.Context, stationID string, measures []database.Measure) (int, error)
	LatestMeasure(ctx context.Context, stationID string) (*database.Measure, error)
	SetLastMeasure(ctx context.Context, stationID string, m *database.Measure) error
	TouchProvider(ctx context.Context, code, name, url string, now time.Time) error
}

// Cache memoises external lookup outcomes. *cache.Cache is the production
// implementation; a missing key is an empty map, not an error.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]string, error)
	Put(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
}

// GeoService is the external enrichment API surface the engine consumes.
// *geo.GoogleClient is the production implementation.
type GeoService interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
	Elevation(ctx context.Context, points []LatLon) ([]float64, error)
}

// TimezoneFinder resolves an IANA zone name for a coordinate, or "" when
// none contains it.
type TimezoneFinder interface {
	TimezoneName(lat, lon float64) string
}

// Engine owns the shared dependencies behind every provider handle.
type Engine struct {
	store Store
	cache Cache
	geo   GeoService
	tz    TimezoneFinder
	now   func() time.Time
}

// Option tweaks an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's clock. Tests use it to pin receivedAt
// and lastSeenAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine over the given dependencies.
func New(store Store, cache Cache, geo GeoService, tz TimezoneFinder, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cache: cache,
		geo:   geo,
		tz:    tz,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProviderInfo identifies one upstream source. Code prefixes every
// station id, Name and URL end up on station and provider documents.
type ProviderInfo struct {
	Code string
	Name string
	URL  string
}

// Handle is the engine scoped to one provider: it stamps provider
// identity onto stations and measures and logs under the provider code.
type Handle struct {
	engine   *Engine
	provider ProviderInfo
	logger   *zap.SugaredLogger
}

// Handle returns the provider-scoped entry point. All three identity
// fields are mandatory.
func (e *Engine) Handle(p ProviderInfo) (*Handle, error) {
	if p.Code == "" || p.Name == "" || p.URL == "" {
		return nil, Invalidf("missing provider code, name or url")
	}
	return &Handle{
		engine:   e,
		provider: p,
		logger:   log.Named(p.Code),
	}, nil
}

// Provider returns the handle's provider identity.
func (h *Handle) Provider() ProviderInfo { return h.provider }

// Logger returns the provider-scoped logger, for adapters that want to
// log under the same name.
func (h *Handle) Logger() *zap.SugaredLogger { return h.logger }

// StationID builds the global station id from a provider-local one.
func (h *Handle) StationID(providerID string) string {
	return h.provider.Code + "-" + providerID
}
