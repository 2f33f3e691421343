package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/pkg/units"
)

// --- fakes -----------------------------------------------------------------

type fakeStore struct {
	stations map[string]*database.Station
	streams  map[string]bool
	fixes    map[string]*database.Fix
	measures map[string]map[int64]database.Measure
	last     map[string]*database.Measure
	touched  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stations: map[string]*database.Station{},
		streams:  map[string]bool{},
		fixes:    map[string]*database.Fix{},
		measures: map[string]map[int64]database.Measure{},
		last:     map[string]*database.Measure{},
	}
}

func (s *fakeStore) UpsertStation(_ context.Context, st *database.Station) error {
	copied := *st
	s.stations[st.ID] = &copied
	return nil
}

func (s *fakeStore) StationLocation(_ context.Context, stationID string) (float64, float64, bool, error) {
	st, ok := s.stations[stationID]
	if !ok {
		return 0, 0, false, nil
	}
	return st.Location.Longitude(), st.Location.Latitude(), true, nil
}

func (s *fakeStore) EnsureMeasureStream(_ context.Context, stationID string) error {
	s.streams[stationID] = true
	return nil
}

func (s *fakeStore) FindFix(_ context.Context, stationID string) (*database.Fix, error) {
	return s.fixes[stationID], nil
}

func (s *fakeStore) HasMeasure(_ context.Context, stationID string, ts int64) (bool, error) {
	_, ok := s.measures[stationID][ts]
	return ok, nil
}

func (s *fakeStore) InsertMeasures(_ context.Context, stationID string, measures []database.Measure) (int, error) {
	if s.measures[stationID] == nil {
		s.measures[stationID] = map[int64]database.Measure{}
	}
	inserted := 0
	for _, m := range measures {
		if _, dup := s.measures[stationID][m.ID]; dup {
			continue
		}
		s.measures[stationID][m.ID] = m
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) LatestMeasure(_ context.Context, stationID string) (*database.Measure, error) {
	var newest *database.Measure
	for id := range s.measures[stationID] {
		m := s.measures[stationID][id]
		if newest == nil || m.ID > newest.ID {
			newest = &m
		}
	}
	return newest, nil
}

func (s *fakeStore) SetLastMeasure(_ context.Context, stationID string, m *database.Measure) error {
	s.last[stationID] = m
	return nil
}

func (s *fakeStore) TouchProvider(_ context.Context, _, _, _ string, _ time.Time) error {
	s.touched++
	return nil
}

type fakeCache struct {
	entries map[string]map[string]string
	ttls    map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range c.entries[key] {
		out[k] = v
	}
	return out, nil
}

func (c *fakeCache) Put(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	c.entries[key] = fields
	c.ttls[key] = ttl
	return nil
}

type fakeGeo struct {
	geocodeBody    string
	geocodeErr     error
	geocodeCalls   int
	elevations     []float64
	elevationErr   error
	elevationCalls int
}

func (g *fakeGeo) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	g.geocodeCalls++
	return g.geocodeBody, g.geocodeErr
}

func (g *fakeGeo) Elevation(_ context.Context, points []LatLon) ([]float64, error) {
	g.elevationCalls++
	if g.elevationErr != nil {
		return nil, g.elevationErr
	}
	if len(g.elevations) == len(points) {
		return g.elevations, nil
	}
	out := make([]float64, len(points))
	for i := range out {
		if i < len(g.elevations) {
			out[i] = g.elevations[i]
		}
	}
	return out, nil
}

type fakeTz struct{ name string }

func (f fakeTz) TimezoneName(_, _ float64) string { return f.name }

// --- harness ---------------------------------------------------------------

var testClock = func() time.Time {
	return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
}

type harness struct {
	store  *fakeStore
	cache  *fakeCache
	geo    *fakeGeo
	handle *Handle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		cache: newFakeCache(),
		geo: &fakeGeo{
			elevations: []float64{830, 800, 805, 810, 790, 820, 800},
		},
	}
	eng := New(h.store, h.cache, h.geo, fakeTz{name: "Europe/Zurich"}, WithClock(testClock))
	handle, err := eng.Handle(ProviderInfo{Code: "test", Name: "test.org", URL: "https://test.org"})
	require.NoError(t, err)
	h.handle = handle
	return h
}

func f64(v float64) *float64 { return &v }

func basicRequest() SaveStationRequest {
	return SaveStationRequest{
		ProviderID: "1",
		Names:      FixedNames{Short: "Dent", Name: "Dent de Vaulion"},
		Latitude:   f64(46.678611),
		Longitude:  f64(6.368333),
		Status:     database.StatusGreen,
	}
}

// --- station tests ---------------------------------------------------------

func TestSaveStationFirstSighting(t *testing.T) {
	h := newHarness(t)

	station, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)

	assert.Equal(t, "test-1", station.ID)
	assert.Equal(t, "1", station.ProviderID)
	assert.Equal(t, "test", station.ProviderCode)
	assert.Equal(t, "Dent", station.ShortName)
	assert.Equal(t, 830, station.Altitude)
	assert.False(t, station.Peak)
	assert.Equal(t, "Europe/Zurich", station.Timezone)
	assert.Equal(t, map[string]string{"default": "https://test.org"}, station.URLs)
	assert.Equal(t, database.StatusGreen, station.Status)
	assert.Equal(t, testClock().UTC(), station.LastSeenAt)
	assert.InDelta(t, 6.368333, station.Location.Longitude(), 1e-9)
	assert.InDelta(t, 46.678611, station.Location.Latitude(), 1e-9)

	assert.True(t, h.store.streams["test-1"], "measure stream must exist")
	assert.NotNil(t, h.store.stations["test-1"])
	assert.Equal(t, 1, h.geo.elevationCalls)
}

func TestSaveStationReusesCachedElevation(t *testing.T) {
	h := newHarness(t)

	_, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)
	_, err = h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, h.geo.elevationCalls, "cached coordinate must not re-hit the API")
}

func TestSaveStationPeakDetection(t *testing.T) {
	h := newHarness(t)
	// The center overlooks one sample by 100 m over a 500 m radius: a
	// glide ratio of 5.
	h.geo.elevations = []float64{1000, 980, 990, 900, 995, 985, 990}

	station, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)
	assert.True(t, station.Peak)
	assert.Equal(t, 1000, station.Altitude)
}

func TestSaveStationExplicitAltitudeWins(t *testing.T) {
	h := newHarness(t)
	req := basicRequest()
	req.Altitude = units.New(1234, units.Meters)

	station, err := h.handle.SaveStation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1234, station.Altitude)
	// Peak detection still samples the terrain.
	assert.Equal(t, 1, h.geo.elevationCalls)
}

func TestSaveStationValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*SaveStationRequest)
	}{
		{"missing provider id", func(r *SaveStationRequest) { r.ProviderID = "" }},
		{"missing latitude", func(r *SaveStationRequest) { r.Latitude = nil }},
		{"latitude out of range", func(r *SaveStationRequest) { r.Latitude = f64(91) }},
		{"longitude out of range", func(r *SaveStationRequest) { r.Longitude = f64(-181) }},
		{"empty names", func(r *SaveStationRequest) { r.Names = FixedNames{} }},
		{"urls without default", func(r *SaveStationRequest) { r.URLs = map[string]string{"fr": "https://x"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := basicRequest()
			tt.mutate(&req)
			_, err := h.handle.SaveStation(ctx, req)
			var invalid *InvalidInputError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestSaveStationUsageLimitCachedAndFailsFast(t *testing.T) {
	h := newHarness(t)
	h.geo.elevationErr = &UsageLimitError{Msg: "OVER_QUERY_LIMIT"}

	_, err := h.handle.SaveStation(context.Background(), basicRequest())
	var provider *ProviderError
	require.ErrorAs(t, err, &provider)

	// The failure is cached with the short back-off TTL.
	key := "alt/46.678611,6.368333"
	assert.NotEmpty(t, h.cache.entries[key]["error"])
	ttl := h.cache.ttls[key]
	assert.Greater(t, ttl, 45*time.Minute)
	assert.Less(t, ttl, 75*time.Minute)

	// A retry fails on the cache without touching the API again.
	_, err = h.handle.SaveStation(context.Background(), basicRequest())
	assert.ErrorAs(t, err, &provider)
	assert.Equal(t, 1, h.geo.elevationCalls)
}

func TestSaveStationTimeoutNeverCached(t *testing.T) {
	h := newHarness(t)
	h.geo.elevationErr = context.DeadlineExceeded

	_, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.cache.entries["alt/46.678611,6.368333"])

	// The next run retries the lookup.
	h.geo.elevationErr = nil
	_, err = h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, h.geo.elevationCalls)
}

func TestSaveStationProviderErrorCachedLong(t *testing.T) {
	h := newHarness(t)
	h.geo.elevationErr = Providerf("ZERO_RESULTS")

	_, err := h.handle.SaveStation(context.Background(), basicRequest())
	var provider *ProviderError
	require.ErrorAs(t, err, &provider)
	ttl := h.cache.ttls["alt/46.678611,6.368333"]
	assert.Greater(t, ttl, 28*24*time.Hour)
}

func TestSaveStationFixOverrides(t *testing.T) {
	h := newHarness(t)
	h.store.fixes["test-1"] = &database.Fix{
		Short: strPtr("Fixed"),
		Alt:   f64(999),
		Peak:  boolPtr(true),
	}

	station, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)
	assert.Equal(t, "Fixed", station.ShortName)
	assert.Equal(t, "Dent de Vaulion", station.Name)
	assert.Equal(t, 999, station.Altitude)
	assert.True(t, station.Peak)
}

func TestSaveStationMovedStationRefreshesLookups(t *testing.T) {
	h := newHarness(t)
	_, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)

	// Moving ~100 km invalidates the old cached coordinate.
	req := basicRequest()
	req.Latitude = f64(47.6)
	_, err = h.handle.SaveStation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.geo.elevationCalls)
}

// --- measure tests ---------------------------------------------------------

func savedStation(t *testing.T, h *harness) *database.Station {
	t.Helper()
	station, err := h.handle.SaveStation(context.Background(), basicRequest())
	require.NoError(t, err)
	return station
}

func TestCreateMeasureNormalizesUnits(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)

	m, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:          1714552800,
		WindDirection: units.New(270, units.Degree),
		WindAverage:   units.New(3, units.MetersPerSecond),
		WindMaximum:   units.New(10, units.Knots),
		Temperature:   units.New(68, units.Fahrenheit),
		Humidity:      units.Raw(55.42),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1714552800), m.ID)
	assert.Equal(t, 270, m.WindDirection)
	assert.InDelta(t, 10.8, m.WindAverage, 1e-9)
	assert.InDelta(t, 18.5, m.WindMaximum, 1e-9)
	require.NotNil(t, m.Temperature)
	assert.InDelta(t, 20.0, *m.Temperature, 1e-9)
	require.NotNil(t, m.Humidity)
	assert.InDelta(t, 55.4, *m.Humidity, 1e-9)
	assert.Nil(t, m.Pressure)
	assert.Nil(t, m.Rain)
	assert.Equal(t, time.Unix(1714552800, 0).UTC(), m.Time)
	assert.Equal(t, testClock().UTC(), m.ReceivedAt)
}

func TestCreateMeasureMissingWindMembersDefaultToZero(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)

	m, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:        1714552800,
		WindAverage: units.Raw(12),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, m.WindDirection)
	assert.InDelta(t, 12.0, m.WindAverage, 1e-9)
	assert.InDelta(t, 0.0, m.WindMaximum, 1e-9)
}

func TestCreateMeasureRequiresSomeWind(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)

	_, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:        1714552800,
		Temperature: units.Raw(20),
	})
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestCreateMeasureDerivesStationPressure(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h) // altitude 830

	m, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:          1714552800,
		WindDirection: units.New(180, units.Degree),
		WindAverage:   units.Raw(10),
		WindMaximum:   units.Raw(15),
		Pressure:      units.Pressure{QNH: units.New(1013, units.HectoPascal)},
	})
	require.NoError(t, err)

	require.NotNil(t, m.Pressure)
	require.NotNil(t, m.Pressure.QFE)
	assert.InDelta(t, 917.2129, *m.Pressure.QFE, 0.001)
	require.NotNil(t, m.Pressure.QNH)
	assert.InDelta(t, 1013, *m.Pressure.QNH, 1e-9)
	assert.Nil(t, m.Pressure.QFF, "no temperature or humidity, no QFF")
}

func TestCreateMeasureDerivesSeaLevelPressure(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)

	m, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:          1714552800,
		WindDirection: units.New(180, units.Degree),
		WindAverage:   units.Raw(10),
		WindMaximum:   units.Raw(15),
		Temperature:   units.Raw(15),
		Humidity:      units.Raw(50),
		Pressure:      units.Pressure{QFE: units.New(920, units.HectoPascal)},
	})
	require.NoError(t, err)

	require.NotNil(t, m.Pressure)
	require.NotNil(t, m.Pressure.QFF)
	assert.Greater(t, *m.Pressure.QFF, 920.0, "sea-level pressure exceeds station pressure")
	require.NotNil(t, m.Pressure.QNH)
}

func TestCreateMeasureAppliesFixOffsets(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)
	h.store.fixes[station.ID] = &database.Fix{
		Measures: map[string]float64{"w-dir": 100, "w-avg": 1.5},
	}

	m, err := h.handle.CreateMeasure(context.Background(), station, MeasureInput{
		Time:          1714552800,
		WindDirection: units.New(300, units.Degree),
		WindAverage:   units.Raw(10),
		WindMaximum:   units.Raw(15),
	})
	require.NoError(t, err)
	assert.Equal(t, 40, m.WindDirection, "direction wraps around the compass")
	assert.InDelta(t, 11.5, m.WindAverage, 1e-9)
}

func TestInsertMeasuresUpdatesLastAndProvider(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)
	ctx := context.Background()

	measures := []database.Measure{
		{ID: 100, Time: time.Unix(100, 0).UTC()},
		{ID: 200, Time: time.Unix(200, 0).UTC()},
	}
	require.NoError(t, h.handle.InsertMeasures(ctx, station, measures))

	require.NotNil(t, h.store.last[station.ID])
	assert.Equal(t, int64(200), h.store.last[station.ID].ID)
	assert.Equal(t, 1, h.store.touched)

	exists, err := h.handle.HasMeasure(ctx, station, 100)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsertMeasuresDropsDuplicateInstants(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)
	ctx := context.Background()

	first := []database.Measure{{ID: 100, WindAverage: 10}}
	require.NoError(t, h.handle.InsertMeasures(ctx, station, first))
	again := []database.Measure{{ID: 100, WindAverage: 99}}
	require.NoError(t, h.handle.InsertMeasures(ctx, station, again))

	assert.InDelta(t, 10.0, h.store.measures[station.ID][100].WindAverage, 1e-9,
		"the first write wins")
}

func TestInsertMeasuresEmptyBatchIsNoop(t *testing.T) {
	h := newHarness(t)
	station := savedStation(t, h)
	require.NoError(t, h.handle.InsertMeasures(context.Background(), station, nil))
	assert.Zero(t, h.store.touched)
}

func TestHandleRequiresIdentity(t *testing.T) {
	eng := New(newFakeStore(), newFakeCache(), &fakeGeo{}, fakeTz{name: "UTC"})
	_, err := eng.Handle(ProviderInfo{Code: "x"})
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
