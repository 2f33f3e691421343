package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/windmobile/windfabric/internal/cache"
	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/pkg/units"
)

const (
	// elevationRadiusM is the sampling circle radius for peak detection.
	elevationRadiusM = 500.0
	// elevationSamples is the number of circle points around the station.
	elevationSamples = 6
	// movedThresholdKm is how far a station must move before its cached
	// enrichment is considered stale.
	movedThresholdKm = 5.0
)

// SaveStationRequest describes one station as an adapter sees it. Names,
// Latitude, Longitude and Status are mandatory; Altitude, Timezone and
// the url fields are optional and the engine fills the gaps.
type SaveStationRequest struct {
	ProviderID string
	Names      Names
	Latitude   *float64
	Longitude  *float64
	Status     database.Status

	// Altitude overrides the elevation service when present.
	Altitude units.Value
	// Timezone is an IANA zone id; resolved from coordinates when empty.
	Timezone string
	// URL is the station's public page. URLs is the multilingual variant
	// and must contain a "default" entry when set. When both are empty the
	// provider url is used.
	URL  string
	URLs map[string]string
}

// SaveStation upserts a station document, enriching it with geocoded
// names, elevation, peak detection and timezone as needed, and makes sure
// its measure stream exists. External lookups are memoised per coordinate
// in the cache; cached failures fail the save until they expire.
func (h *Handle) SaveStation(ctx context.Context, req SaveStationRequest) (*database.Station, error) {
	e := h.engine

	if req.ProviderID == "" {
		return nil, Invalidf("missing provider id")
	}
	stationID := h.StationID(req.ProviderID)

	if req.Latitude == nil || req.Longitude == nil {
		return nil, Invalidf("missing latitude or longitude")
	}
	lat := units.Round(*req.Latitude, 6)
	lon := units.Round(*req.Longitude, 6)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, Invalidf("invalid latitude '%s' or longitude '%s'", formatCoord(lat), formatCoord(lon))
	}

	var short, name, countryCode string
	switch names := req.Names.(type) {
	case FixedNames:
		short, name = names.Short, names.Name
		if short == "" || name == "" {
			return nil, Invalidf("invalid station short name '%s' or name '%s'", short, name)
		}
	case DerivedNames:
		geocoded, country, err := h.stationGeocoding(ctx, stationID, lat, lon)
		if err != nil {
			return nil, err
		}
		resolved := names(geocoded)
		short, name = resolved.Short, resolved.Name
		countryCode = country
		if short == "" || name == "" {
			return nil, Providerf("invalid station short name '%s' or name '%s'", short, name)
		}
	default:
		return nil, Invalidf("invalid station names")
	}

	elevation, isPeak, err := h.stationElevation(ctx, stationID, lat, lon)
	if err != nil {
		return nil, err
	}
	altitude := elevation
	if req.Altitude.Valid() {
		altitude, err = req.Altitude.In(units.Meters)
		if err != nil {
			return nil, Invalidf("invalid altitude: %v", err)
		}
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = e.tz.TimezoneName(lat, lon)
	}
	if _, err := time.LoadLocation(timezone); timezone == "" || err != nil {
		return nil, Providerf("unable to determine station timezone")
	}

	urls, err := normalizeURLs(req, h.provider.URL)
	if err != nil {
		return nil, err
	}

	fix, err := e.store.FindFix(ctx, stationID)
	if err != nil {
		return nil, err
	}

	station := h.buildStation(req.ProviderID, stationID, short, name, lat, lon,
		altitude, isPeak, req.Status, countryCode, timezone, urls, fix)

	if err := e.store.UpsertStation(ctx, station); err != nil {
		return nil, err
	}
	if err := e.store.EnsureMeasureStream(ctx, stationID); err != nil {
		return nil, err
	}
	return station, nil
}

// buildStation assembles the document, letting a fix override the
// adapter-supplied fields.
func (h *Handle) buildStation(providerID, stationID, short, name string,
	lat, lon, altitude float64, isPeak bool, status database.Status,
	countryCode, timezone string, urls map[string]string, fix *database.Fix) *database.Station {

	if fix != nil {
		if fix.Short != nil {
			short = *fix.Short
		}
		if fix.Name != nil {
			name = *fix.Name
		}
		if fix.Alt != nil {
			altitude = *fix.Alt
		}
		if fix.Peak != nil {
			isPeak = *fix.Peak
		}
		if fix.Latitude != nil {
			lat = units.Round(*fix.Latitude, 6)
		}
		if fix.Longitude != nil {
			lon = units.Round(*fix.Longitude, 6)
		}
	}

	return &database.Station{
		ID:           stationID,
		ProviderID:   providerID,
		ProviderCode: h.provider.Code,
		ProviderName: h.provider.Name,
		URLs:         urls,
		ShortName:    short,
		Name:         name,
		Altitude:     int(units.Round(altitude, 0)),
		Peak:         isPeak,
		Location:     database.NewGeoPoint(lon, lat),
		Status:       status,
		CountryCode:  countryCode,
		Timezone:     timezone,
		LastSeenAt:   h.engine.now().UTC(),
	}
}

// stationGeocoding returns the geocoded names and country for a
// coordinate, going to the geocoding API only when the cache is cold and
// the station has actually moved.
func (h *Handle) stationGeocoding(ctx context.Context, stationID string, lat, lon float64) (StationNames, string, error) {
	e := h.engine
	addressKey := "address2/" + formatCoord(lat) + "," + formatCoord(lon)

	cached, err := e.cache.Get(ctx, addressKey)
	if err != nil {
		return StationNames{}, "", err
	}
	if len(cached) == 0 {
		moved, err := h.coordinatesChanged(ctx, stationID, lat, lon)
		if err != nil {
			return StationNames{}, "", err
		}
		if moved {
			raw, err := e.geo.ReverseGeocode(ctx, lat, lon)
			if err := h.cacheLookupOutcome(ctx, addressKey, "json", raw, err, "geocoding"); err != nil {
				return StationNames{}, "", err
			}
			cached, err = e.cache.Get(ctx, addressKey)
			if err != nil {
				return StationNames{}, "", err
			}
		}
	}

	if errMsg := cached["error"]; errMsg != "" {
		return StationNames{}, "", Providerf("unable to get station geocoding for '%s': %s", addressKey, errMsg)
	}
	raw := cached["json"]
	if raw == "" {
		return StationNames{}, "", Providerf("no geocoding available for '%s'", addressKey)
	}
	results, err := parseGeocoding(raw)
	if err != nil {
		return StationNames{}, "", err
	}
	names := geocodedNames(results)
	if names == (StationNames{}) {
		h.logger.Warnf("geocoding: no address match for '%s'", addressKey)
	}
	country := geocodedCountry(results)
	if country == "" {
		h.logger.Warnf("geocoding: no country match for '%s'", addressKey)
	}
	return names, country, nil
}

// stationElevation returns the terrain elevation and peak flag for a
// coordinate, with the same cache discipline as geocoding.
func (h *Handle) stationElevation(ctx context.Context, stationID string, lat, lon float64) (float64, bool, error) {
	e := h.engine
	altKey := "alt/" + formatCoord(lat) + "," + formatCoord(lon)

	cached, err := e.cache.Get(ctx, altKey)
	if err != nil {
		return 0, false, err
	}
	if len(cached) == 0 {
		moved, err := h.coordinatesChanged(ctx, stationID, lat, lon)
		if err != nil {
			return 0, false, err
		}
		if moved {
			elevations, err := e.geo.Elevation(ctx, ElevationCircle(lat, lon, elevationRadiusM, elevationSamples))
			if err == nil && len(elevations) == 0 {
				err = Providerf("elevation: empty result for '%s'", altKey)
			}
			var fields map[string]string
			if err == nil {
				elevation, isPeak := detectPeak(elevations)
				fields = map[string]string{
					"alt":     strconv.FormatFloat(elevation, 'f', -1, 64),
					"is_peak": strconv.FormatBool(isPeak),
				}
			}
			if err := h.cachePut(ctx, altKey, fields, err, "elevation"); err != nil {
				return 0, false, err
			}
			cached, err = e.cache.Get(ctx, altKey)
			if err != nil {
				return 0, false, err
			}
		}
	}

	if errMsg := cached["error"]; errMsg != "" {
		return 0, false, Providerf("unable to get station elevation for '%s': %s", altKey, errMsg)
	}
	elevation, err := strconv.ParseFloat(cached["alt"], 64)
	if err != nil {
		return 0, false, Providerf("no elevation available for '%s'", altKey)
	}
	return elevation, cached["is_peak"] == "true", nil
}

// detectPeak flags a station as a peak when it overlooks any surrounding
// sample steeply enough: a glide ratio under 6 over the sampling radius.
func detectPeak(elevations []float64) (float64, bool) {
	elevation := elevations[0]
	for _, sample := range elevations[1:] {
		glideRatio := elevationRadiusM / (elevation - sample)
		if glideRatio > 0 && glideRatio < 6 {
			return elevation, true
		}
	}
	return elevation, false
}

// cacheLookupOutcome records a successful payload under field, or the
// error under "error" with the taxonomy's TTL. Timeouts propagate and are
// never cached.
func (h *Handle) cacheLookupOutcome(ctx context.Context, key, field, payload string, lookupErr error, apiName string) error {
	var fields map[string]string
	if lookupErr == nil {
		fields = map[string]string{field: payload}
	}
	return h.cachePut(ctx, key, fields, lookupErr, apiName)
}

func (h *Handle) cachePut(ctx context.Context, key string, fields map[string]string, lookupErr error, apiName string) error {
	e := h.engine
	if lookupErr == nil {
		return e.cache.Put(ctx, key, fields, cache.SuccessTTL())
	}
	if IsTimeout(lookupErr) {
		return lookupErr
	}
	switch lookupErr.(type) {
	case *UsageLimitError:
		return e.cache.Put(ctx, key, map[string]string{"error": lookupErr.Error()}, cache.UsageLimitTTL())
	case *ProviderError:
		return e.cache.Put(ctx, key, map[string]string{"error": lookupErr.Error()}, cache.ErrorTTL())
	default:
		h.logger.Errorf("unable to call %s API: %v", apiName, lookupErr)
		return e.cache.Put(ctx, key, map[string]string{"error": lookupErr.Error()}, cache.ErrorTTL())
	}
}

// coordinatesChanged reports whether the station is new or has moved more
// than the staleness threshold from its stored location.
func (h *Handle) coordinatesChanged(ctx context.Context, stationID string, lat, lon float64) (bool, error) {
	storedLon, storedLat, found, err := h.engine.store.StationLocation(ctx, stationID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return HaversineKm(storedLat, storedLon, lat, lon) >= movedThresholdKm, nil
}

func normalizeURLs(req SaveStationRequest, providerURL string) (map[string]string, error) {
	switch {
	case req.URLs != nil:
		if req.URLs["default"] == "" {
			return nil, Invalidf("no 'default' key in url")
		}
		return req.URLs, nil
	case req.URL != "":
		return map[string]string{"default": req.URL}, nil
	default:
		return map[string]string{"default": providerURL}, nil
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
