package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

// locationStaleness is how old a pioupiou's last GPS fix may be before
// the station is downgraded.
const locationStaleness = 15 * 24 * time.Hour

// Pioupiou beacons report their own GPS position, so station names are
// derived from reverse geocoding with the beacon's advertised name as
// fallback.
func Pioupiou() Adapter {
	return Adapter{
		Provider: engine.ProviderInfo{
			Code: "pioupiou",
			Name: "pioupiou.com",
			URL:  "https://pioupiou.com",
		},
		Interval: DefaultInterval,
		Run:      runPioupiou,
	}
}

type pioupiouFeed struct {
	Data []pioupiouStation `json:"data"`
}

type pioupiouStation struct {
	ID       str `json:"id"`
	Location struct {
		Latitude  number `json:"latitude"`
		Longitude number `json:"longitude"`
		Date      string `json:"date"`
		Success   bool   `json:"success"`
	} `json:"location"`
	Status struct {
		State string `json:"state"`
	} `json:"status"`
	Meta struct {
		Name string `json:"name"`
	} `json:"meta"`
	Measurements struct {
		Date         string `json:"date"`
		WindHeading  number `json:"wind_heading"`
		WindSpeedAvg number `json:"wind_speed_avg"`
		WindSpeedMax number `json:"wind_speed_max"`
		Pressure     number `json:"pressure"`
	} `json:"measurements"`
}

// pioupiouStatus maps a beacon's state and GPS fix quality onto the
// station traffic light.
func pioupiouStatus(h *engine.Handle, stationID string, ps pioupiouStation, now time.Time) database.Status {
	if ps.Status.State != "on" {
		return database.StatusHidden
	}

	locationDate, dateErr := time.Parse(time.RFC3339, ps.Location.Date)
	if ps.Location.Date == "" || dateErr != nil {
		h.Logger().Warnf("'%s': no last known location", stationID)
		return database.StatusRed
	}

	upToDate := now.Sub(locationDate) < locationStaleness
	if !upToDate {
		h.Logger().Warnf("'%s': last known location date is %s", stationID, ps.Location.Date)
	}
	if ps.Location.Success && upToDate {
		return database.StatusGreen
	}
	return database.StatusOrange
}

func runPioupiou(ctx context.Context, h *engine.Handle) error {
	var feed pioupiouFeed
	if err := getJSON(ctx, "https://api.pioupiou.fr/v1/live-with-meta/all", nil, &feed); err != nil {
		return err
	}

	now := time.Now()
	for _, ps := range feed.Data {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stationID := h.StationID(string(ps.ID))

		lat, lon := ps.Location.Latitude.float(), ps.Location.Longitude.float()
		if lat == nil || lon == nil || (*lat == 0 && *lon == 0) {
			continue
		}

		beaconName := ps.Meta.Name
		station, err := h.SaveStation(ctx, engine.SaveStationRequest{
			ProviderID: string(ps.ID),
			Names: engine.DerivedNames(func(geocoded engine.StationNames) engine.StationNames {
				if geocoded.Short == "" || geocoded.Name == "" {
					return engine.StationNames{Short: beaconName, Name: beaconName}
				}
				return geocoded
			}),
			Latitude:  lat,
			Longitude: lon,
			Status:    pioupiouStatus(h, stationID, ps, now),
			URL:       fmt.Sprintf("https://pioupiou.com/%s", ps.ID),
		})
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}

		when, err := time.Parse(time.RFC3339, ps.Measurements.Date)
		if err != nil {
			logStationError(h, stationID, engine.Providerf("unparseable measure date '%s'", ps.Measurements.Date))
			continue
		}
		key := when.Unix()

		exists, err := h.HasMeasure(ctx, station, key)
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}
		if exists {
			continue
		}
		measure, err := h.CreateMeasure(ctx, station, engine.MeasureInput{
			Time:          key,
			WindDirection: ps.Measurements.WindHeading.value(units.Degree),
			WindAverage:   ps.Measurements.WindSpeedAvg.value(units.Canonical),
			WindMaximum:   ps.Measurements.WindSpeedMax.value(units.Canonical),
			Pressure:      units.Pressure{QFE: ps.Measurements.Pressure.value(units.HectoPascal)},
		})
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}
		if err := h.InsertMeasures(ctx, station, []database.Measure{*measure}); err != nil {
			logStationError(h, stationID, err)
		}
	}
	return nil
}
