package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

// FFVL is the French free-flight federation's beacon network. One API
// call lists the beacons, another returns the latest observation of each.
func FFVL() Adapter {
	return Adapter{
		Provider: engine.ProviderInfo{
			Code: "ffvl",
			Name: "ffvl.fr",
			URL:  "https://www.balisemeteo.com",
		},
		Interval: DefaultInterval,
		Run:      runFFVL,
	}
}

type ffvlStation struct {
	ID        str    `json:"idBalise"`
	Type      string `json:"station_type"`
	Name      string `json:"nom"`
	Latitude  number `json:"latitude"`
	Longitude number `json:"longitude"`
	Altitude  number `json:"altitude"`
	URL       string `json:"url"`
}

type ffvlMeasure struct {
	ID            str    `json:"idbalise"`
	Date          string `json:"date"`
	WindDirection number `json:"directVentMoy"`
	WindAverage   number `json:"vitesseVentMoy"`
	WindMaximum   number `json:"vitesseVentMax"`
	Temperature   number `json:"temperature"`
	Humidity      number `json:"hydrometrie"`
	Pressure      number `json:"pression"`
}

// relayedTypes are beacons FFVL relays from networks we ingest directly.
var relayedTypes = map[string]bool{
	"holfuy":   true,
	"pioupiou": true,
	"iweathar": true,
}

func runFFVL(ctx context.Context, h *engine.Handle) error {
	apiKey := config.Getenv("FFVL_API_KEY", "")
	if apiKey == "" {
		return fmt.Errorf("FFVL_API_KEY is not set")
	}
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return err
	}

	var ffvlStations []ffvlStation
	url := fmt.Sprintf("https://data.ffvl.fr/api/?base=balises&r=list&mode=json&key=%s", apiKey)
	if err := getJSON(ctx, url, nil, &ffvlStations); err != nil {
		return err
	}

	stations := make(map[string]*database.Station, len(ffvlStations))
	for _, fs := range ffvlStations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if relayedTypes[fs.Type] || fs.ID == "" {
			continue
		}
		station, err := h.SaveStation(ctx, engine.SaveStationRequest{
			ProviderID: string(fs.ID),
			Names:      engine.FixedNames{Short: fs.Name, Name: fs.Name},
			Latitude:   fs.Latitude.float(),
			Longitude:  fs.Longitude.float(),
			Status:     database.StatusGreen,
			Altitude:   fs.Altitude.value(units.Meters),
			URL:        fs.URL,
		})
		if err != nil {
			logStationError(h, h.StationID(string(fs.ID)), err)
			continue
		}
		stations[station.ID] = station
	}

	var measures []ffvlMeasure
	url = fmt.Sprintf("https://data.ffvl.fr/api/?base=balises&r=releves_meteo&key=%s", apiKey)
	if err := getJSON(ctx, url, nil, &measures); err != nil {
		return err
	}

	for _, fm := range measures {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stationID := h.StationID(string(fm.ID))
		station, ok := stations[stationID]
		if !ok {
			h.Logger().Warnf("error while processing measures for station '%s': unknown station", stationID)
			continue
		}

		when, err := time.ParseInLocation("2006-01-02 15:04:05", fm.Date, paris)
		if err != nil {
			logStationError(h, stationID, engine.Providerf("unparseable measure date '%s'", fm.Date))
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
			WindDirection: fm.WindDirection.value(units.Degree),
			WindAverage:   fm.WindAverage.value(units.Canonical),
			WindMaximum:   fm.WindMaximum.value(units.Canonical),
			Temperature:   fm.Temperature.value(units.Celsius),
			Humidity:      fm.Humidity.value(units.Canonical),
			Pressure:      units.Pressure{QFE: fm.Pressure.value(units.HectoPascal)},
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
