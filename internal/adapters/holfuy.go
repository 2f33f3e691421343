package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

// Holfuy stations come from two endpoints: a directory of stations and a
// keyed live feed already normalized to °C and km/h.
func Holfuy() Adapter {
	return Adapter{
		Provider: engine.ProviderInfo{
			Code: "holfuy",
			Name: "holfuy.com",
			URL:  "https://holfuy.com",
		},
		Interval: DefaultInterval,
		Run:      runHolfuy,
	}
}

// holfuyURLPatterns are the per-language station pages.
var holfuyURLPatterns = map[string]string{
	"default": "https://holfuy.com/en/weather/%s",
	"en":      "https://holfuy.com/en/weather/%s",
	"de":      "https://holfuy.com/de/weather/%s",
	"fr":      "https://holfuy.com/fr/weather/%s",
	"it":      "https://holfuy.com/it/weather/%s",
}

type holfuyDirectory struct {
	Stations []holfuyStation `json:"holfuyStationsList"`
}

type holfuyStation struct {
	ID       str    `json:"id"`
	Name     string `json:"name"`
	Location struct {
		Latitude  number `json:"latitude"`
		Longitude number `json:"longitude"`
		Altitude  number `json:"altitude"`
	} `json:"location"`
}

type holfuyLive struct {
	Measurements []holfuyMeasure `json:"measurements"`
}

type holfuyMeasure struct {
	StationID str    `json:"stationId"`
	DateTime  string `json:"dateTime"`
	Wind      struct {
		Direction number `json:"direction"`
		Speed     number `json:"speed"`
		Gust      number `json:"gust"`
	} `json:"wind"`
	Temperature number `json:"temperature"`
	Pressure    number `json:"pressure"`
}

func runHolfuy(ctx context.Context, h *engine.Handle) error {
	var directory holfuyDirectory
	if err := getJSON(ctx, "https://api.holfuy.com/stations/stations.json", nil, &directory); err != nil {
		return err
	}
	var live holfuyLive
	if err := getJSON(ctx, "https://api.holfuy.com/live/?s=all&m=JSON&tu=C&su=km/h&utc", nil, &live); err != nil {
		return err
	}
	measures := make(map[str]holfuyMeasure, len(live.Measurements))
	for _, m := range live.Measurements {
		measures[m.StationID] = m
	}

	for _, hs := range directory.Stations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stationID := h.StationID(string(hs.ID))

		lat, lon := hs.Location.Latitude.float(), hs.Location.Longitude.float()
		if lat == nil || lon == nil || (*lat == 0 && *lon == 0) {
			logStationError(h, stationID, engine.Invalidf("no geolocation found"))
			continue
		}

		urls := make(map[string]string, len(holfuyURLPatterns))
		for lang, pattern := range holfuyURLPatterns {
			urls[lang] = fmt.Sprintf(pattern, hs.ID)
		}
		station, err := h.SaveStation(ctx, engine.SaveStationRequest{
			ProviderID: string(hs.ID),
			Names:      engine.FixedNames{Short: hs.Name, Name: hs.Name},
			Latitude:   lat,
			Longitude:  lon,
			Status:     database.StatusGreen,
			Altitude:   hs.Location.Altitude.value(units.Meters),
			URLs:       urls,
		})
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}

		hm, ok := measures[hs.ID]
		if !ok {
			logStationError(h, stationID, engine.Providerf("station not found in live feed"))
			continue
		}
		when, err := time.Parse("2006-01-02 15:04:05", hm.DateTime)
		if err != nil {
			logStationError(h, stationID, engine.Providerf("unparseable measure date '%s'", hm.DateTime))
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
			WindDirection: hm.Wind.Direction.value(units.Degree),
			WindAverage:   hm.Wind.Speed.value(units.KilometersPerHour),
			WindMaximum:   hm.Wind.Gust.value(units.KilometersPerHour),
			Temperature:   hm.Temperature.value(units.Celsius),
			Pressure:      units.Pressure{QNH: hm.Pressure.value(units.HectoPascal)},
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
