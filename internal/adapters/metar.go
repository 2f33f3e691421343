package adapters

import (
	"context"
	"math"
	"math/rand"
	"strings"

	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

// Metar ingests aviation weather reports for the airfields listed in
// METAR_STATIONS (comma-separated ICAO ids). Airfields report at most
// twice an hour, so the cadence is relaxed.
func Metar() Adapter {
	return Adapter{
		Provider: engine.ProviderInfo{
			Code: "metar",
			Name: "aviationweather.gov/metar",
			URL:  "https://aviationweather.gov",
		},
		Interval: 2 * DefaultInterval,
		Run:      runMetar,
	}
}

type metarReport struct {
	ICAOID  string `json:"icaoId"`
	Site    string `json:"name"`
	ObsTime int64  `json:"obsTime"`
	Lat     number `json:"lat"`
	Lon     number `json:"lon"`
	Elev    number `json:"elev"`

	WindDir  metarWindDir `json:"wdir"`
	WindSpd  number       `json:"wspd"`
	WindGust number       `json:"wgst"`
	Temp     number       `json:"temp"`
	Dewp     number       `json:"dewp"`
	Altim    number       `json:"altim"`
}

// metarWindDir is either a bearing or the literal "VRB" for variable
// wind, which gets a random bearing like any rose-less display would.
type metarWindDir struct {
	deg      *float64
	variable bool
}

func (d *metarWindDir) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if strings.EqualFold(s, "VRB") {
		d.variable = true
		return nil
	}
	var n number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	d.deg = n.v
	return nil
}

func (d metarWindDir) value() units.Value {
	if d.variable {
		return units.New(float64(rand.Intn(360)), units.Degree)
	}
	if d.deg == nil {
		return units.None()
	}
	return units.New(*d.deg, units.Degree)
}

// relativeHumidity derives humidity from temperature and dew point via
// the Magnus approximation.
func relativeHumidity(tempC, dewPointC float64) float64 {
	const a, b = 17.625, 243.04
	return 100 * math.Exp(a*dewPointC/(b+dewPointC)) / math.Exp(a*tempC/(b+tempC))
}

func runMetar(ctx context.Context, h *engine.Handle) error {
	ids := config.Getenv("METAR_STATIONS", "")
	if ids == "" {
		h.Logger().Warn("METAR_STATIONS is not set, nothing to do")
		return nil
	}

	var reports []metarReport
	url := "https://aviationweather.gov/api/data/metar?format=json&ids=" + ids
	if err := getJSON(ctx, url, nil, &reports); err != nil {
		return err
	}

	for _, report := range reports {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if report.ICAOID == "" {
			continue
		}
		stationID := h.StationID(report.ICAOID)

		name := report.Site
		if name == "" {
			name = report.ICAOID
		}
		station, err := h.SaveStation(ctx, engine.SaveStationRequest{
			ProviderID: report.ICAOID,
			Names:      engine.FixedNames{Short: report.ICAOID, Name: name},
			Latitude:   report.Lat.float(),
			Longitude:  report.Lon.float(),
			Status:     database.StatusGreen,
			Altitude:   report.Elev.value(units.Meters),
			URL:        "https://aviationweather.gov/data/metar/?id=" + report.ICAOID,
		})
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}

		exists, err := h.HasMeasure(ctx, station, report.ObsTime)
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}
		if exists {
			continue
		}

		humidity := units.None()
		if report.Temp.v != nil && report.Dewp.v != nil {
			humidity = units.Raw(relativeHumidity(*report.Temp.v, *report.Dewp.v))
		}
		measure, err := h.CreateMeasure(ctx, station, engine.MeasureInput{
			Time:          report.ObsTime,
			WindDirection: report.WindDir.value(),
			WindAverage:   report.WindSpd.value(units.Knots),
			WindMaximum:   report.WindGust.value(units.Knots),
			Temperature:   report.Temp.value(units.Celsius),
			Humidity:      humidity,
			Pressure:      units.Pressure{QNH: report.Altim.value(units.InchesOfMercury)},
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
