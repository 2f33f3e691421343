package engine

import (
	"context"
	"time"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/metrics"
	"github.com/windmobile/windfabric/pkg/pressure"
	"github.com/windmobile/windfabric/pkg/units"
)

// MeasureInput is one raw observation as an adapter read it upstream.
// The wind trio is mandatory as a group: at least one of direction,
// average and maximum must be present; absent members default to zero.
type MeasureInput struct {
	Time          int64 // observation instant, unix seconds
	WindDirection units.Value
	WindAverage   units.Value
	WindMaximum   units.Value
	Temperature   units.Value
	Humidity      units.Value
	Pressure      units.Pressure
	Rain          units.Value
}

// CreateMeasure normalizes a raw observation into a storable measure:
// units converted to the canonical ones, values rounded, missing pressure
// levels derived from the present ones, and any fix offsets applied.
func (h *Handle) CreateMeasure(ctx context.Context, station *database.Station, in MeasureInput) (*database.Measure, error) {
	if !in.WindDirection.Valid() && !in.WindAverage.Valid() && !in.WindMaximum.Valid() {
		return nil, Invalidf("all mandatory values are null")
	}

	m := &database.Measure{
		ID:            in.Time,
		WindDirection: toWindDirection(in.WindDirection),
		WindAverage:   toWindSpeed(in.WindAverage),
		WindMaximum:   toWindSpeed(in.WindMaximum),
	}

	if in.Temperature.Valid() {
		if t, err := in.Temperature.In(units.Celsius); err == nil {
			m.Temperature = ptr(units.Round(t, 1))
		}
	}
	if in.Humidity.Valid() {
		if hum, err := in.Humidity.In(units.Canonical); err == nil {
			m.Humidity = ptr(units.Round(hum, 1))
		}
	}
	if !in.Pressure.Empty() {
		m.Pressure = computePressures(in.Pressure, float64(station.Altitude), m.Temperature, m.Humidity)
	}
	if in.Rain.Valid() {
		if r, err := in.Rain.In(units.Millimeters); err == nil {
			m.Rain = ptr(units.Round(r, 1))
		}
	}

	m.Time = time.Unix(in.Time, 0).UTC()
	m.ReceivedAt = h.engine.now().UTC()

	fix, err := h.engine.store.FindFix(ctx, station.ID)
	if err != nil {
		return nil, err
	}
	if fix != nil && len(fix.Measures) > 0 {
		h.applyMeasureFixes(m, fix.Measures)
	}
	return m, nil
}

// applyMeasureFixes adds per-field calibration offsets to a measure.
// Offsets apply only to fields the measure carries; wind direction wraps
// around the compass.
func (h *Handle) applyMeasureFixes(m *database.Measure, offsets map[string]float64) {
	for key, offset := range offsets {
		switch key {
		case "w-dir":
			m.WindDirection = ((m.WindDirection+int(offset))%360 + 360) % 360
		case "w-avg":
			m.WindAverage += offset
		case "w-max":
			m.WindMaximum += offset
		case "temp":
			if m.Temperature != nil {
				*m.Temperature += offset
			}
		case "hum":
			if m.Humidity != nil {
				*m.Humidity += offset
			}
		case "rain":
			if m.Rain != nil {
				*m.Rain += offset
			}
		default:
			h.logger.Warnf("unable to fix '%s' with offset '%v'", key, offset)
		}
	}
}

// computePressures converts the supplied levels to hPa and derives the
// missing ones from the present ones: QNH from QFE via the altimeter
// reduction, QFF from QFE via the temperature/humidity reduction, and the
// inverses. Derivations treat a zero reading as absent.
func computePressures(p units.Pressure, altitude float64, temp, hum *float64) *database.PressureLevels {
	qfe := toPressureLevel(p.QFE)
	qnh := toPressureLevel(p.QNH)
	qff := toPressureLevel(p.QFF)

	if truthy(qfe) && qnh == nil {
		qnh = ptr(pressure.StationToAltimeter(*qfe, altitude))
	}
	if truthy(qnh) && qfe == nil {
		qfe = ptr(pressure.AltimeterToStation(*qnh, altitude))
	}
	if truthy(qfe) && qff == nil && temp != nil && hum != nil {
		qff = ptr(pressure.StationToSeaLevel(*qfe, altitude, *temp, *hum))
	}
	if truthy(qff) && qfe == nil && temp != nil && hum != nil {
		qfe = ptr(pressure.SeaLevelToStation(*qff, altitude, *temp, *hum))
	}

	return &database.PressureLevels{
		QFE: roundLevel(qfe),
		QNH: roundLevel(qnh),
		QFF: roundLevel(qff),
	}
}

// HasMeasure reports whether the station's stream already holds the
// observation instant. Adapters use it to skip re-normalizing history.
func (h *Handle) HasMeasure(ctx context.Context, station *database.Station, ts int64) (bool, error) {
	return h.engine.store.HasMeasure(ctx, station.ID, ts)
}

// InsertMeasures stores a batch of measures, refreshes the station's
// denormalized last measure and touches the provider bookkeeping record.
// Duplicate observation instants are dropped with a warning.
func (h *Handle) InsertMeasures(ctx context.Context, station *database.Station, measures []database.Measure) error {
	if len(measures) == 0 {
		return nil
	}
	e := h.engine

	inserted, err := e.store.InsertMeasures(ctx, station.ID, measures)
	if err != nil {
		return err
	}
	if inserted != len(measures) {
		h.logger.Warnf("%d measure(s) not inserted", len(measures)-inserted)
	}
	metrics.MeasuresInserted.WithLabelValues(h.provider.Code).Add(float64(inserted))

	end := measures[len(measures)-1].Time
	if loc, err := time.LoadLocation(station.Timezone); err == nil {
		end = end.In(loc)
	}
	h.logger.Infof("%s '%s'/'%s' (%s): %d values inserted",
		end.Format("06-01-02 15:04:05-07:00"), station.ShortName, station.Name, station.ID, inserted)

	last, err := e.store.LatestMeasure(ctx, station.ID)
	if err != nil {
		return err
	}
	if last != nil {
		if err := e.store.SetLastMeasure(ctx, station.ID, last); err != nil {
			return err
		}
	}
	return e.store.TouchProvider(ctx, h.provider.Code, h.provider.Name, h.provider.URL, e.now().UTC())
}

func toWindDirection(v units.Value) int {
	if !v.Valid() {
		return 0
	}
	d, err := v.In(units.Degree)
	if err != nil {
		return 0
	}
	return int(units.Round(d, 0))
}

func toWindSpeed(v units.Value) float64 {
	if !v.Valid() {
		return 0
	}
	s, err := v.In(units.KilometersPerHour)
	if err != nil {
		return 0
	}
	return units.Round(s, 1)
}

func toPressureLevel(v units.Value) *float64 {
	if !v.Valid() {
		return nil
	}
	p, err := v.In(units.HectoPascal)
	if err != nil {
		return nil
	}
	return ptr(units.Round(p, 4))
}

func truthy(v *float64) bool { return v != nil && *v != 0 }

func roundLevel(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(units.Round(*v, 4))
}

func ptr(v float64) *float64 { return &v }
