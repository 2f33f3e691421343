// Package units models the physical quantities adapters hand to the
// ingestion engine. Upstreams report wind in anything from knots to m/s and
// pressure in anything from inHg to Pa; every value is converted to the
// canonical storage units (km/h, °C, hPa, mm, m, degrees) at the engine
// boundary.
package units

import (
	"fmt"
	"math"
)

// Unit identifies a measurement unit. The zero value means "canonical":
// the value is already expressed in the storage unit for its dimension.
type Unit int

const (
	Canonical Unit = iota

	// Direction
	Degree

	// Speed (canonical: km/h)
	KilometersPerHour
	MetersPerSecond
	Knots
	MilesPerHour

	// Temperature (canonical: °C)
	Celsius
	Fahrenheit
	Kelvin

	// Pressure (canonical: hPa)
	HectoPascal
	Pascal
	InchesOfMercury
	Bar

	// Precipitation (canonical: mm, i.e. liter/m²)
	Millimeters
	Inches

	// Length (canonical: m)
	Meters
	Feet
)

type dimension int

const (
	dimNone dimension = iota
	dimDirection
	dimSpeed
	dimTemperature
	dimPressure
	dimPrecipitation
	dimLength
)

func (u Unit) dimension() dimension {
	switch u {
	case Degree:
		return dimDirection
	case KilometersPerHour, MetersPerSecond, Knots, MilesPerHour:
		return dimSpeed
	case Celsius, Fahrenheit, Kelvin:
		return dimTemperature
	case HectoPascal, Pascal, InchesOfMercury, Bar:
		return dimPressure
	case Millimeters, Inches:
		return dimPrecipitation
	case Meters, Feet:
		return dimLength
	}
	return dimNone
}

func (u Unit) String() string {
	switch u {
	case Canonical:
		return "canonical"
	case Degree:
		return "°"
	case KilometersPerHour:
		return "km/h"
	case MetersPerSecond:
		return "m/s"
	case Knots:
		return "kn"
	case MilesPerHour:
		return "mph"
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	case Kelvin:
		return "K"
	case HectoPascal:
		return "hPa"
	case Pascal:
		return "Pa"
	case InchesOfMercury:
		return "inHg"
	case Bar:
		return "bar"
	case Millimeters:
		return "mm"
	case Inches:
		return "in"
	case Meters:
		return "m"
	case Feet:
		return "ft"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// toCanonical converts v from u to the canonical unit of u's dimension.
func toCanonical(v float64, u Unit) float64 {
	switch u {
	case MetersPerSecond:
		return v * 3.6
	case Knots:
		return v * 1.852
	case MilesPerHour:
		return v * 1.609344
	case Fahrenheit:
		return (v - 32) * 5 / 9
	case Kelvin:
		return v - 273.15
	case Pascal:
		return v / 100
	case InchesOfMercury:
		return v * 33.8638866667
	case Bar:
		return v * 1000
	case Inches:
		return v * 25.4
	case Feet:
		return v * 0.3048
	default:
		return v
	}
}

// Value is either absent, a raw number (already canonical), or a quantity
// carrying a unit. Adapters build them with Raw and New; the engine reads
// them back with Convert.
type Value struct {
	value float64
	unit  Unit
	valid bool
}

// Raw wraps a number that is already expressed in the canonical unit.
func Raw(v float64) Value {
	return Value{value: v, unit: Canonical, valid: true}
}

// New wraps a number expressed in the given unit.
func New(v float64, u Unit) Value {
	return Value{value: v, unit: u, valid: true}
}

// None is the absent Value.
func None() Value { return Value{} }

// Valid reports whether the value is present.
func (v Value) Valid() bool { return v.valid }

// In returns the value expressed in want, which must be the canonical unit
// of its dimension (km/h, °C, hPa, mm, m or degrees). Raw values pass
// through unchanged; converting an absent Value or across dimensions is an
// error.
func (v Value) In(want Unit) (float64, error) {
	if !v.valid {
		return 0, fmt.Errorf("units: value is absent")
	}
	if v.unit == Canonical || v.unit == want {
		return v.value, nil
	}
	if v.unit.dimension() != want.dimension() {
		return 0, fmt.Errorf("units: cannot convert %s to %s", v.unit, want)
	}
	return toCanonical(v.value, v.unit), nil
}

// Round rounds v half away from zero to ndigits decimal places.
func Round(v float64, ndigits int) float64 {
	p := math.Pow(10, float64(ndigits))
	return math.Round(v*p) / p
}

// Pressure carries up to three pressure readings for one observation.
// Any subset may be present; the engine derives the missing ones.
type Pressure struct {
	QFE Value
	QNH Value
	QFF Value
}

// Empty reports whether no pressure reading is present at all.
func (p Pressure) Empty() bool {
	return !p.QFE.Valid() && !p.QNH.Valid() && !p.QFF.Valid()
}
