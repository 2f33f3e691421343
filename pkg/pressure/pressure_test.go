package pressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAltimeterToStation(t *testing.T) {
	// A 1013 hPa altimeter setting at 830 m corresponds to roughly
	// 917 hPa of absolute pressure.
	qfe := AltimeterToStation(1013, 830)
	assert.InDelta(t, 917.2129, qfe, 0.001)
}

func TestStationToAltimeterIncreasesWithElevation(t *testing.T) {
	qnh := StationToAltimeter(917.2129, 830)
	assert.InDelta(t, 1013, qnh, 0.001)
	assert.Greater(t, StationToAltimeter(950, 1500), StationToAltimeter(950, 500))
}

func TestAltimeterRoundTrip(t *testing.T) {
	for _, elev := range []float64{0, 500, 830, 1500, 3000} {
		for _, qfe := range []float64{850, 950, 1013.25} {
			got := AltimeterToStation(StationToAltimeter(qfe, elev), elev)
			assert.InDelta(t, qfe, got, 0.1, "elev=%v qfe=%v", elev, qfe)
		}
	}
}

func TestSeaLevelRoundTrip(t *testing.T) {
	for _, elev := range []float64{0, 500, 830, 1500, 3000} {
		for _, temp := range []float64{-30, -10, 0, 15, 30} {
			for _, hum := range []float64{0, 50, 100} {
				qfe := 950.0
				got := SeaLevelToStation(StationToSeaLevel(qfe, elev, temp, hum), elev, temp, hum)
				assert.InDelta(t, qfe, got, 0.1, "elev=%v temp=%v hum=%v", elev, temp, hum)
			}
		}
	}
}

func TestStationToSeaLevelAtSeaLevel(t *testing.T) {
	// No elevation, no reduction.
	assert.InDelta(t, 1013.25, StationToSeaLevel(1013.25, 0, 15, 50), 1e-9)
}

func TestSeaLevelReductionGrowsWithElevation(t *testing.T) {
	low := StationToSeaLevel(950, 500, 15, 50)
	high := StationToSeaLevel(950, 2000, 15, 50)
	assert.Greater(t, high, low)
}
