// Package pressure converts between the three barometric readings a wind
// station can report:
//
//	QFE — absolute pressure at station altitude
//	QNH — altimeter setting: QFE extrapolated to sea level through the
//	      International Standard Atmosphere
//	QFF — QFE reduced to sea level using the current local temperature
//	      and humidity
//
// The QFE↔QNH legs need only the station elevation; the QFE↔QFF legs also
// need temperature and humidity. Each pair is an exact mathematical
// inverse, so deriving one reading from the other and back reproduces the
// input.
package pressure

import "math"

// MADIS altimeter-setting constants. The TWxUtils/Davis variant of this
// reduction reads about 0.7 hPa lower at 800 m (916.5 vs 917.2 for QNH
// 1013); the MADIS form keeps the two legs exact inverses.
const (
	k1 = 0.190284
	k2 = 8.4184960528e-5
)

// StationToAltimeter derives QNH from QFE at the given elevation (meters).
func StationToAltimeter(qfeHPa, elevationM float64) float64 {
	return math.Pow(math.Pow(qfeHPa, k1)+k2*elevationM, 1/k1)
}

// AltimeterToStation derives QFE from QNH at the given elevation (meters).
func AltimeterToStation(qnhHPa, elevationM float64) float64 {
	return math.Pow(math.Pow(qnhHPa, k1)-k2*elevationM, 1/k1)
}

// saturationVaporPressure returns the saturation vapor pressure in hPa at
// the given temperature (Magnus form).
func saturationVaporPressure(tempC float64) float64 {
	return 6.112 * math.Exp(17.62*tempC/(243.12+tempC))
}

// humidityCorrection is the vapor-pressure correction term used in the
// sea-level reduction ratio, in °C.
func humidityCorrection(tempC, elevationM, humidity float64) float64 {
	vp := humidity / 100 * saturationVaporPressure(tempC)
	return vp * (2.8322e-9*elevationM*elevationM + 2.225e-5*elevationM + 0.10743)
}

// reductionRatio is QFF/QFE for the given elevation (meters), temperature
// (°C) and relative humidity (0-100). It does not depend on the pressure
// itself, which makes the two QFF legs exact inverses.
func reductionRatio(elevationM, tempC, humidity float64) float64 {
	hcorr := 9.0 / 5.0 * humidityCorrection(tempC, elevationM, humidity)
	elevFt := elevationM * 3.2808399
	tempF := tempC*9/5 + 32
	return math.Pow(10, elevFt/(122.8943111*(tempF+460+elevFt*0.0025+hcorr)))
}

// StationToSeaLevel derives QFF from QFE.
func StationToSeaLevel(qfeHPa, elevationM, tempC, humidity float64) float64 {
	return qfeHPa * reductionRatio(elevationM, tempC, humidity)
}

// SeaLevelToStation derives QFE from QFF.
func SeaLevelToStation(qffHPa, elevationM, tempC, humidity float64) float64 {
	return qffHPa / reductionRatio(elevationM, tempC, humidity)
}
