package adapters

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

// windline station property and data type identifiers, as defined in the
// upstream schema.
const (
	windlineStatusProperty    = "status"
	windlineAltitudeProperty  = "altitude"
	windlineLongitudeProperty = "longitude"
	windlineLatitudeProperty  = "latitude"

	windlineWindAverage   = 16402
	windlineWindMaximum   = 16410
	windlineWindDirection = 16404
	windlineTemperature   = 16400
	windlineHumidity      = 16401
)

// windlineHistory is how far back each run looks for unseen measures.
const windlineHistory = 2 * 24 * time.Hour

// Windline reads a partner's SQL database directly instead of a web API.
func Windline(dsn string) Adapter {
	return Adapter{
		Provider: engine.ProviderInfo{
			Code: "windline",
			Name: "windline.ch",
			URL:  "http://www.windline.ch",
		},
		Interval: DefaultInterval,
		Run: func(ctx context.Context, h *engine.Handle) error {
			return runWindline(ctx, h, dsn)
		},
	}
}

type windlineSource struct {
	db          *gorm.DB
	corrections map[string]*float64
}

type windlineRow struct {
	MeasureDate time.Time `gorm:"column:measuredate"`
	Data        string    `gorm:"column:data"`
}

type windlineStationRow struct {
	StationNo        int64  `gorm:"column:tblstationno"`
	StationID        string `gorm:"column:stationid"`
	Name             string `gorm:"column:stationname"`
	ShortDescription string `gorm:"column:shortdescription"`
	Value            string `gorm:"column:value"`
}

func runWindline(ctx context.Context, h *engine.Handle, dsn string) error {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connecting to windline database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	src := &windlineSource{db: db.WithContext(ctx), corrections: map[string]*float64{}}

	statusID, err := src.propertyID(windlineStatusProperty)
	if err != nil {
		return err
	}
	altitudeID, err := src.propertyID(windlineAltitudeProperty)
	if err != nil {
		return err
	}
	longitudeID, err := src.propertyID(windlineLongitudeProperty)
	if err != nil {
		return err
	}
	latitudeID, err := src.propertyID(windlineLatitudeProperty)
	if err != nil {
		return err
	}

	var stationRows []windlineStationRow
	err = src.db.Raw(
		`SELECT tblstation.tblstationno, stationid, stationname, shortdescription, value
		 FROM tblstation
		 INNER JOIN tblstationproperty ON tblstation.tblstationno = tblstationproperty.tblstationno
		 WHERE tblstationpropertylistno = ?`, statusID).Scan(&stationRows).Error
	if err != nil {
		return err
	}

	startDate := time.Now().UTC().Add(-windlineHistory)
	for _, row := range stationRows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stationID := h.StationID(row.StationID)

		// Windline relays holfuy stations under 6xxx ids.
		if id, err := strconv.Atoi(row.StationID); err == nil && id >= 6000 && id < 7000 {
			continue
		}

		station, err := src.saveStation(ctx, h, row, altitudeID, latitudeID, longitudeID)
		if err != nil {
			logStationError(h, stationID, err)
			continue
		}
		if err := src.ingestMeasures(ctx, h, station, row, startDate); err != nil {
			logStationError(h, stationID, err)
		}
	}
	return nil
}

func (s *windlineSource) saveStation(ctx context.Context, h *engine.Handle, row windlineStationRow,
	altitudeID, latitudeID, longitudeID int64) (*database.Station, error) {

	altitude, err := s.propertyValue(row.StationNo, altitudeID)
	if err != nil {
		return nil, err
	}
	alt, err := strconv.ParseFloat(altitude, 64)
	if err != nil {
		return nil, engine.Providerf("unparseable altitude '%s'", altitude)
	}
	latDMS, err := s.propertyValue(row.StationNo, latitudeID)
	if err != nil {
		return nil, err
	}
	lonDMS, err := s.propertyValue(row.StationNo, longitudeID)
	if err != nil {
		return nil, err
	}
	lat, err := parseDMS(latDMS)
	if err != nil {
		return nil, err
	}
	lon, err := parseDMS(lonDMS)
	if err != nil {
		return nil, err
	}

	return h.SaveStation(ctx, engine.SaveStationRequest{
		ProviderID: row.StationID,
		Names:      engine.FixedNames{Short: row.Name, Name: row.ShortDescription},
		Latitude:   &lat,
		Longitude:  &lon,
		Status:     windlineStatus(row.Value),
		Altitude:   units.New(alt, units.Meters),
	})
}

func (s *windlineSource) ingestMeasures(ctx context.Context, h *engine.Handle,
	station *database.Station, row windlineStationRow, startDate time.Time) error {

	averages, err := s.measureRows(row.StationID, windlineWindAverage, startDate)
	if err != nil {
		return err
	}
	maximums, err := s.measureRows(row.StationID, windlineWindMaximum, startDate)
	if err != nil {
		return err
	}
	directions, err := s.measureRows(row.StationID, windlineWindDirection, startDate)
	if err != nil {
		return err
	}
	temperatures, err := s.measureRows(row.StationID, windlineTemperature, startDate)
	if err != nil {
		return err
	}
	humidities, err := s.measureRows(row.StationID, windlineHumidity, startDate)
	if err != nil {
		return err
	}

	var newMeasures []database.Measure
	seen := map[int64]bool{}
	// The wind average row is the time reference of a measure.
	for _, avg := range averages {
		key := avg.MeasureDate.Unix()
		if seen[key] {
			continue
		}
		exists, err := h.HasMeasure(ctx, station, key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		windAverage, err := strconv.ParseFloat(avg.Data, 64)
		if err != nil {
			continue
		}
		windMaximum, ok := valueAround(maximums, avg.MeasureDate, 10*time.Second)
		if !ok {
			continue
		}
		direction, ok := valueAround(directions, avg.MeasureDate, 10*time.Second)
		if !ok {
			continue
		}
		direction = s.correctedDirection(row.StationNo, direction)
		temperature, hasTemp := lastValueBefore(temperatures, avg.MeasureDate.Add(10*time.Second))
		humidity, hasHum := lastValueBefore(humidities, avg.MeasureDate.Add(10*time.Second))
		if !hasTemp || !hasHum {
			continue
		}

		measure, err := h.CreateMeasure(ctx, station, engine.MeasureInput{
			Time:          key,
			WindDirection: units.New(direction, units.Degree),
			WindAverage:   units.New(windAverage, units.MetersPerSecond),
			WindMaximum:   units.New(windMaximum, units.MetersPerSecond),
			Temperature:   units.Raw(temperature),
			Humidity:      units.Raw(humidity),
		})
		if err != nil {
			return err
		}
		newMeasures = append(newMeasures, *measure)
		seen[key] = true
	}
	return h.InsertMeasures(ctx, station, newMeasures)
}

func (s *windlineSource) propertyID(uniqueName string) (int64, error) {
	var id *int64
	err := s.db.Raw(
		"SELECT tblstationpropertylistno FROM tblstationpropertylist WHERE uniquename = ?",
		uniqueName).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, engine.Providerf("no property '%s'", uniqueName)
	}
	return *id, nil
}

func (s *windlineSource) propertyValue(stationNo, propertyID int64) (string, error) {
	var value *string
	err := s.db.Raw(
		"SELECT value FROM tblstationproperty WHERE tblstationno = ? AND tblstationpropertylistno = ?",
		stationNo, propertyID).Scan(&value).Error
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", engine.Providerf("no property value for property '%d'", propertyID)
	}
	return *value, nil
}

func (s *windlineSource) measureRows(stationID string, dataID int, startDate time.Time) ([]windlineRow, error) {
	var rows []windlineRow
	err := s.db.Raw(
		`SELECT measuredate, data FROM tblstationdata
		 WHERE stationid = ? AND dataid = ? AND measuredate >= ?
		 ORDER BY measuredate`, stationID, dataID, startDate).Scan(&rows).Error
	return rows, err
}

// correctedDirection applies the station's calibration offset to a wind
// direction. Corrections are cached per run.
func (s *windlineSource) correctedDirection(stationNo int64, direction float64) float64 {
	cacheKey := fmt.Sprintf("%d/%d", stationNo, windlineWindDirection)
	correction, ok := s.corrections[cacheKey]
	if !ok {
		var value *float64
		s.db.Raw(
			`SELECT onlyvalue FROM tblcalibrate WHERE tblstationno = ?
			 AND tbldatatypeno = (SELECT tbldatatypeno FROM tbldatatype WHERE dataid = ?)`,
			stationNo, windlineWindDirection).Scan(&value)
		correction = value
		s.corrections[cacheKey] = correction
	}
	if correction == nil {
		return direction
	}
	return math.Mod(math.Mod(direction+*correction, 360)+360, 360)
}

// valueAround returns the row value closest inside date±tolerance.
func valueAround(rows []windlineRow, date time.Time, tolerance time.Duration) (float64, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i].MeasureDate
		if !d.Before(date.Add(-tolerance)) && !d.After(date.Add(tolerance)) {
			v, err := strconv.ParseFloat(rows[i].Data, 64)
			return v, err == nil
		}
	}
	return 0, false
}

// lastValueBefore returns the newest row value at or before the date.
func lastValueBefore(rows []windlineRow, date time.Time) (float64, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].MeasureDate.After(date) {
			v, err := strconv.ParseFloat(rows[i].Data, 64)
			return v, err == nil
		}
	}
	return 0, false
}

func windlineStatus(status string) database.Status {
	switch status {
	case "maintenance":
		return database.StatusRed
	case "demo":
		return database.StatusOrange
	case "online":
		return database.StatusGreen
	default:
		return database.StatusHidden
	}
}

var dmsSplit = regexp.MustCompile(`[^0-9A-Za-z.]+`)

// parseDMS converts a degrees/minutes/seconds string like 46°26'04"N to
// decimal degrees.
func parseDMS(input string) (float64, error) {
	parts := dmsSplit.Split(strings.TrimSpace(input), -1)
	if len(parts) < 4 {
		return 0, engine.Providerf("unparseable coordinate '%s'", input)
	}
	degrees, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, engine.Providerf("unparseable coordinate '%s'", input)
	}
	dd := degrees + minutes/60 + seconds/3600
	switch strings.ToLower(parts[3]) {
	case "s", "w":
		dd = -dd
	}
	return dd, nil
}
