package database

import "time"

// Status is the traffic-light state of a station on the map.
type Status string

const (
	StatusHidden Status = "hidden"
	StatusRed    Status = "red"
	StatusOrange Status = "orange"
	StatusGreen  Status = "green"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude] in
// WGS84, which is what the 2dsphere index expects.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a longitude and latitude.
func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Longitude returns the point's longitude.
func (p GeoPoint) Longitude() float64 {
	if len(p.Coordinates) == 2 {
		return p.Coordinates[0]
	}
	return 0
}

// Latitude returns the point's latitude.
func (p GeoPoint) Latitude() float64 {
	if len(p.Coordinates) == 2 {
		return p.Coordinates[1]
	}
	return 0
}

// PressureLevels is the derived pressure subdocument of a measure.
type PressureLevels struct {
	QFE *float64 `bson:"qfe" json:"qfe"`
	QNH *float64 `bson:"qnh" json:"qnh"`
	QFF *float64 `bson:"qff" json:"qff"`
}

// Measure is one observation instant in a station's stream. The document
// id is the observation time in unix seconds, which makes inserts
// idempotent per instant.
type Measure struct {
	ID            int64           `bson:"_id" json:"_id"`
	WindDirection int             `bson:"w-dir" json:"w-dir"`
	WindAverage   float64         `bson:"w-avg" json:"w-avg"`
	WindMaximum   float64         `bson:"w-max" json:"w-max"`
	Temperature   *float64        `bson:"temp,omitempty" json:"temp,omitempty"`
	Humidity      *float64        `bson:"hum,omitempty" json:"hum,omitempty"`
	Pressure      *PressureLevels `bson:"pres,omitempty" json:"pres,omitempty"`
	Rain          *float64        `bson:"rain,omitempty" json:"rain,omitempty"`
	Time          time.Time       `bson:"time" json:"time"`
	ReceivedAt    time.Time       `bson:"receivedAt" json:"receivedAt"`
}

// Duplicates marks a station's membership in a near-duplicate group.
type Duplicates struct {
	Stations        []string `bson:"stations" json:"stations"`
	Rating          int      `bson:"rating" json:"rating"`
	IsHighestRating bool     `bson:"is_highest_rating" json:"is_highest_rating"`
}

// Station is one sensor site. The id is "<provider_code>-<provider_id>".
type Station struct {
	ID           string            `bson:"_id,omitempty" json:"_id"`
	ProviderID   string            `bson:"pv-id" json:"pv-id"`
	ProviderCode string            `bson:"pv-code" json:"pv-code"`
	ProviderName string            `bson:"pv-name" json:"pv-name"`
	URLs         map[string]string `bson:"url" json:"url"`
	ShortName    string            `bson:"short" json:"short"`
	Name         string            `bson:"name" json:"name"`
	Altitude     int               `bson:"alt" json:"alt"`
	Peak         bool              `bson:"peak" json:"peak"`
	Location     GeoPoint          `bson:"loc" json:"loc"`
	Status       Status            `bson:"status" json:"status"`
	CountryCode  string            `bson:"country,omitempty" json:"country,omitempty"`
	Timezone     string            `bson:"tz" json:"tz"`
	LastSeenAt   time.Time         `bson:"lastSeenAt" json:"lastSeenAt"`
	Last         *Measure          `bson:"last,omitempty" json:"last,omitempty"`
	Clusters     []int             `bson:"clusters,omitempty" json:"clusters,omitempty"`
	Duplicates   *Duplicates       `bson:"duplicates,omitempty" json:"duplicates,omitempty"`
}

// Fix is a hand-authored override document from the stations_fix
// collection. Present fields shadow the adapter-supplied values at save
// time; the Measures map adds per-field offsets to every new measure.
type Fix struct {
	ID        string             `bson:"_id" json:"_id"`
	Short     *string            `bson:"short,omitempty" json:"short,omitempty"`
	Name      *string            `bson:"name,omitempty" json:"name,omitempty"`
	Alt       *float64           `bson:"alt,omitempty" json:"alt,omitempty"`
	Peak      *bool              `bson:"peak,omitempty" json:"peak,omitempty"`
	Latitude  *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Measures  map[string]float64 `bson:"measures,omitempty" json:"measures,omitempty"`
}

// ProviderRecord tracks when a provider was first and last seen inserting
// measures.
type ProviderRecord struct {
	ID          string    `bson:"_id" json:"_id"`
	Name        string    `bson:"name" json:"name"`
	URL         string    `bson:"url" json:"url"`
	FirstSeenAt time.Time `bson:"firstSeenAt" json:"firstSeenAt"`
	LastSeenAt  time.Time `bson:"lastSeenAt" json:"lastSeenAt"`
}

// ClusterRange is the control document written by the cluster job.
type ClusterRange struct {
	ID  string `bson:"_id" json:"_id"`
	Min int    `bson:"min" json:"min"`
	Max int    `bson:"max" json:"max"`
}
