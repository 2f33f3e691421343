package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/log"
	"github.com/windmobile/windfabric/pkg/cluster"
)

var ratingNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func stationWithLast(status database.Status, code, short, name string, lastAge time.Duration) *database.Station {
	st := &database.Station{
		Status:       status,
		ProviderCode: code,
		ShortName:    short,
		Name:         name,
	}
	if lastAge >= 0 {
		st.Last = &database.Measure{ID: ratingNow.Add(-lastAge).Unix()}
	}
	return st
}

func TestStationRating(t *testing.T) {
	preferred := []string{"meteoswiss", "pioupiou"}

	tests := []struct {
		name    string
		station *database.Station
		want    int
	}{
		{
			"orange is capped",
			stationWithLast(database.StatusOrange, "meteoswiss", "A", "B", time.Minute),
			5,
		},
		{
			"red is capped",
			stationWithLast(database.StatusRed, "meteoswiss", "A", "B", time.Minute),
			1,
		},
		{
			"green and fresh",
			// 20 (green) + 25 (<30min) + 2 (has measure) + 1 (distinct names)
			stationWithLast(database.StatusGreen, "other", "A", "B", 10*time.Minute),
			48,
		},
		{
			"green preferred provider",
			stationWithLast(database.StatusGreen, "pioupiou", "A", "B", 10*time.Minute),
			49,
		},
		{
			"green stale measure",
			// 20 + 5 (<5 days) + 2 + 1
			stationWithLast(database.StatusGreen, "other", "A", "B", 48*time.Hour),
			28,
		},
		{
			"green very stale measure",
			// 20 + 0 (>5 days) + 2 + 1
			stationWithLast(database.StatusGreen, "other", "A", "B", 10*24*time.Hour),
			23,
		},
		{
			"green less than an hour",
			// 20 + 20 (<1h) + 2 + 1
			stationWithLast(database.StatusGreen, "other", "A", "B", 45*time.Minute),
			43,
		},
		{
			"no measure at all",
			// 20 + 1 (distinct names)
			stationWithLast(database.StatusGreen, "other", "A", "B", -1),
			21,
		},
		{
			"same short and long name",
			stationWithLast(database.StatusGreen, "other", "A", "A", 10*time.Minute),
			47,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StationRating(tt.station, ratingNow, preferred))
		})
	}
}

func TestClusterLevels(t *testing.T) {
	assert.Equal(t, []int{20, 44, 100}, clusterLevels(20, 100, 3))
	assert.Equal(t, []int{200}, clusterLevels(200, 100, 3), "min above max collapses")
	assert.Equal(t, []int{50}, clusterLevels(50, 1000, 1))
	assert.Nil(t, clusterLevels(10, 100, 0))

	levels := clusterLevels(200, 5000, 60)
	assert.Len(t, levels, 60)
	assert.Equal(t, 200, levels[0])
	assert.Equal(t, 5000, levels[len(levels)-1])
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1])
	}
}

func TestGroupByLabel(t *testing.T) {
	groups := groupByLabel([]int{0, 1, 0, 2, 1})
	require.Len(t, groups, 3)
	assert.Equal(t, []int{0, 2}, groups[0])
	assert.Equal(t, []int{1, 4}, groups[1])
	assert.Equal(t, []int{3}, groups[2])
}

func testJobs() *Jobs {
	return &Jobs{logger: log.Named("admin"), now: func() time.Time { return ratingNow }}
}

func TestElectRepresentativeNearestToCentroid(t *testing.T) {
	j := testJobs()
	stations := []database.Station{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}
	points := []cluster.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 10, Y: 10}}

	rep, ok := j.electRepresentative(stations, points, []int{0, 1})
	require.True(t, ok)
	assert.Contains(t, []int{0, 1}, rep)
}

func TestElectRepresentativeColocatedPrefersNewestMeasure(t *testing.T) {
	j := testJobs()
	stations := []database.Station{
		{ID: "a", Last: &database.Measure{ID: 100}},
		{ID: "b", Last: &database.Measure{ID: 900}},
		{ID: "c"},
	}
	// a and b share the exact same coordinate.
	points := []cluster.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 5, Y: 5}}

	rep, ok := j.electRepresentative(stations, points, []int{0, 1})
	require.True(t, ok)
	assert.Equal(t, 1, rep, "the station with the newest measure wins")
}

func TestGroupDuplicates(t *testing.T) {
	preferred := []string{"pioupiou"}
	stations := []database.Station{
		*stationWithLast(database.StatusGreen, "other", "A", "Station A", 10*time.Minute),
		*stationWithLast(database.StatusOrange, "other", "B", "Station B", 10*time.Minute),
		*stationWithLast(database.StatusGreen, "pioupiou", "C", "Station C", 10*time.Minute),
		*stationWithLast(database.StatusRed, "other", "D", "Station D", 10*time.Minute),
	}
	for i := range stations {
		stations[i].ID = stations[i].ShortName
	}

	group := []int{0, 2, 3}
	dups := groupDuplicates(stations, group, ratingNow, preferred)
	require.Len(t, dups, len(group))

	wantIDs := []string{"A", "C", "D"}
	flagged := 0
	for i, dup := range dups {
		assert.Equal(t, wantIDs, dup.Stations, "every member carries the same id list")
		assert.Equal(t, StationRating(&stations[group[i]], ratingNow, preferred), dup.Rating)
		if dup.IsHighestRating {
			flagged++
			for _, other := range dups {
				assert.GreaterOrEqual(t, dup.Rating, other.Rating, "the flagged member has the maximum rating")
			}
		}
	}
	assert.Equal(t, 1, flagged, "exactly one member is flagged")
	assert.True(t, dups[1].IsHighestRating, "the preferred provider outrates the rest")
}

func TestGroupDuplicatesTieKeepsFirst(t *testing.T) {
	stations := []database.Station{
		*stationWithLast(database.StatusGreen, "other", "A", "Station A", 10*time.Minute),
		*stationWithLast(database.StatusGreen, "other", "B", "Station B", 10*time.Minute),
	}
	stations[0].ID, stations[1].ID = "A", "B"

	dups := groupDuplicates(stations, []int{0, 1}, ratingNow, nil)
	require.Len(t, dups, 2)
	assert.Equal(t, dups[0].Rating, dups[1].Rating, "both stations rate identically")
	assert.True(t, dups[0].IsHighestRating)
	assert.False(t, dups[1].IsHighestRating)
}

func TestLevelRepresentatives(t *testing.T) {
	j := testJobs()
	// Three well-separated pairs.
	points := []cluster.Point{
		{X: 0, Y: 0}, {X: 0.001, Y: 0},
		{X: 1, Y: 1}, {X: 1.001, Y: 1},
		{X: 2, Y: 0}, {X: 2.001, Y: 0},
	}
	stations := make([]database.Station, len(points))
	for i := range stations {
		stations[i].ID = string(rune('a' + i))
	}
	dendrogram := cluster.Ward(points)

	for k := 1; k <= len(points); k++ {
		reps := j.levelRepresentatives(stations, points, dendrogram.CutK(k))
		assert.Len(t, reps, k, "one representative per cluster at k=%d", k)
		seen := map[int]bool{}
		for _, rep := range reps {
			assert.False(t, seen[rep], "representatives are distinct at k=%d", k)
			seen[rep] = true
		}
	}
}

func TestElectRepresentativeColocatedWithoutMeasures(t *testing.T) {
	j := testJobs()
	stations := []database.Station{{ID: "a"}, {ID: "b"}}
	points := []cluster.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}

	_, ok := j.electRepresentative(stations, points, []int{0, 1})
	assert.False(t, ok, "a silent co-located group goes unrepresented")
}
