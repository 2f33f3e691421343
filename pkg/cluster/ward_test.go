package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// three tight groups on a line, far enough apart that any sane linkage
// separates them.
func threeGroups() []Point {
	return []Point{
		{0, 0}, {0.001, 0}, {0, 0.001},
		{1, 1}, {1.001, 1}, {1, 1.001},
		{5, 5}, {5.001, 5}, {5, 5.001},
	}
}

func distinct(labels []int) int {
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	return len(seen)
}

func TestCutKProducesExactlyKClusters(t *testing.T) {
	d := Ward(threeGroups())
	for k := 1; k <= 9; k++ {
		labels := d.CutK(k)
		assert.Equal(t, k, distinct(labels), "k=%d", k)
	}
}

func TestCutKGroupsNeighbours(t *testing.T) {
	labels := Ward(threeGroups()).CutK(3)
	require.Len(t, labels, 9)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.Equal(t, labels[6], labels[8])
	assert.NotEqual(t, labels[0], labels[3])
	assert.NotEqual(t, labels[3], labels[6])
}

func TestCutKIsNested(t *testing.T) {
	// Agglomerative partitions are nested: points together at k stay
	// together at every smaller k.
	d := Ward(threeGroups())
	fine := d.CutK(3)
	coarse := d.CutK(2)
	for i := range fine {
		for j := range fine {
			if fine[i] == fine[j] {
				assert.Equal(t, coarse[i], coarse[j])
			}
		}
	}
}

func TestCutThresholdMergesClosePoints(t *testing.T) {
	// Two stations ~7 meters apart on the degree grid, a third one far
	// away. At a 50 m threshold (0.0005 degrees) only the close pair
	// merges.
	points := []Point{
		{6.5, 46.5},
		{6.5 + 7e-5, 46.5},
		{7.5, 46.5},
	}
	labels := Ward(points).CutThreshold(0.0005)
	assert.Equal(t, labels[0], labels[1])
	assert.NotEqual(t, labels[0], labels[2])
}

func TestCutThresholdKeepsDistantPointsApart(t *testing.T) {
	points := []Point{{0, 0}, {0.01, 0}, {0.02, 0}}
	labels := Ward(points).CutThreshold(0.0005)
	assert.Equal(t, 3, distinct(labels))
}

func TestDegenerateInputs(t *testing.T) {
	assert.Empty(t, Ward(nil).CutK(1))
	assert.Equal(t, []int{0}, Ward([]Point{{1, 2}}).CutK(5))
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Point{{0, 0}, {2, 0}, {1, 3}})
	assert.InDelta(t, 1.0, c.X, 1e-9)
	assert.InDelta(t, 1.0, c.Y, 1e-9)
}

func TestNearest(t *testing.T) {
	points := []Point{{0, 0}, {2, 0}, {1, 3}}
	assert.Equal(t, 1, Nearest(points, Point{1.9, 0.2}))
	assert.Equal(t, 0, Nearest(points, Point{-5, -5}))
}
