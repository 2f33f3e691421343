package admin

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gonum.org/v1/gonum/floats"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/pkg/cluster"
)

// activeWindow is how recent a station's last measure must be to take
// part in the map clustering.
const activeWindow = 30 * 24 * 3600

// SaveClusters rebuilds the map's zoom levels: numClusters geometrically
// spaced cluster counts between minCluster and the number of active
// stations. At each level every cluster elects one representative
// station, which gets the level appended to its clusters array.
func (j *Jobs) SaveClusters(ctx context.Context, minCluster, numClusters int) error {
	j.logger.Infof("creating %d station clusters", numClusters)

	now := j.now().Unix()
	stations, err := j.db.ListStations(ctx, bson.M{
		"status":   bson.M{"$ne": database.StatusHidden},
		"last._id": bson.M{"$gt": now - activeWindow},
	})
	if err != nil {
		return err
	}

	if err := j.db.SaveClusterRange(ctx, minCluster, len(stations)); err != nil {
		return err
	}

	ops := []mongo.WriteModel{
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{}).
			SetUpdate(bson.M{"$set": bson.M{"clusters": []int{}}}),
	}

	if len(stations) >= 2 && minCluster >= 1 {
		points := stationPoints(stations)
		dendrogram := cluster.Ward(points)
		levels := clusterLevels(minCluster, len(stations), numClusters)

		for i := len(levels) - 1; i >= 0; i-- {
			level := levels[i]
			for _, rep := range j.levelRepresentatives(stations, points, dendrogram.CutK(level)) {
				ops = append(ops, mongo.NewUpdateOneModel().
					SetFilter(bson.M{"_id": stations[rep].ID}).
					SetUpdate(bson.M{"$addToSet": bson.M{"clusters": level}}))
			}
		}
	} else {
		j.logger.Warnf("not enough active stations (%d) to cluster", len(stations))
	}

	if err := j.db.BulkWriteStations(ctx, ops); err != nil {
		return err
	}
	j.logger.Infof("done, created %d clusters", numClusters)
	return nil
}

// clusterLevels returns numLevels cluster counts spaced geometrically
// between min and max, inclusive.
func clusterLevels(min, max, numLevels int) []int {
	if numLevels < 1 {
		return nil
	}
	if numLevels == 1 || min >= max {
		return []int{min}
	}
	span := floats.LogSpan(make([]float64, numLevels), float64(min), float64(max))
	levels := make([]int, numLevels)
	for i, v := range span {
		levels[i] = int(v)
	}
	// The endpoints are exact by definition; exp(log(x)) is not.
	levels[0] = min
	levels[numLevels-1] = max
	return levels
}

func stationPoints(stations []database.Station) []cluster.Point {
	points := make([]cluster.Point, len(stations))
	for i := range stations {
		points[i] = cluster.Point{
			X: stations[i].Location.Longitude(),
			Y: stations[i].Location.Latitude(),
		}
	}
	return points
}

// groupByLabel inverts a label slice into per-cluster index groups,
// ordered by label.
func groupByLabel(labels []int) [][]int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	groups := make([][]int, max+1)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

// levelRepresentatives returns the station indexes representing each
// cluster of one dendrogram cut. Clusters whose representative cannot be
// decided are left out.
func (j *Jobs) levelRepresentatives(stations []database.Station, points []cluster.Point, labels []int) []int {
	var reps []int
	for _, group := range groupByLabel(labels) {
		if rep, ok := j.electRepresentative(stations, points, group); ok {
			reps = append(reps, rep)
		}
	}
	return reps
}

// electRepresentative picks the station standing for a cluster: the one
// nearest the cluster centroid. When several stations share that exact
// coordinate, the one with the newest measure wins; if none of them ever
// reported, the cluster goes unrepresented at this level.
func (j *Jobs) electRepresentative(stations []database.Station, points []cluster.Point, group []int) (int, bool) {
	groupPoints := make([]cluster.Point, len(group))
	for i, idx := range group {
		groupPoints[i] = points[idx]
	}
	middle := groupPoints[cluster.Nearest(groupPoints, cluster.Centroid(groupPoints))]

	var colocated []int
	for i, p := range points {
		if p == middle {
			colocated = append(colocated, i)
		}
	}
	if len(colocated) == 1 {
		return colocated[0], true
	}

	best, bestLast := -1, int64(0)
	for _, idx := range colocated {
		if last := lastMeasureID(&stations[idx]); last > bestLast {
			best, bestLast = idx, last
		}
	}
	if best < 0 {
		j.logger.Warnf("ignoring cluster of %d stations at the same location, none has measures", len(colocated))
		return 0, false
	}
	j.logger.Warnf("multiple stations at cluster middle, '%s' has the latest measure", stations[best].ID)
	return best, true
}
