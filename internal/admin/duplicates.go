package admin

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/pkg/cluster"
)

// degreesPerMeter converts a meter distance into the flat degree grid the
// clustering runs on. Crude, but duplicates sit a few hundred meters
// apart at most, where the distortion does not matter.
const degreesPerMeter = 1.0 / 100000.0

// FindDuplicates groups visible stations closer together than distanceM
// meters and marks each group member with the group's ids, its own rating
// and whether it is the group's best station. Preferred provider codes
// get a rating bonus.
func (j *Jobs) FindDuplicates(ctx context.Context, distanceM float64, preferred []string) error {
	j.logger.Infof("finding duplicate stations within %.0f meters", distanceM)

	stations, err := j.db.ListStations(ctx, bson.M{"status": bson.M{"$ne": database.StatusHidden}})
	if err != nil {
		return err
	}

	ops := []mongo.WriteModel{
		mongo.NewUpdateManyModel().
			SetFilter(bson.M{}).
			SetUpdate(bson.M{"$set": bson.M{"duplicates": nil}}),
	}

	var groups [][]int
	if len(stations) >= 2 {
		labels := cluster.Ward(stationPoints(stations)).CutThreshold(distanceM * degreesPerMeter)
		for _, group := range groupByLabel(labels) {
			if len(group) > 1 {
				groups = append(groups, group)
			}
		}
	}

	now := j.now()
	total := 0
	for _, group := range groups {
		total += len(group)
		for i, dup := range groupDuplicates(stations, group, now, preferred) {
			idx := group[i]
			ops = append(ops, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": stations[idx].ID}).
				SetUpdate(bson.M{"$set": bson.M{"duplicates": dup}}))
			j.logDuplicate(&stations[idx], dup.Rating, dup.IsHighestRating)
		}
	}

	if err := j.db.BulkWriteStations(ctx, ops); err != nil {
		return err
	}
	j.logger.Infof("found %d stations in %d duplicate groups", total, len(groups))
	return nil
}

// groupDuplicates computes the duplicate markers for one group of station
// indexes: every member carries the same id list and its own rating, and
// exactly one member, the first with the maximum rating, is flagged as the
// group's best.
func groupDuplicates(stations []database.Station, group []int, now time.Time, preferred []string) []database.Duplicates {
	ids := make([]string, len(group))
	ratings := make([]int, len(group))
	highest := 0
	for i, idx := range group {
		ids[i] = stations[idx].ID
		ratings[i] = StationRating(&stations[idx], now, preferred)
		if ratings[i] > ratings[highest] {
			highest = i
		}
	}

	dups := make([]database.Duplicates, len(group))
	for i := range group {
		dups[i] = database.Duplicates{
			Stations:        ids,
			Rating:          ratings[i],
			IsHighestRating: i == highest,
		}
	}
	return dups
}

func (j *Jobs) logDuplicate(st *database.Station, rating int, highest bool) {
	date := "N/A"
	if last := lastMeasureID(st); last != 0 {
		date = time.Unix(last, 0).UTC().Format("06-01-02 15:04:05-07:00")
	}
	mark := ""
	if highest {
		mark = "*"
	}
	j.logger.Infof("%d%s %s ('%s'/'%s') %s", rating, mark, st.ID, st.ShortName, st.Name, date)
}

// StationRating scores a station for duplicate resolution. Orange and red
// stations are capped outright; for the rest the score grows with status,
// freshness of the last measure, provider preference and having a
// distinct short name.
func StationRating(st *database.Station, now time.Time, preferred []string) int {
	switch st.Status {
	case database.StatusOrange:
		return 5
	case database.StatusRed:
		return 1
	}

	rating := 0
	if st.Status == database.StatusGreen {
		rating += 20
	}

	if last := lastMeasureID(st); last != 0 {
		n := now.Unix()
		switch {
		case last > n-30*60:
			rating += 25
		case last > n-3600:
			rating += 20
		case last > n-5*24*3600:
			rating += 5
		}
		rating += 2
	}

	for _, code := range preferred {
		if st.ProviderCode == code {
			rating++
			break
		}
	}
	if st.Name != st.ShortName {
		rating++
	}
	return rating
}
