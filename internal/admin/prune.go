package admin

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// DeleteStations removes every station not seen for the given number of
// days, together with its measure stream. A station without a lastSeenAt
// field at all is also removed. When provider is non-empty only that
// provider's stations are considered. Returns the number of stations
// deleted.
func (j *Jobs) DeleteStations(ctx context.Context, days int, provider string) (int, error) {
	cutoff := j.now().UTC().AddDate(0, 0, -days)

	who := provider
	if who == "" {
		who = "any"
	}
	j.logger.Infof("deleting stations from '%s' provider not seen since %d days", who, days)

	filter := bson.M{
		"$or": []bson.M{
			{"lastSeenAt": bson.M{"$exists": false}},
			{"lastSeenAt": bson.M{"$lt": cutoff}},
		},
	}
	if provider != "" {
		filter["pv-code"] = provider
	}

	stations, err := j.db.ListStations(ctx, filter)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := range stations {
		st := &stations[i]
		j.logger.Infof("deleting %s ['%s'], last seen at %s",
			st.ID, st.ShortName, st.LastSeenAt.Format(time.RFC3339))
		if err := j.db.DeleteStation(ctx, st.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	j.logger.Infof("done, deleted %d stations", deleted)
	return deleted, nil
}
