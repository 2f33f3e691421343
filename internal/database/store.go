package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertStation overwrites the station's adapter-owned fields, creating
// the document on first sight.
func (c *Client) UpsertStation(ctx context.Context, st *Station) error {
	id := st.ID
	doc := *st
	doc.ID = "" // _id lives in the filter, omitempty keeps it out of $set
	_, err := c.Stations().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting station %s: %w", id, err)
	}
	return nil
}

// StationLocation returns the stored coordinates of a station, if any.
func (c *Client) StationLocation(ctx context.Context, stationID string) (lon, lat float64, found bool, err error) {
	var st Station
	err = c.Stations().FindOne(ctx,
		bson.M{"_id": stationID},
		options.FindOne().SetProjection(bson.M{"loc.coordinates": 1}),
	).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return st.Location.Longitude(), st.Location.Latitude(), true, nil
}

// EnsureMeasureStream creates the per-station measurement collection with
// its TTL index the first time a station is saved.
func (c *Client) EnsureMeasureStream(ctx context.Context, stationID string) error {
	c.mu.Lock()
	known := c.collections[stationID]
	c.mu.Unlock()
	if known {
		return nil
	}

	if err := c.db.CreateCollection(ctx, stationID); err != nil {
		// NamespaceExists: another process created it since we listed names.
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != 48 {
			return fmt.Errorf("creating measure stream %s: %w", stationID, err)
		}
	}
	_, err := c.Measures(stationID).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "time", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(measureTTL.Seconds())),
	})
	if err != nil {
		return fmt.Errorf("creating TTL index on %s: %w", stationID, err)
	}

	c.mu.Lock()
	c.collections[stationID] = true
	c.mu.Unlock()
	return nil
}

// FindFix returns the manual override document for a station, or nil.
func (c *Client) FindFix(ctx context.Context, stationID string) (*Fix, error) {
	var fix Fix
	err := c.db.Collection("stations_fix").FindOne(ctx, bson.M{"_id": stationID}).Decode(&fix)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading fix for %s: %w", stationID, err)
	}
	return &fix, nil
}

// HasMeasure reports whether the station's stream already holds the
// observation instant.
func (c *Client) HasMeasure(ctx context.Context, stationID string, ts int64) (bool, error) {
	n, err := c.Measures(stationID).CountDocuments(ctx, bson.M{"_id": ts})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertMeasures bulk-inserts measures unordered and returns how many were
// actually inserted. Duplicate observation instants are dropped silently.
func (c *Client) InsertMeasures(ctx context.Context, stationID string, measures []Measure) (int, error) {
	docs := make([]interface{}, len(measures))
	for i := range measures {
		docs[i] = measures[i]
	}
	res, err := c.Measures(stationID).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, fmt.Errorf("inserting measures for %s: %w", stationID, err)
	}
	if res == nil {
		return 0, nil
	}
	return len(res.InsertedIDs), nil
}

// LatestMeasure returns the newest measure in the station's stream, or nil
// when the stream is empty.
func (c *Client) LatestMeasure(ctx context.Context, stationID string) (*Measure, error) {
	var m Measure
	err := c.Measures(stationID).FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetLastMeasure denormalises the newest measure onto the station document.
func (c *Client) SetLastMeasure(ctx context.Context, stationID string, m *Measure) error {
	_, err := c.Stations().UpdateOne(ctx,
		bson.M{"_id": stationID},
		bson.M{"$set": bson.M{"last": m}})
	return err
}

// TouchProvider upserts the provider bookkeeping record: lastSeenAt on
// every call, firstSeenAt only when the record is created.
func (c *Client) TouchProvider(ctx context.Context, code, name, url string, now time.Time) error {
	_, err := c.db.Collection("providers").UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{
			"$set":         bson.M{"name": name, "url": url, "lastSeenAt": now},
			"$setOnInsert": bson.M{"firstSeenAt": now},
		},
		options.Update().SetUpsert(true))
	return err
}

// ListStations returns full station documents matching the filter.
func (c *Client) ListStations(ctx context.Context, filter bson.M) ([]Station, error) {
	cur, err := c.Stations().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var stations []Station
	if err := cur.All(ctx, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// BulkWriteStations applies a batch of station updates in one round trip.
// The batch is ordered: the admin jobs lead with a reset of the field they
// rebuild, so it must run before the per-station updates.
func (c *Client) BulkWriteStations(ctx context.Context, ops []mongo.WriteModel) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := c.Stations().BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true))
	return err
}

// SaveClusterRange records the (min, max) cluster bounds the map UI reads.
func (c *Client) SaveClusterRange(ctx context.Context, min, max int) error {
	_, err := c.db.Collection("stations_clusters").UpdateOne(ctx,
		bson.M{"_id": "save_clusters"},
		bson.M{"$set": bson.M{"min": min, "max": max}},
		options.Update().SetUpsert(true))
	return err
}

// DeleteStation removes the station document and drops its stream.
func (c *Client) DeleteStation(ctx context.Context, stationID string) error {
	if err := c.Measures(stationID).Drop(ctx); err != nil {
		return fmt.Errorf("dropping stream %s: %w", stationID, err)
	}
	if _, err := c.Stations().DeleteOne(ctx, bson.M{"_id": stationID}); err != nil {
		return fmt.Errorf("deleting station %s: %w", stationID, err)
	}
	c.mu.Lock()
	delete(c.collections, stationID)
	c.mu.Unlock()
	return nil
}
