// Package database holds the MongoDB station store: the stations
// collection, one TTL'd measurement stream per station, the hand-authored
// stations_fix overrides and the providers bookkeeping collection.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	// Measurement streams expire documents ~10 days after observation.
	measureTTL = 10 * 24 * time.Hour

	defaultDatabase = "windfabric"
)

// Client holds the connection to the MongoDB station store
type Client struct {
	url    string
	client *mongo.Client
	db     *mongo.Database
	logger *zap.SugaredLogger

	// collection-name cache so EnsureMeasureStream hits the server once
	// per station per process
	mu          sync.Mutex
	collections map[string]bool
}

// NewClient creates a new station store client
func NewClient(mongoURL string, logger *zap.SugaredLogger) *Client {
	return &Client{
		url:         mongoURL,
		logger:      logger,
		collections: map[string]bool{},
	}
}

// Connect connects to MongoDB, selects the database named in the URL path
// and ensures the stations indexes exist.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("connecting to MongoDB...")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.url))
	if err != nil {
		return fmt.Errorf("unable to create a MongoDB connection: %w", err)
	}
	c.client = client
	c.db = client.Database(databaseName(c.url))

	names, err := c.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("unable to list collections: %w", err)
	}
	c.mu.Lock()
	for _, name := range names {
		c.collections[name] = true
	}
	c.mu.Unlock()

	_, err = c.Stations().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "loc", Value: "2dsphere"},
			{Key: "status", Value: 1},
			{Key: "pv-code", Value: 1},
			{Key: "short", Value: 1},
			{Key: "name", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to create stations index: %w", err)
	}

	c.logger.Info("MongoDB connection successful")
	return nil
}

// Disconnect closes the MongoDB connection.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// Ping checks the server is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Stations returns the stations collection.
func (c *Client) Stations() *mongo.Collection {
	return c.db.Collection("stations")
}

// Measures returns a station's measurement stream collection.
func (c *Client) Measures(stationID string) *mongo.Collection {
	return c.db.Collection(stationID)
}

func databaseName(mongoURL string) string {
	u, err := url.Parse(mongoURL)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}
