// Command find-duplicates flags stations standing within a given
// distance of each other.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/windmobile/windfabric/internal/admin"
	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/log"
)

func main() {
	distance := flag.Int("distance", 50, "Maximum distance in meters between 2 duplicate stations")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db := database.NewClient(cfg.MongoURL, log.Named("mongo"))
	if err := db.Connect(ctx); err != nil {
		log.Errorf("Failed to connect to mongodb: %v", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	if err := admin.New(db).FindDuplicates(ctx, float64(*distance), cfg.PreferredProviders); err != nil {
		log.Errorf("Failed to find duplicates: %v", err)
		os.Exit(1)
	}
}
