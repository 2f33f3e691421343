// Command save-clusters rebuilds the map's geometric cluster levels.
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
	min := flag.Int("min", 200, "Min value of the clusters range")
	num := flag.Int("num", 60, "Number of clusters in range")
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

	if err := admin.New(db).SaveClusters(ctx, *min, *num); err != nil {
		log.Errorf("Failed to save clusters: %v", err)
		os.Exit(1)
	}
}
