// Command delete-stations removes stations not seen for a number of
// days, together with their measurement streams.
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
	days := flag.Int("days", 60, "Number of days since 'last seen' before deleting the station")
	provider := flag.String("provider", "", "Delete only stations from this provider, for example 'holfuy'")
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

	if _, err := admin.New(db).DeleteStations(ctx, *days, *provider); err != nil {
		log.Errorf("Failed to delete stations: %v", err)
		os.Exit(1)
	}
}
