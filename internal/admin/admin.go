// Package admin implements the maintenance jobs that keep the stations
// collection usable: pruning dead stations, building the map's cluster
// levels and flagging near-duplicate stations.
package admin

import (
	"time"

	"go.uber.org/zap"

	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/log"
)

// Jobs bundles the maintenance operations over one database client.
type Jobs struct {
	db     *database.Client
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New builds the job set.
func New(db *database.Client) *Jobs {
	return &Jobs{
		db:     db,
		logger: log.Named("admin"),
		now:    time.Now,
	}
}

// lastMeasureID returns the station's newest observation instant, or 0
// when it has never reported.
func lastMeasureID(st *database.Station) int64 {
	if st.Last == nil {
		return 0
	}
	return st.Last.ID
}
