// Package adapters contains the per-source ingestion routines: each one
// fetches its upstream, maps stations and observations onto the engine's
// request types and submits them through a provider handle. Adapters are
// deliberately thin; validation, conversion, enrichment and persistence
// all live behind the handle.
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/pkg/units"
)

const (
	connectTimeout = 7 * time.Second
	readTimeout    = 30 * time.Second

	// DefaultInterval is the polling cadence for most upstreams.
	DefaultInterval = 5 * time.Minute
)

// Adapter couples a provider identity with its polling cadence and run
// function. The scheduler registers one job per adapter.
type Adapter struct {
	Provider engine.ProviderInfo
	Interval time.Duration
	Run      func(ctx context.Context, h *engine.Handle) error
}

// All returns the configured adapter set. The windline adapter only runs
// when its database URL is configured.
func All(cfg *config.Settings) []Adapter {
	adapters := []Adapter{FFVL(), Holfuy(), Pioupiou(), Metar()}
	if cfg.WindlineSQLURL != "" {
		adapters = append(adapters, Windline(cfg.WindlineSQLURL))
	}
	return adapters
}

var httpClient = &http.Client{
	Timeout: readTimeout,
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
	},
}

// getJSON fetches a JSON document. A UTF-8 BOM is tolerated, some
// upstreams still send one.
func getJSON(ctx context.Context, url string, header http.Header, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.Providerf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	body = []byte(strings.TrimPrefix(string(body), "\ufeff"))
	if err := json.Unmarshal(body, v); err != nil {
		return engine.Providerf("GET %s: unparseable response: %v", url, err)
	}
	return nil
}

// logStationError applies the per-station error policy: expected upstream
// and input problems are warnings, anything else is an error. The run
// moves on to the next station either way.
func logStationError(h *engine.Handle, stationID string, err error) {
	var invalid *engine.InvalidInputError
	var provider *engine.ProviderError
	var usage *engine.UsageLimitError
	if errors.As(err, &invalid) || errors.As(err, &provider) || errors.As(err, &usage) {
		h.Logger().Warnf("error while processing station '%s': %v", stationID, err)
		return
	}
	h.Logger().Errorf("error while processing station '%s': %v", stationID, err)
}

// number is a tolerant JSON scalar: upstreams flip-flop between numbers,
// numeric strings, empty strings and null for the same field.
type number struct {
	v *float64
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n.v = &f
	return nil
}

// value wraps the number as a unit quantity, or the absent Value.
func (n number) value(u units.Unit) units.Value {
	if n.v == nil {
		return units.None()
	}
	if u == units.Canonical {
		return units.Raw(*n.v)
	}
	return units.New(*n.v, u)
}

// float returns the raw number, or nil.
func (n number) float() *float64 { return n.v }

// str is a tolerant JSON string: numeric ids arrive quoted or not.
type str string

func (s *str) UnmarshalJSON(b []byte) error {
	v := strings.Trim(string(b), `"`)
	if v == "null" {
		v = ""
	}
	*s = str(v)
	return nil
}
