package engine

import (
	"encoding/json"
	"sort"
)

// StationNames is the (short, long) display name pair of a station.
type StationNames struct {
	Short string
	Name  string
}

// Names tells SaveStation where a station's display names come from:
// either the adapter supplies them (FixedNames) or they are derived from
// reverse geocoding (DerivedNames).
type Names interface {
	names()
}

// FixedNames are adapter-supplied display names, used as-is.
type FixedNames StationNames

func (FixedNames) names() {}

// DerivedNames receives the geocoded names for the station's coordinate
// and returns the names to store. Adapters use it to decorate or fall
// back around the geocoded result.
type DerivedNames func(geocoded StationNames) StationNames

func (DerivedNames) names() {}

// addressTypes is the priority order used to pick the most interesting
// geocoding result and component for a station name.
var addressTypes = []string{
	"airport",
	"locality",
	"colloquial_area",
	"natural_feature",
	"point_of_interest",
	"neighborhood",
	"sublocality",
	"administrative_area_level_3",
}

type geocodingResponse struct {
	Results []geocodingAddress `json:"results"`
}

type geocodingAddress struct {
	Types             []string `json:"types"`
	AddressComponents []struct {
		ShortName string   `json:"short_name"`
		LongName  string   `json:"long_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
}

func addressRank(a geocodingAddress) int {
	for i, t := range addressTypes {
		for _, at := range a.Types {
			if at == t {
				return i
			}
		}
	}
	return len(addressTypes) + 1
}

// parseGeocoding decodes a raw geocoding response body.
func parseGeocoding(raw string) ([]geocodingAddress, error) {
	var resp geocodingResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, Providerf("unparseable geocoding payload: %v", err)
	}
	return resp.Results, nil
}

// geocodedNames picks the station names out of geocoding results: the
// best-ranked address wins, then the first component matching the type
// priority supplies (short_name, long_name). Empty names mean no match.
func geocodedNames(results []geocodingAddress) StationNames {
	if len(results) == 0 {
		return StationNames{}
	}
	addresses := make([]geocodingAddress, len(results))
	copy(addresses, results)
	sort.SliceStable(addresses, func(i, j int) bool {
		return addressRank(addresses[i]) < addressRank(addresses[j])
	})
	best := addresses[0]
	for _, t := range addressTypes {
		for _, c := range best.AddressComponents {
			for _, ct := range c.Types {
				if ct == t {
					return StationNames{Short: c.ShortName, Name: c.LongName}
				}
			}
		}
	}
	return StationNames{}
}

// geocodedCountry extracts the ISO country code from geocoding results,
// or "" when none of the addresses is a country.
func geocodedCountry(results []geocodingAddress) string {
	for _, a := range results {
		for _, t := range a.Types {
			if t == "country" && len(a.AddressComponents) > 0 {
				return a.AddressComponents[0].ShortName
			}
		}
	}
	return ""
}
