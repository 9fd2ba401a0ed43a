package replication

import (
	"fmt"
	"strings"
)

// Source is a replication stream
type Source struct {
	Name    string
	BaseURL string
}

// StateURL returns the URL of the state file of sequence seq.
func (s *Source) StateURL(seq int64) string {
	return fmt.Sprintf("%s/%s.state.txt", s.BaseURL, SequenceToPath(seq))
}

const planetBase = "https://planet.openstreetmap.org/replication/"

// Geofabrik regions with their replication paths
var geofabrikRegions = map[string]string{
	"europe":         "europe",
	"germany":        "europe/germany",
	"france":         "europe/france",
	"italy":          "europe/italy",
	"spain":          "europe/spain",
	"great-britain":  "europe/great-britain",
	"united-kingdom": "europe/great-britain",
	"netherlands":    "europe/netherlands",
	"belgium":        "europe/belgium",
	"switzerland":    "europe/switzerland",
	"austria":        "europe/austria",
	"poland":         "europe/poland",
	"monaco":         "europe/monaco",
	"north-america":  "north-america",
	"us":             "north-america/us",
	"canada":         "north-america/canada",
	"south-america":  "south-america",
	"asia":           "asia",
	"japan":          "asia/japan",
	"africa":         "africa",
	"australia":      "australia-oceania/australia",
}

func geofabrik(region string) *Source {
	path, ok := geofabrikRegions[region]
	if !ok {
		path = region
	}
	return &Source{
		Name:    "geofabrik/" + region,
		BaseURL: fmt.Sprintf("https://download.geofabrik.de/%s-updates", path),
	}
}

// ParseSource resolves a source name to a replication stream.
// Formats:
//   - "planet-minute", "planet-hour", "planet-day" (or "minute", ...)
//   - "geofabrik/<region>" or a known region name
//   - an http(s) base URL
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch lower {
	case "planet-minute", "minute":
		return &Source{Name: "planet-minute", BaseURL: planetBase + "minute"}, nil
	case "planet-hour", "hour":
		return &Source{Name: "planet-hour", BaseURL: planetBase + "hour"}, nil
	case "planet-day", "day":
		return &Source{Name: "planet-day", BaseURL: planetBase + "day"}, nil
	}

	if region, ok := strings.CutPrefix(lower, "geofabrik/"); ok && region != "" {
		return geofabrik(region), nil
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return &Source{Name: "custom", BaseURL: strings.TrimSuffix(s, "/")}, nil
	}
	if _, ok := geofabrikRegions[lower]; ok {
		return geofabrik(lower), nil
	}
	return nil, fmt.Errorf("unknown replication source: %s", s)
}
