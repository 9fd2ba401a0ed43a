package pipeline

import "github.com/paulmach/osm"

// metadataKeys carry no meaning on their own.
var metadataKeys = map[string]bool{
	"created_by": true,
	"source":     true,
	"note":       true,
	"fixme":      true,
	"FIXME":      true,
}

// areaKeys decide whether a closed way is an area. False entries are lines
// even when closed, like roundabouts or closed rivers.
var areaKeys = map[string]bool{
	"building": true,
	"landuse":  true,
	"natural":  true,
	"leisure":  true,
	"amenity":  true,
	"shop":     true,
	"tourism":  true,
	"man_made": true,
	"waterway": false,
	"highway":  false,
	"barrier":  false,
	"railway":  false,
}

// hasMeaningfulTags checks if tags contain more than just metadata
func hasMeaningfulTags(tags osm.Tags) bool {
	for _, tag := range tags {
		if !metadataKeys[tag.Key] {
			return true
		}
	}
	return false
}

// isArea checks if a closed way should be treated as a polygon
func isArea(tags osm.Tags) bool {
	if v := tags.Find("area"); v != "" {
		return v == "yes"
	}
	for _, tag := range tags {
		if area, ok := areaKeys[tag.Key]; ok {
			return area
		}
	}
	return false
}

// isClosed reports whether a way starts and ends at the same node.
func isClosed(w *osm.Way) bool {
	n := len(w.Nodes)
	return n >= 4 && w.Nodes[0].ID == w.Nodes[n-1].ID
}
