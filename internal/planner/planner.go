// Package planner computes which catalog items need transferring by
// comparing each item's update marker against the recorded state.
package planner

import (
	"strconv"
	"time"

	"arcsync/internal/remote"
)

// Plan selects the catalog items to transfer: items with no recorded entry,
// plus items whose marker is strictly newer than the recorded one. Output
// order equals catalog order. Pure function, no I/O.
func Plan(catalog []remote.Item, recorded map[string]string) []remote.Item {
	plan := make([]remote.Item, 0)
	for _, item := range catalog {
		prior, ok := recorded[item.Identifier]
		if !ok {
			plan = append(plan, item)
			continue
		}
		if parseEpoch(item.Marker) > parseEpoch(prior) {
			plan = append(plan, item)
		}
	}
	return plan
}

var markerLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseEpoch normalizes an update marker to unix seconds for ordering. A
// marker that matches none of the known formats normalizes to zero, the
// earliest possible value. Two unrecognized markers therefore compare equal,
// and an unrecognized remote marker never exceeds a valid recorded one: when
// the marker format is unknown, an already-synced item is not re-downloaded.
func parseEpoch(marker string) int64 {
	if marker == "" {
		return 0
	}
	for _, layout := range markerLayouts {
		if t, err := time.Parse(layout, marker); err == nil {
			return t.Unix()
		}
	}
	if n, err := strconv.ParseInt(marker, 10, 64); err == nil && n >= 0 {
		return n
	}
	return 0
}
