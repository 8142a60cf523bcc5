package scheduler

import (
	"sort"
	"strconv"

	"firedrone/internal/geo"
	"firedrone/internal/model"
)

// selectBest picks the drone that should receive the next assignment to a
// fire at target: fewest zones serviced first, then nearest by Manhattan
// distance, with remaining ties broken lexicographically by drone id so
// selection is deterministic for identical fleet snapshots.
func selectBest(candidates []*model.DroneStatus, target model.Location) *model.DroneStatus {
	if len(candidates) == 0 {
		return nil
	}
	ranked := make([]*model.DroneStatus, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ZonesServiced != b.ZonesServiced {
			return a.ZonesServiced < b.ZonesServiced
		}
		da := geo.Distance(a.CurrentLocation, target)
		db := geo.Distance(b.CurrentLocation, target)
		if da != db {
			return da < db
		}
		return strconv.Itoa(a.ID) < strconv.Itoa(b.ID)
	})
	return ranked[0]
}
