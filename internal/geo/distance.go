// Package geo provides the Manhattan-distance geometry used for zone
// layout and drone motion. The world is an integer grid in meters, not a
// globe: a small set of pure functions plus one radius predicate.
package geo

import "firedrone/internal/model"

// Distance returns the Manhattan (L1) distance between a and b, in meters.
func Distance(a, b model.Location) int {
	return model.ManhattanDistance(a, b)
}

// OnPath reports whether p lies on a shortest Manhattan path from a to b,
// i.e. d(a,p) + d(p,b) == d(a,b).
func OnPath(a, b, p model.Location) bool {
	return model.OnPath(a, b, p)
}

// Midpoint returns the componentwise midpoint of a and b.
func Midpoint(a, b model.Location) model.Location {
	return model.Location{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// IsWithinRadius reports whether b lies within radiusMeters of a.
func IsWithinRadius(a, b model.Location, radiusMeters int) bool {
	return Distance(a, b) <= radiusMeters
}
