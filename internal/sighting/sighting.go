// Package sighting holds the rolling log of ingested courier sightings.
package sighting

import "time"

// Sighting is one ingested location report. Immutable once stored. The JSON
// tags match the mirror document schema consumed by the map web-app.
type Sighting struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	OccurredAt time.Time `json:"timestamp"`
	Reporter   string    `json:"user"`
	MessageID  int64     `json:"message_id"`
}
