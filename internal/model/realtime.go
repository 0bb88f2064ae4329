package model

import (
	"encoding/json"
	"time"
)

// Snapshot is the realtime payload pushed to websocket clients for a location.
// Missing feeds are sent as empty objects.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Foodbank  json.RawMessage `json:"foodbank"`
	Weather   json.RawMessage `json:"weather"`
	Queue     json.RawMessage `json:"queue"`
}

// EmptyObject is the JSON value used for a feed with no data.
var EmptyObject = json.RawMessage(`{}`)
