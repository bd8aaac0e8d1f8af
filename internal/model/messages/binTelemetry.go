package messages

import "time"

// BinTelemetry is published by the bin hardware on bin/data/{bin}.
// Only FillLevel is mandatory; absent fields leave the stored value untouched.
type BinTelemetry struct {
	BinID     string    `json:"bin_id,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	FillLevel *int      `json:"fill_level"`
	Status    *string   `json:"status,omitempty"`
	Alert     *bool     `json:"alert,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
