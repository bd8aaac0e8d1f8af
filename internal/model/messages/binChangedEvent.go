package messages

import "time"

// Reasons carried by BinChangedEvent.
const (
	ReasonCleaned   = "cleaned"
	ReasonTelemetry = "telemetry"
)

// BinChangedEvent announces that a bin record was written. Consumers re-fetch
// or patch their view of the bin.
type BinChangedEvent struct {
	EventID   string    `json:"event_id"`
	BinID     string    `json:"bin_id"`
	Reason    string    `json:"reason"` // "cleaned" | "telemetry"
	FillLevel int       `json:"fill_level"`
	Status    string    `json:"status"`
	Alert     bool      `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}
