package entities

// Store field names of a bin record.
const (
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldFillLevel = "fill_level"
	FieldStatus    = "status"
	FieldAlert     = "alert"
)

// StatusCleaned is the status written by the "mark cleaned" action.
const StatusCleaned = "cleaned"

// Bin is the persisted state of one dustbin.
type Bin struct {
	ID        string  `json:"id"`         // store key
	Latitude  float64 `json:"latitude"`   // degrees
	Longitude float64 `json:"longitude"`  // degrees
	FillLevel int     `json:"fill_level"` // percentage 0..100
	Status    string  `json:"status"`     // free text written by the hardware
	Alert     bool    `json:"alert"`
}

// Tier returns the classification of the bin's current fill level.
func (b Bin) Tier() Tier { return Classify(b.FillLevel) }

// CleanedFields is the partial update applied when a worker empties a bin.
func CleanedFields() map[string]any {
	return map[string]any{
		FieldFillLevel: 0,
		FieldStatus:    StatusCleaned,
		FieldAlert:     false,
	}
}

// ApplyFields merges a partial update into the bin. Unknown keys and values
// of the wrong type are ignored.
func (b *Bin) ApplyFields(fields map[string]any) {
	for k, v := range fields {
		switch k {
		case FieldLatitude:
			if f, ok := v.(float64); ok {
				b.Latitude = f
			}
		case FieldLongitude:
			if f, ok := v.(float64); ok {
				b.Longitude = f
			}
		case FieldFillLevel:
			switch n := v.(type) {
			case int:
				b.FillLevel = n
			case float64:
				b.FillLevel = int(n)
			}
		case FieldStatus:
			if s, ok := v.(string); ok {
				b.Status = s
			}
		case FieldAlert:
			if a, ok := v.(bool); ok {
				b.Alert = a
			}
		}
	}
}

// Fields is the store representation of the bin, without its key.
func (b Bin) Fields() map[string]any {
	return map[string]any{
		FieldLatitude:  b.Latitude,
		FieldLongitude: b.Longitude,
		FieldFillLevel: b.FillLevel,
		FieldStatus:    b.Status,
		FieldAlert:     b.Alert,
	}
}
