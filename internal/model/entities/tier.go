package entities

// Tier is the severity bucket derived from a bin's fill level.
type Tier string

const (
	TierNormal  Tier = "normal"
	TierFilling Tier = "filling"
	TierFull    Tier = "full"
)

// Fill level thresholds (percent, inclusive lower bounds).
const (
	FullThreshold    = 80
	FillingThreshold = 50
)

// RGB is a display color as used by the map layer.
type RGB [3]uint8

// Classify maps a fill level to its tier. There is no hysteresis.
func Classify(fillLevel int) Tier {
	switch {
	case fillLevel >= FullThreshold:
		return TierFull
	case fillLevel >= FillingThreshold:
		return TierFilling
	default:
		return TierNormal
	}
}

// Color returns the map color of the tier.
func (t Tier) Color() RGB {
	switch t {
	case TierFull:
		return RGB{255, 0, 0}
	case TierFilling:
		return RGB{255, 165, 0}
	default:
		return RGB{0, 255, 0}
	}
}

// Advisory is the message shown next to a bin card.
func (t Tier) Advisory() string {
	switch t {
	case TierFull:
		return "FULL – clean ASAP"
	case TierFilling:
		return "filling up"
	default:
		return "normal"
	}
}

// NeedsAttention reports whether a worker should visit the bin.
func (t Tier) NeedsAttention() bool { return t == TierFull || t == TierFilling }

// Hex renders the color as a CSS hex string, e.g. "#ff0000".
func (c RGB) Hex() string {
	const digits = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range c {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0x0f]
	}
	return string(b)
}
