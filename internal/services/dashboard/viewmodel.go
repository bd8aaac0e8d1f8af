package dashboard

import (
	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

// Map defaults.
const (
	FallbackLatitude  = 12.97
	FallbackLongitude = 77.59
	DefaultZoom       = 12
	PointRadius       = 40
)

// MapPoint is one marker of the map layer.
type MapPoint struct {
	Key   string       `json:"name"`
	Lon   float64      `json:"lon"`
	Lat   float64      `json:"lat"`
	Color entities.RGB `json:"color"`
	Hex   string       `json:"hex"`
}

type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Card is the per-bin status block with its action.
type Card struct {
	Key       string        `json:"key"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	FillLevel int           `json:"fill_level"`
	Status    string        `json:"status"`
	Alert     bool          `json:"alert"`
	Tier      entities.Tier `json:"tier"`
	Advisory  string        `json:"advisory"`
	Attention bool          `json:"needs_attention"`
	Color     string        `json:"color"`
}

// InvalidRecord is a record that failed validation.
type InvalidRecord struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// ViewModel is everything the page and /api/bins render.
type ViewModel struct {
	Points  []MapPoint      `json:"points"`
	Center  Center          `json:"center"`
	Zoom    int             `json:"zoom"`
	Radius  int             `json:"radius"`
	Cards   []Card          `json:"cards"`
	Invalid []InvalidRecord `json:"invalid"`
}

// Build turns ordered bins into the view model. The map is centered on the
// first bin, or on the fallback location when there are none.
func Build(bins []entities.Bin, invalid []*store.DecodeError) ViewModel {
	vm := ViewModel{
		Points:  make([]MapPoint, 0, len(bins)),
		Center:  Center{Lat: FallbackLatitude, Lon: FallbackLongitude},
		Zoom:    DefaultZoom,
		Radius:  PointRadius,
		Cards:   make([]Card, 0, len(bins)),
		Invalid: make([]InvalidRecord, 0, len(invalid)),
	}
	if len(bins) > 0 {
		vm.Center = Center{Lat: bins[0].Latitude, Lon: bins[0].Longitude}
	}
	for _, b := range bins {
		tier := b.Tier()
		color := tier.Color()
		vm.Points = append(vm.Points, MapPoint{
			Key:   b.ID,
			Lon:   b.Longitude,
			Lat:   b.Latitude,
			Color: color,
			Hex:   color.Hex(),
		})
		vm.Cards = append(vm.Cards, Card{
			Key:       b.ID,
			Latitude:  b.Latitude,
			Longitude: b.Longitude,
			FillLevel: b.FillLevel,
			Status:    b.Status,
			Alert:     b.Alert,
			Tier:      tier,
			Advisory:  tier.Advisory(),
			Attention: tier.NeedsAttention(),
			Color:     color.Hex(),
		})
	}
	for _, e := range invalid {
		vm.Invalid = append(vm.Invalid, InvalidRecord{Key: e.Key, Reason: e.Error()})
	}
	return vm
}
