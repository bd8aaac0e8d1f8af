package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/binova/internal/model/entities"
)

// DecodeError reports why one record could not be turned into a Bin.
type DecodeError struct {
	Key    string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("bin %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("bin %s: %s: %s", e.Key, e.Field, e.Reason)
}

// Decode validates a raw record. latitude, longitude, fill_level and status
// are required; alert defaults to false.
func Decode(key string, raw map[string]any) (entities.Bin, error) {
	if raw == nil {
		return entities.Bin{}, &DecodeError{Key: key, Reason: "record is not an object"}
	}
	b := entities.Bin{ID: key}

	lat, err := number(key, raw, entities.FieldLatitude, -90, 90)
	if err != nil {
		return entities.Bin{}, err
	}
	lon, err := number(key, raw, entities.FieldLongitude, -180, 180)
	if err != nil {
		return entities.Bin{}, err
	}
	fill, err := number(key, raw, entities.FieldFillLevel, 0, 100)
	if err != nil {
		return entities.Bin{}, err
	}
	b.Latitude, b.Longitude, b.FillLevel = lat, lon, int(math.Round(fill))

	sv, ok := raw[entities.FieldStatus]
	if !ok || sv == nil {
		return entities.Bin{}, &DecodeError{Key: key, Field: entities.FieldStatus, Reason: "missing"}
	}
	s, ok := sv.(string)
	if !ok {
		return entities.Bin{}, &DecodeError{Key: key, Field: entities.FieldStatus, Reason: fmt.Sprintf("expected string, got %T", sv)}
	}
	b.Status = s

	if av, ok := raw[entities.FieldAlert]; ok && av != nil {
		switch x := av.(type) {
		case bool:
			b.Alert = x
		case string:
			a, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return entities.Bin{}, &DecodeError{Key: key, Field: entities.FieldAlert, Reason: "not a boolean"}
			}
			b.Alert = a
		default:
			return entities.Bin{}, &DecodeError{Key: key, Field: entities.FieldAlert, Reason: fmt.Sprintf("expected bool, got %T", av)}
		}
	}
	return b, nil
}

// DecodeAll decodes every entry, keeping input order. Bad records are
// reported and skipped, they never abort the read.
func DecodeAll(entries []Entry) ([]entities.Bin, []*DecodeError) {
	bins := make([]entities.Bin, 0, len(entries))
	var bad []*DecodeError
	for _, e := range entries {
		b, err := Decode(e.Key, e.Fields)
		if err != nil {
			bad = append(bad, err.(*DecodeError))
			continue
		}
		bins = append(bins, b)
	}
	return bins, bad
}

func number(key string, raw map[string]any, field string, min, max float64) (float64, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, &DecodeError{Key: key, Field: field, Reason: "missing"}
	}
	f, ok := toF64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &DecodeError{Key: key, Field: field, Reason: fmt.Sprintf("not a number: %v", v)}
	}
	if f < min || f > max {
		return 0, &DecodeError{Key: key, Field: field, Reason: fmt.Sprintf("%v out of range [%v,%v]", f, min, max)}
	}
	return f, nil
}

// toF64 accepts JSON numbers, Go integers and numeric strings (hardware
// firmwares sometimes quote their readings, decimal comma included).
func toF64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}
