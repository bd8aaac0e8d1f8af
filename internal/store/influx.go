package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/binova/internal/model/entities"
)

// InfluxConfig configures the InfluxDB backend. Every record field is an
// Influx field of Measurement tagged with bin_id; the current record is the
// last value of each field within Lookback.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string        // default "dustbins"
	Lookback    time.Duration // default 30 days
}

type Influx struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	queryAPI    api.QueryAPI
	bucket      string
	measurement string
	lookback    time.Duration
	now         func() time.Time
}

var _ Store = (*Influx)(nil)

func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx config incomplete")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "dustbins"
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI:    client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: sanitizeMeasurement(cfg.Measurement),
		lookback:    cfg.Lookback,
		now:         time.Now,
	}, nil
}

func (s *Influx) Snapshot(ctx context.Context) ([]Entry, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	return s.query(ctx, "")
}

func (s *Influx) Update(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	cur, err := s.query(ctx, key)
	if err != nil {
		return err
	}
	if len(cur) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.write(ctx, key, fields)
}

func (s *Influx) Put(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	return s.write(ctx, key, fields)
}

func (s *Influx) Close() error {
	s.client.Close()
	return nil
}

func (s *Influx) write(ctx context.Context, key string, fields map[string]any) error {
	p := s.point(key, fields)
	if p == nil {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", key, err)
	}
	return nil
}

// point builds the write for one partial update; nil when no known field is
// present. Field types are pinned so Influx never sees a type conflict.
func (s *Influx) point(key string, fields map[string]any) *write.Point {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case entities.FieldLatitude, entities.FieldLongitude:
			if f, ok := toF64(v); ok {
				out[k] = f
			}
		case entities.FieldFillLevel:
			if f, ok := toF64(v); ok {
				out[k] = int64(f)
			}
		case entities.FieldStatus:
			if str, ok := v.(string); ok {
				out[k] = str
			}
		case entities.FieldAlert:
			if b, ok := v.(bool); ok {
				out[k] = b
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return influxdb2.NewPoint(s.measurement, map[string]string{"bin_id": key}, out, s.now())
}

func (s *Influx) query(ctx context.Context, key string) ([]Entry, error) {
	res, err := s.queryAPI.Query(ctx, buildSnapshotFlux(s.bucket, s.measurement, s.lookback, key))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	var rows []fieldRow
	for res.Next() {
		rec := res.Record()
		bin, _ := rec.ValueByKey("bin_id").(string)
		rows = append(rows, fieldRow{bin: bin, field: rec.Field(), value: rec.Value()})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	return foldRows(rows), nil
}

type fieldRow struct {
	bin   string
	field string
	value any
}

// foldRows groups the per-field last values into one entry per bin.
func foldRows(rows []fieldRow) []Entry {
	byBin := make(map[string]map[string]any)
	for _, r := range rows {
		if strings.TrimSpace(r.bin) == "" || r.field == "" {
			continue
		}
		m, ok := byBin[r.bin]
		if !ok {
			m = make(map[string]any)
			byBin[r.bin] = m
		}
		m[r.field] = r.value
	}
	out := make([]Entry, 0, len(byBin))
	for k, m := range byBin {
		out = append(out, Entry{Key: k, Fields: m})
	}
	sortEntries(out)
	return out
}

func buildSnapshotFlux(bucket, measurement string, lookback time.Duration, key string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "  |> range(start: -%dm)\n", int64(lookback.Minutes()))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", measurement)
	if key != "" {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.bin_id == %q)\n", key)
	}
	b.WriteString("  |> group(columns: [\"bin_id\", \"_field\"])\n")
	b.WriteString("  |> last()\n")
	return b.String()
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
