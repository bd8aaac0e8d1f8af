package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// FirebaseConfig points at a Realtime Database collection.
type FirebaseConfig struct {
	DatabaseURL     string // e.g. https://binova-default-rtdb.firebaseio.com
	CredentialsFile string // service account key; empty = application default credentials
	Path            string // collection path, default "dustbins"
}

// Firebase stores bins as children of one Realtime Database reference.
type Firebase struct {
	ref *db.Ref
}

var _ Store = (*Firebase)(nil)

func NewFirebase(ctx context.Context, cfg FirebaseConfig) (*Firebase, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("firebase database url is empty")
	}
	path := strings.Trim(strings.TrimSpace(cfg.Path), "/")
	if path == "" {
		path = "dustbins"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database: %w", err)
	}
	return &Firebase{ref: client.NewRef(path)}, nil
}

func (f *Firebase) Snapshot(ctx context.Context) ([]Entry, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var raw map[string]any
	if err := f.ref.Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("firebase get %s: %w", f.ref.Path, err)
	}
	return entriesFromTree(raw), nil
}

func (f *Firebase) Update(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	child := f.ref.Child(key)
	var cur any
	if err := child.Get(ctx, &cur); err != nil {
		return fmt.Errorf("firebase get %s: %w", child.Path, err)
	}
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := child.Update(ctx, fields); err != nil {
		return fmt.Errorf("firebase update %s: %w", child.Path, err)
	}
	return nil
}

func (f *Firebase) Put(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	child := f.ref.Child(key)
	if err := child.Update(ctx, fields); err != nil {
		return fmt.Errorf("firebase update %s: %w", child.Path, err)
	}
	return nil
}

// Close is a no-op, the admin SDK holds no per-client connection.
func (f *Firebase) Close() error { return nil }

// entriesFromTree turns the JSON object under the collection path into
// sorted entries. Children that are not objects keep a nil Fields map so
// the decoder can report them.
func entriesFromTree(raw map[string]any) []Entry {
	out := make([]Entry, 0, len(raw))
	for k, v := range raw {
		e := Entry{Key: k}
		if m, ok := v.(map[string]any); ok {
			e.Fields = m
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out
}
