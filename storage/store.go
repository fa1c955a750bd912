package storage

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/logger"
)

// Store saves and loads canvases by title.
type Store struct {
	kv        KV
	now       func() time.Time
	graphOpts []graph.Option
	logger    *zap.SugaredLogger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGraphOptions applies opts to every canvas restored by Load.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(s *Store) { s.graphOpts = append(s.graphOpts, opts...) }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.logger = logger.OrNop(l) }
}

// NewStore creates a store over kv.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		logger: logger.ComponentLogger("storage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KV returns the underlying key/value store.
func (s *Store) KV() KV {
	return s.kv
}

// Pending is an encoded snapshot ready to be written. Manual saves and
// autosave both go through Prepare so the two paths write identical documents.
type Pending struct {
	Key     string
	Data    []byte
	Version uint64
	Graph   *graph.Graph
}

// Prepare encodes c under its title key, recording the graph version captured.
func (s *Store) Prepare(c *canvas.Canvas) (Pending, error) {
	version := c.Graph.Version()
	data, err := Encode(c, s.now())
	if err != nil {
		return Pending{}, err
	}
	return Pending{Key: Key(c.Title), Data: data, Version: version, Graph: c.Graph}, nil
}

// Write stores p and acknowledges the captured version on success.
func (s *Store) Write(ctx context.Context, p Pending) error {
	if err := s.kv.Set(ctx, p.Key, string(p.Data)); err != nil {
		return errors.Wrapf(errors.Mark(err, errors.ErrStorageUnavailable), "save %s", p.Key)
	}
	if p.Graph != nil {
		p.Graph.MarkSaved(p.Version)
	}
	return nil
}

// Save writes c immediately, overwriting any snapshot under the same key.
func (s *Store) Save(ctx context.Context, c *canvas.Canvas) error {
	p, err := s.Prepare(c)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, p); err != nil {
		return err
	}
	s.logger.Debugw("Canvas saved",
		logger.FieldCanvasID, c.ID,
		logger.FieldStorageKey, p.Key,
		logger.FieldSize, len(p.Data),
	)
	return nil
}

// Load restores the canvas saved under title. Missing, malformed, and
// incompatible snapshots report false; the cause is logged, not returned.
func (s *Store) Load(ctx context.Context, title string) (*canvas.Canvas, bool) {
	key := Key(title)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warnw("Canvas load failed", logger.FieldStorageKey, key, logger.FieldError, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	snap, err := ParseSnapshot([]byte(raw))
	if err != nil {
		s.logger.Warnw("Discarding unreadable snapshot", logger.FieldStorageKey, key, logger.FieldError, err)
		return nil, false
	}

	c, dropped := snap.Restore(s.graphOpts...)
	if dropped > 0 {
		s.logger.Warnw("Dropped inconsistent records on load",
			logger.FieldStorageKey, key,
			logger.FieldCount, dropped,
		)
	}
	return c, true
}

// Exists reports whether a snapshot is stored under title's key.
func (s *Store) Exists(ctx context.Context, title string) bool {
	_, ok, err := s.kv.Get(ctx, Key(title))
	return err == nil && ok
}

// Remove deletes the snapshot for title.
func (s *Store) Remove(ctx context.Context, title string) error {
	return errors.Wrapf(s.kv.Remove(ctx, Key(title)), "remove canvas %q", title)
}

// Summary describes one stored snapshot.
type Summary struct {
	Key        string    `json:"key"`
	CanvasID   string    `json:"canvas_id"`
	Title      string    `json:"title"`
	OriginNode string    `json:"origin_node,omitempty"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Readable   bool      `json:"readable"`
}

// List summarizes every stored canvas in key order. Unreadable snapshots are
// listed with Readable false so they can be inspected and removed.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "list canvases")
	}

	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		sum := Summary{Key: key, Title: strings.TrimPrefix(key, KeyPrefix)}
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", key)
		}
		if !ok {
			continue
		}
		if snap, err := ParseSnapshot([]byte(raw)); err == nil {
			sum.CanvasID = snap.CanvasID
			sum.Title = snap.CanvasName
			sum.OriginNode = snap.OriginNode
			sum.Nodes = len(snap.Nodes)
			sum.Edges = len(snap.Edges)
			sum.Version = snap.Version
			sum.Timestamp = snap.Timestamp
			sum.Readable = true
		}
		out = append(out, sum)
	}
	return out, nil
}

// RemoveKey deletes a snapshot by raw key, for entries whose title is unknown.
func (s *Store) RemoveKey(ctx context.Context, key string) error {
	return errors.Wrapf(s.kv.Remove(ctx, key), "remove %s", key)
}
