// Package natskv stores session snapshots in a NATS JetStream key-value
// bucket, so several server replicas can share sessions.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "kenkyu_sessions"

// keyValue is the subset of jetstream.KeyValue the store uses.
type keyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Store is a SessionStore backed by a JetStream KV bucket.
type Store struct {
	kv keyValue
	nc *nats.Conn
}

// New wraps an existing bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Connect dials url and creates or updates bucket.
func Connect(ctx context.Context, url, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	nc, err := nats.Connect(url,
		nats.Name("kenkyu"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("natskv: connect %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskv: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Kenkyu research sessions",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskv: bucket %s: %w", bucket, err)
	}
	return &Store{kv: kv, nc: nc}, nil
}

// key maps a session ID onto the KV key alphabet; session IDs may contain
// colons, which KV keys may not.
func key(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Put writes the session snapshot.
func (s *Store) Put(ctx context.Context, sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("natskv: marshal session %s: %w", sess.ID, err)
	}
	if _, err := s.kv.Put(ctx, key(sess.ID), data); err != nil {
		return fmt.Errorf("natskv: put session %s: %w", sess.ID, err)
	}
	return nil
}

// Get loads the snapshot for id, or model.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Session, error) {
	entry, err := s.kv.Get(ctx, key(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("natskv: get session %s: %w", id, err)
	}
	var sess model.Session
	if err := json.Unmarshal(entry.Value(), &sess); err != nil {
		return model.Session{}, fmt.Errorf("natskv: decode session %s: %w", id, err)
	}
	return sess, nil
}

// Ping reports whether the NATS connection is up.
func (s *Store) Ping(context.Context) error {
	if s.nc != nil && !s.nc.IsConnected() {
		return fmt.Errorf("natskv: connection %s", s.nc.Status())
	}
	return nil
}

// Close drains the connection when the store owns it.
func (s *Store) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
