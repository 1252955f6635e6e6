package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	// versionField is a hidden hash field bumped on every write so an empty document still exists.
	versionField = "_v"
	// maxTxAttempts bounds optimistic WATCH/MULTI retries under contention.
	maxTxAttempts = 16
)

// ErrContention is returned when an optimistic Redis transaction keeps losing to concurrent writers.
var ErrContention = errors.New("docstore: too much contention on document")

// RedisStore keeps each document as a hash (field → JSON value) under "<prefix>doc:<collection>:<key>", indexes keys
// per collection in a set, and publishes "collection/key" on a channel after every write.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	channel  string
	watchers *watchers
	pubsub   *redis.PubSub
	wg       sync.WaitGroup
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store over client using prefix for every key (e.g. "orderdesk:"). It subscribes to the
// change channel before returning. Close does not close client.
func NewRedisStore(ctx context.Context, client *redis.Client, prefix string) (*RedisStore, error) {
	s := &RedisStore{
		client:   client,
		prefix:   prefix,
		channel:  prefix + "changes",
		watchers: newWatchers(),
	}
	s.pubsub = client.Subscribe(ctx, s.channel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("docstore: redis subscribe: %w", err)
	}
	s.wg.Add(1)
	go s.consume()
	return s, nil
}

func (s *RedisStore) docKey(collection, key string) string {
	return s.prefix + "doc:" + collection + ":" + key
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + "idx:" + collection
}

// Get returns the document, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	h, err := s.client.HGetAll(ctx, s.docKey(collection, key)).Result()
	if err != nil {
		return nil, err
	}
	return hashToDocument(collection, key, h)
}

// Put writes fields in a MULTI/EXEC block.
func (s *RedisStore) Put(ctx context.Context, collection, key string, fields Fields, merge bool) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	values, err := hashValues(fields)
	if err != nil {
		return err
	}
	dk := s.docKey(collection, key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if !merge {
			pipe.Del(ctx, dk)
		}
		if len(values) > 0 {
			pipe.HSet(ctx, dk, values)
		}
		pipe.HIncrBy(ctx, dk, versionField, 1)
		pipe.SAdd(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection, key)
	return nil
}

// Create writes a new document under WATCH; returns ErrAlreadyExists if the key is taken.
func (s *RedisStore) Create(ctx context.Context, collection, key string, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	values, err := hashValues(fields)
	if err != nil {
		return err
	}
	dk := s.docKey(collection, key)
	err = s.withWatch(ctx, dk, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, dk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(values) > 0 {
				pipe.HSet(ctx, dk, values)
			}
			pipe.HIncrBy(ctx, dk, versionField, 1)
			pipe.SAdd(ctx, s.indexKey(collection), key)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection, key)
	return nil
}

// PutIf reads the document under WATCH, checks cond, and writes in MULTI/EXEC. A concurrent write to the same
// document aborts the transaction and the check is re-evaluated against the new state.
func (s *RedisStore) PutIf(ctx context.Context, collection, key string, cond, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	encCond, err := encodeFields(cond)
	if err != nil {
		return err
	}
	values, err := hashValues(fields)
	if err != nil {
		return err
	}
	dk := s.docKey(collection, key)
	err = s.withWatch(ctx, dk, func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, dk).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return ErrNotFound
		}
		if !conditionHolds(hashFields(h), encCond) {
			return ErrConditionFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(values) > 0 {
				pipe.HSet(ctx, dk, values)
			}
			pipe.HIncrBy(ctx, dk, versionField, 1)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection, key)
	return nil
}

// Delete removes the document and its index entry.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, key))
		pipe.SRem(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection, key)
	return nil
}

// Subscribe delivers snapshots driven by the change channel.
func (s *RedisStore) Subscribe(ctx context.Context, collection, key string, onChange ChangeFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	return s.watchers.add(ctx, s.Get, collection, key, onChange, onError)
}

// Query scans the collection index and filters documents client-side.
func (s *RedisStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, s.docKey(collection, k))
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}
	var out []*Document
	for i, k := range keys {
		h, err := cmds[i].Result()
		if err != nil {
			return nil, err
		}
		if len(h) == 0 {
			continue
		}
		ok, err := matchFilters(hashFields(h), filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc, err := hashToDocument(collection, k, h)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close stops the change consumer and ends all subscriptions.
func (s *RedisStore) Close() error {
	err := s.pubsub.Close()
	s.wg.Wait()
	s.watchers.closeAll()
	return err
}

func (s *RedisStore) withWatch(ctx context.Context, dk string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxAttempts; i++ {
		err := s.client.Watch(ctx, fn, dk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (s *RedisStore) publish(ctx context.Context, collection, key string) {
	if err := s.client.Publish(ctx, s.channel, collection+"/"+key).Err(); err != nil {
		log.Printf("docstore: redis publish %s/%s: %v", collection, key, err)
	}
}

func (s *RedisStore) consume() {
	defer s.wg.Done()
	for msg := range s.pubsub.Channel() {
		collection, key, ok := strings.Cut(msg.Payload, "/")
		if !ok {
			continue
		}
		s.watchers.notify(collection, key)
	}
}

func hashValues(fields Fields) (map[string]any, error) {
	enc, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(enc))
	for k, v := range enc {
		if k == versionField {
			return nil, fmt.Errorf("docstore: field name %q is reserved", versionField)
		}
		out[k] = string(v)
	}
	return out, nil
}

func hashFields(h map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(h))
	for k, v := range h {
		if k == versionField {
			continue
		}
		out[k] = json.RawMessage(v)
	}
	return out
}

func hashToDocument(collection, key string, h map[string]string) (*Document, error) {
	if len(h) == 0 {
		return nil, ErrNotFound
	}
	data, err := json.Marshal(hashFields(h))
	if err != nil {
		return nil, err
	}
	return &Document{Collection: collection, Key: key, Data: data}, nil
}
