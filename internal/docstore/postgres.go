package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
)

// NotifyChannel is the Postgres LISTEN channel the documents trigger publishes "collection/key" payloads on.
const NotifyChannel = "docstore_changes"

const listenRetryDelay = time.Second

// PostgresStore keeps documents as JSONB rows in the documents table (see internal/db/migrations) and turns the
// table trigger's NOTIFY payloads into subscription snapshots.
type PostgresStore struct {
	db       *sql.DB
	watchers *watchers
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db and starts the change listener. db must use the pgx driver
// (see internal/db.Open). Call Close to stop the listener; Close does not close db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{db: db, watchers: newWatchers(), cancel: cancel}
	s.wg.Add(1)
	go s.listen(ctx)
	return s
}

// Get returns the document, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND key = $2`, collection, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Document{Collection: collection, Key: key, Data: data}, nil
}

// Put upserts the document; with merge the stored object is combined with fields using jsonb ||.
func (s *PostgresStore) Put(ctx context.Context, collection, key string, fields Fields, merge bool) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}
	update := `EXCLUDED.data`
	if merge {
		update = `documents.data || EXCLUDED.data`
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO UPDATE
		SET data = `+update+`, version = documents.version + 1, updated_at = now()`,
		collection, key, data)
	return err
}

// Create inserts the document; returns ErrAlreadyExists if the key is taken.
func (s *PostgresStore) Create(ctx context.Context, collection, key string, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO NOTHING`,
		collection, key, data)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// PutIf merges fields in a single UPDATE guarded by data @> cond.
func (s *PostgresStore) PutIf(ctx context.Context, collection, key string, cond, fields Fields) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}
	condData, err := marshalFields(cond)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, version = version + 1, updated_at = now()
		WHERE collection = $1 AND key = $2 AND data @> $4::jsonb`,
		collection, key, data, condData)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, collection, key); err != nil {
		return err
	}
	return ErrConditionFailed
}

// Delete removes the document.
func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	return err
}

// Subscribe delivers snapshots driven by the documents NOTIFY trigger.
func (s *PostgresStore) Subscribe(ctx context.Context, collection, key string, onChange ChangeFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	return s.watchers.add(ctx, s.Get, collection, key, onChange, onError)
}

// Query returns matching documents ordered by key. Each filter becomes a data @> containment predicate.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		out = append(out, &Document{Collection: collection, Key: key, Data: data})
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the listener and ends all subscriptions.
func (s *PostgresStore) Close() error {
	s.cancel()
	s.wg.Wait()
	s.watchers.closeAll()
	return nil
}

func buildQuery(collection string, filters []Filter) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`SELECT key, data FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		pattern, err := containmentPattern(f)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(pattern))
		fmt.Fprintf(&b, ` AND data @> $%d::jsonb`, len(args))
	}
	b.WriteString(` ORDER BY key`)
	return b.String(), args, nil
}

func marshalFields(fields Fields) (string, error) {
	enc, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// listen holds one connection in LISTEN mode and reconnects until ctx is cancelled. After a reconnect every
// subscription is refreshed because notifications sent while disconnected are lost.
func (s *PostgresStore) listen(ctx context.Context) {
	defer s.wg.Done()
	first := true
	for {
		if !first {
			s.watchers.notifyAll()
		}
		first = false
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("docstore: postgres listener stopped: %v; retrying in %s", err, listenRetryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("docstore: unexpected driver connection %T; open the database with the pgx driver", driverConn)
		}
		pc := sc.Conn()
		if _, err := pc.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
			return err
		}
		for {
			n, err := pc.WaitForNotification(ctx)
			if err != nil {
				return err
			}
			collection, key, ok := strings.Cut(n.Payload, "/")
			if !ok {
				continue
			}
			s.watchers.notify(collection, key)
		}
	})
}
