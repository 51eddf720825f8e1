// Package cache implements the best-effort reuse cache: the last successful
// optimization result per source image identity, persisted in SQLite.
// Storage failures never block the pipeline: reads degrade to misses and
// writes are absorbed.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/logging"
	"github.com/commercekit/imagepipe/internal/optimize"
)

const schema = `
CREATE TABLE IF NOT EXISTS optimized_images (
	key        TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	buffer     BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteCache implements optimize.ResultCache on a local SQLite database.
type SQLiteCache struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (or creates) the cache database at path. WAL mode keeps
// concurrent readers cheap.
func Open(path string, log *logging.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	return &SQLiteCache{db: db, log: log}, nil
}

// Get returns the stored result for key, or a miss. Any storage error is
// logged and treated as a miss; Get never raises.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*optimize.OptimizedImageResult, bool) {
	var resultJSON string
	var buffer []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT result, buffer FROM optimized_images WHERE key = ?", key,
	).Scan(&resultJSON, &buffer)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn(ctx, "cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return nil, false
	}

	var res optimize.OptimizedImageResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		c.log.Warn(ctx, "cache entry corrupt, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	res.Buffer = buffer
	return &res, true
}

// Put persists a successful result. Bufferless results are skipped and
// write failures are logged and otherwise ignored.
func (c *SQLiteCache) Put(ctx context.Context, key string, result *optimize.OptimizedImageResult) {
	if result == nil || len(result.Buffer) == 0 {
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		c.log.Warn(ctx, "cache entry marshal failed, skipping write",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO optimized_images (key, result, buffer, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   result = excluded.result,
		   buffer = excluded.buffer,
		   updated_at = excluded.updated_at`,
		key, string(resultJSON), result.Buffer, time.Now().UTC(),
	)
	if err != nil {
		c.log.Warn(ctx, "cache write failed, continuing without",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Close releases the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
