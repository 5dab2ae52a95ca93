// Package redisstore allocates sequence numbers on Redis with optimistic
// compare-and-swap and keeps the issuance ledger alongside.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

// Options tunes key naming and the CAS retry budget. Zero values take the
// engine defaults.
type Options struct {
	Prefix         string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	defaults := config.DefaultEngine().Sequence
	if o.Prefix == "" {
		o.Prefix = "ifice"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaults.MaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaults.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = max(defaults.MaxBackoff, o.InitialBackoff)
	}
	return o
}

// Store implements store.Store on Redis.
//
// Keys:
//
//	<prefix>:seq:<III-GG-YYYY>   counter
//	<prefix>:id:<composite>      JSON record
//	<prefix>:pending             sorted set of composite IDs by issue time (ms)
type Store struct {
	client redis.UniversalClient
	opts   Options
	owned  bool

	// beforeCommit runs between the read and the MULTI; tests use it to
	// force conflicts.
	beforeCommit func(ctx context.Context, key string)
}

// New wraps an existing client. Close does not close it.
func New(client redis.UniversalClient, opts Options) *Store {
	return &Store{client: client, opts: opts.withDefaults()}
}

// Open connects using a redis:// URL and pings the server.
func Open(ctx context.Context, url string, opts Options) (*Store, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	s := New(client, opts)
	s.owned = true
	return s, nil
}

func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *Store) counterKey(scope store.Scope) string {
	return s.opts.Prefix + ":seq:" + scope.Key()
}

func (s *Store) recordKey(compositeID string) string {
	return s.opts.Prefix + ":id:" + compositeID
}

func (s *Store) pendingKey() string {
	return s.opts.Prefix + ":pending"
}

func (s *Store) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx)
}

// Allocate reads the counter under WATCH and writes value+1 in MULTI/EXEC.
// A concurrent writer aborts the EXEC; the attempt is retried with
// exponential backoff. Exhausting the budget yields
// internalerr.ErrAllocationConflict.
func (s *Store) Allocate(ctx context.Context, scope store.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	key := s.counterKey(scope)

	var value int64
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if s.beforeCommit != nil {
				s.beforeCommit(ctx, key)
			}
			next := cur + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			if err == nil {
				value = next
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(attempt, s.newBackOff(ctx))
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, redis.TxFailedErr):
		return 0, fmt.Errorf("%w: scope %s after %d retries", internalerr.ErrAllocationConflict, scope.Key(), s.opts.MaxRetries)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, err
	default:
		return 0, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
}

func (s *Store) Current(ctx context.Context, scope store.Scope) (int64, error) {
	v, err := s.client.Get(ctx, s.counterKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	return v, nil
}

// recordScript writes a record once and, when flagged, queues it for review.
// The queue insert runs first so a failure leaves nothing behind.
//
//	KEYS[1] record key, KEYS[2] pending set
//	ARGV[1] JSON record, ARGV[2] "1" if flagged, ARGV[3] score, ARGV[4] composite ID
var recordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if ARGV[2] == '1' then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// Record stores the record and its review-queue entry in one script, so a
// composite ID is written once and never without its queue entry.
func (s *Store) Record(ctx context.Context, r store.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	flagged := "0"
	if r.NeedsConfirmation {
		flagged = "1"
	}
	keys := []string{s.recordKey(r.CompositeID), s.pendingKey()}
	score := strconv.FormatInt(r.IssuedAt.UnixMilli(), 10)
	written, err := recordScript.Run(ctx, s.client, keys, data, flagged, score, r.CompositeID).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if written == 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrDuplicate, r.CompositeID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, compositeID string) (store.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(compositeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	return decode(compositeID, data)
}

func (s *Store) Pending(ctx context.Context, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = store.DefaultPendingLimit
	}
	ids, err := s.client.ZRange(ctx, s.pendingKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	out := make([]store.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decode(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Confirm rewrites the record under WATCH and drops it from the queue.
func (s *Store) Confirm(ctx context.Context, compositeID string) error {
	key := s.recordKey(compositeID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
		}
		if err != nil {
			return err
		}
		r, err := decode(compositeID, data)
		if err != nil {
			return err
		}
		r.NeedsConfirmation = false
		updated, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.ZRem(ctx, s.pendingKey(), compositeID)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil, errors.Is(err, internalerr.ErrNotFound):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %s changed during confirm", internalerr.ErrAllocationConflict, compositeID)
	default:
		return fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
}

func decode(compositeID string, data []byte) (store.Record, error) {
	var r store.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return store.Record{}, fmt.Errorf("corrupt record %s: %w", compositeID, err)
	}
	return r, nil
}
