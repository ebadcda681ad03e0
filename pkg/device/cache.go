package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/kv"
)

// Interaction is one question/answer turn kept for offline history and
// deferred backend sync.
type Interaction struct {
	ID        string         `json:"id"`
	ToyID     string         `json:"toyId"`
	Question  string         `json:"question"`
	Response  string         `json:"response"`
	WasOnline bool           `json:"wasOnline"`
	Synced    bool           `json:"synced"`
	Timestamp jsontime.Milli `json:"timestamp"`
}

// Cache is the device's write-behind conversation store. Writes land
// locally first; a background flusher pushes unsynced turns upstream when
// connectivity allows.
type Cache interface {
	// Save records one turn. Online turns are queued for sync.
	Save(ctx context.Context, in Interaction) error

	// Recent returns up to n most recent turns, newest first.
	Recent(ctx context.Context, n int) ([]Interaction, error)

	// Unsynced returns turns still waiting for upstream sync, capped at
	// limit.
	Unsynced(ctx context.Context, limit int) ([]Interaction, error)

	// MarkSynced flags turns as pushed upstream.
	MarkSynced(ctx context.Context, ids []string) error

	Close() error
}

// kvCache implements Cache on a kv.Store. Keys are ordered by a zero-padded
// millisecond timestamp so prefix iteration yields chronological order.
type kvCache struct {
	store kv.Store
}

// NewCache wraps a kv.Store as a conversation Cache. The store may be
// kv.NewMemory for tests or a Badger store for on-device persistence.
func NewCache(store kv.Store) Cache {
	return &kvCache{store: store}
}

func convKey(ts time.Time, id string) kv.Key {
	return kv.Key{"conv", fmt.Sprintf("%013d", ts.UnixMilli()), id}
}

func unsyncedKey(id string) kv.Key {
	return kv.Key{"unsynced", id}
}

func (c *kvCache) Save(ctx context.Context, in Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if time.Time(in.Timestamp).IsZero() {
		in.Timestamp = jsontime.NowEpochMilli()
	}
	in.Synced = !in.WasOnline

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	entries := []kv.Entry{{Key: convKey(time.Time(in.Timestamp), in.ID), Value: data}}
	if in.WasOnline {
		entries = append(entries, kv.Entry{Key: unsyncedKey(in.ID), Value: data})
	}
	if err := c.store.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

func (c *kvCache) Recent(ctx context.Context, n int) ([]Interaction, error) {
	var all []Interaction
	for entry, err := range c.store.List(ctx, kv.Key{"conv"}) {
		if err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		var in Interaction
		if err := json.Unmarshal(entry.Value, &in); err != nil {
			slog.Warn("skipping undecodable cached interaction", "key", entry.Key, "err", err)
			continue
		}
		all = append(all, in)
	}

	// List is chronological; return the tail newest first.
	if len(all) > n {
		all = all[len(all)-n:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (c *kvCache) Unsynced(ctx context.Context, limit int) ([]Interaction, error) {
	var out []Interaction
	for entry, err := range c.store.List(ctx, kv.Key{"unsynced"}) {
		if err != nil {
			return nil, fmt.Errorf("list unsynced: %w", err)
		}
		var in Interaction
		if err := json.Unmarshal(entry.Value, &in); err != nil {
			continue
		}
		out = append(out, in)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *kvCache) MarkSynced(ctx context.Context, ids []string) error {
	keys := make([]kv.Key, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, unsyncedKey(id))
	}
	if err := c.store.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (c *kvCache) Close() error {
	return c.store.Close()
}

// SyncFunc pushes a batch of interactions upstream. It returns the ids that
// were accepted.
type SyncFunc func(ctx context.Context, batch []Interaction) ([]string, error)

// Flusher periodically drains unsynced turns through a SyncFunc.
type Flusher struct {
	cache    Cache
	push     SyncFunc
	interval time.Duration
	batch    int
}

// NewFlusher creates a write-behind flusher. Interval defaults to 5 minutes
// and batch size to 50.
func NewFlusher(cache Cache, push SyncFunc, interval time.Duration, batch int) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Flusher{cache: cache, push: push, interval: interval, batch: batch}
}

// Run flushes on a ticker until ctx is cancelled.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				slog.Warn("conversation sync failed", "err", err)
			}
		}
	}
}

// Flush pushes one batch of unsynced turns.
func (f *Flusher) Flush(ctx context.Context) error {
	batch, err := f.cache.Unsynced(ctx, f.batch)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	accepted, err := f.push(ctx, batch)
	if err != nil {
		return fmt.Errorf("push %d interactions: %w", len(batch), err)
	}
	if len(accepted) == 0 {
		return nil
	}
	if err := f.cache.MarkSynced(ctx, accepted); err != nil {
		return err
	}
	slog.Debug("synced cached interactions", "count", len(accepted))
	return nil
}
