// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package manifest maintains append-only JSONL logs and partitioned tabular
// snapshots in the bucket. JSONL appends are the one genuinely concurrent
// write path in the system and are serialized through the store's version
// tokens via a bounded compare-and-swap retry loop.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/storage"
)

var (
	mon = monkit.Package()
	// Error is the class of manifest errors.
	Error = errs.Class("manifest")
)

// DefaultMaxRetries bounds the append conflict-retry loop when the caller
// does not choose a bound.
const DefaultMaxRetries = 3

// Manager reads and writes the manifests of one bucket. The tabular codec
// is chosen once at construction; WriteTable reports the format it actually
// used so callers can assert on the CSV fallback.
type Manager struct {
	log   *zap.Logger
	store *objects.Store
	codec TabularCodec
}

// NewManager creates a Manager writing tabular partitions with codec.
func NewManager(log *zap.Logger, store *objects.Store, codec TabularCodec) *Manager {
	return &Manager{log: log, store: store, codec: codec}
}

// Available reports whether the backing store is configured.
func (manager *Manager) Available() bool { return manager.store.Available() }

// JSONLKey returns the deterministic key of a JSONL manifest. Every writer
// for the same (module, name, user) triple contends on this one object.
func JSONLKey(module, name, userID string) string {
	if userID == "" {
		return fmt.Sprintf("manifests/%s/%s.jsonl", module, name)
	}
	return fmt.Sprintf("manifests/%s/%s-%s.jsonl", module, name, userID)
}

// PartitionKey returns the key of one tabular partition.
func PartitionKey(module, name, userID, partition, ext string) string {
	return partitionPrefix(module, name, userID) + partition + "." + ext
}

func partitionPrefix(module, name, userID string) string {
	if userID == "" {
		return fmt.Sprintf("manifests/%s/%s-", module, name)
	}
	return fmt.Sprintf("manifests/%s/%s-%s-", module, name, userID)
}

// Record is one line of a JSONL manifest.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	EntryID   string          `json:"entry_id"`
	Data      json.RawMessage `json:"data"`
}

// AppendResult reports a successful append. Attempt is 1 when the write
// went through without a conflict; tests assert on higher values to prove
// the retry actually fired.
type AppendResult struct {
	Key          string
	EntryID      string
	ETag         storage.Version
	Attempt      int
	TotalEntries int
}

// Append serializes data as one JSON line and appends it to the manifest
// for (module, name, userID).
//
// The append is a read-modify-write guarded by the store's version token:
// the full manifest is re-uploaded conditionally on the version observed
// during the read. When a concurrent writer got there first the write fails
// with a conflict and the loop re-reads the now-current content and
// reapplies the line, up to maxRetries additional attempts. No append is
// ever silently lost; losers of a race pay with a re-read.
func (manager *Manager) Append(ctx context.Context, module, name string, data interface{}, userID string, maxRetries int) (_ AppendResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if !manager.Available() {
		return AppendResult{}, storage.ErrUnavailable.New("append %s/%s", module, name)
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return AppendResult{}, Error.New("append %s/%s: encode entry: %w", module, name, err)
	}
	record := Record{
		Timestamp: time.Now().UTC(),
		EntryID:   uuid.NewString(),
		Data:      payload,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return AppendResult{}, Error.New("append %s/%s: encode record: %w", module, name, err)
	}

	key := JSONLKey(module, name, userID)

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		current, version, err := manager.store.ReadVersioned(ctx, key)
		if err != nil {
			if !storage.ErrNotFound.Has(err) {
				return AppendResult{}, Error.Wrap(err)
			}
			// First append: the manifest starts empty with no version token.
			current, version = nil, ""
		}

		content := make([]byte, 0, len(current)+len(line)+1)
		content = append(content, current...)
		content = append(content, line...)
		content = append(content, '\n')

		etag, err := manager.store.WriteIfVersion(ctx, key, content, version, objects.PutOptions{
			ContentType: objects.KindJSONL.ContentType(),
			Metadata: map[string]string{
				"manifest-type": "jsonl",
				"module":        module,
				"name":          name,
				"user-id":       userID,
				"last-entry-id": record.EntryID,
			},
		})
		if err != nil {
			if storage.ErrConflict.Has(err) {
				manager.log.Warn("manifest append conflict, retrying",
					zap.String("key", key),
					zap.Int("attempt", attempt))
				continue
			}
			return AppendResult{}, Error.Wrap(err)
		}

		manager.log.Info("manifest entry appended",
			zap.String("key", key),
			zap.String("entry_id", record.EntryID),
			zap.Int("attempt", attempt))

		return AppendResult{
			Key:          key,
			EntryID:      record.EntryID,
			ETag:         etag,
			Attempt:      attempt,
			TotalEntries: bytes.Count(content, []byte{'\n'}),
		}, nil
	}

	return AppendResult{}, Error.New("append %q: version conflict persisted after %d attempts", key, maxRetries+1)
}

// ReadOptions filter a manifest read.
type ReadOptions struct {
	// Limit truncates the result; zero means no limit.
	Limit int
	// Since drops records at or before the given time.
	Since time.Time
	// Newest reverses the result to newest-first.
	Newest bool
}

// Read downloads and decodes a JSONL manifest. Records come back in append
// order, oldest first, unless opts.Newest is set. An absent manifest is a
// valid empty state. Malformed lines are skipped with a warning: one bad
// write must not make the accumulated history unreadable.
func (manager *Manager) Read(ctx context.Context, module, name, userID string, opts ReadOptions) (_ []Record, err error) {
	defer mon.Task()(&ctx)(&err)

	if !manager.Available() {
		return nil, storage.ErrUnavailable.New("read %s/%s", module, name)
	}

	key := JSONLKey(module, name, userID)
	object, err := manager.store.Get(ctx, key)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}

	var records []Record
	for _, line := range bytes.Split(object.Data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			manager.log.Warn("skipping malformed manifest line",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if !opts.Since.IsZero() && !record.Timestamp.After(opts.Since) {
			continue
		}
		records = append(records, record)
	}

	if opts.Newest {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}
