// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/silvioiatech/Umbra-sub003/internal/testcontext"
	"github.com/silvioiatech/Umbra-sub003/manifest"
	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/storage"
	"github.com/silvioiatech/Umbra-sub003/storage/teststore"
)

func newManager(t *testing.T, blobs storage.Blobs, codec manifest.TabularCodec) *manifest.Manager {
	log := zaptest.NewLogger(t)
	return manifest.NewManager(log, objects.New(log, blobs), codec)
}

func TestAppendReadRoundTrip(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	type expense struct {
		Merchant string  `json:"merchant"`
		Amount   float64 `json:"amount"`
	}

	for i := 0; i < 5; i++ {
		result, err := manager.Append(ctx, "finance", "expenses", expense{
			Merchant: fmt.Sprintf("shop-%d", i),
			Amount:   float64(i) * 10,
		}, "u1", manifest.DefaultMaxRetries)
		require.NoError(t, err)
		require.Equal(t, "manifests/finance/expenses-u1.jsonl", result.Key)
		require.Equal(t, 1, result.Attempt)
		require.Equal(t, i+1, result.TotalEntries)
		require.NotEmpty(t, result.EntryID)
	}

	records, err := manager.Read(ctx, "finance", "expenses", "u1", manifest.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 5)

	// Entries come back in append order with their payloads intact.
	for i, record := range records {
		var got expense
		require.NoError(t, json.Unmarshal(record.Data, &got))
		require.Equal(t, fmt.Sprintf("shop-%d", i), got.Merchant)
		require.False(t, record.Timestamp.IsZero())
	}
}

func TestAppendRetriesOnConflict(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	// Interleave a rival append between the read and the conditional write
	// of the first attempt.
	var once sync.Once
	blobs.BeforePut = func(key string) {
		once.Do(func() {
			// Drop the hook so the rival Put below does not re-enter
			// once.Do on the same goroutine, which would deadlock.
			blobs.BeforePut = nil
			rival, err := json.Marshal(manifest.Record{
				Timestamp: time.Now().UTC(),
				EntryID:   "rival",
				Data:      json.RawMessage(`{"merchant":"rival"}`),
			})
			require.NoError(t, err)
			_, err = blobs.Put(ctx, key, append(rival, '\n'), storage.PutOptions{})
			require.NoError(t, err)
		})
	}

	result, err := manager.Append(ctx, "finance", "expenses",
		map[string]string{"merchant": "mine"}, "u1", manifest.DefaultMaxRetries)
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempt)
	require.Equal(t, 2, result.TotalEntries)

	// Both the rival's entry and ours survived the race.
	records, err := manager.Read(ctx, "finance", "expenses", "u1", manifest.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "rival", records[0].EntryID)
	require.Equal(t, result.EntryID, records[1].EntryID)
}

func TestAppendGivesUpAfterRetries(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	// A rival wins every race.
	var counter int
	blobs.BeforePut = func(key string) {
		counter++
		if counter%2 == 1 {
			_, err := blobs.Put(ctx, key, []byte("{}\n"), storage.PutOptions{})
			require.NoError(t, err)
		}
	}

	_, err := manager.Append(ctx, "finance", "expenses",
		map[string]string{"merchant": "mine"}, "u1", 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "conflict")
}

func TestReadOptions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	for i := 0; i < 4; i++ {
		_, err := manager.Append(ctx, "finance", "log",
			map[string]int{"seq": i}, "", manifest.DefaultMaxRetries)
		require.NoError(t, err)
	}

	newest, err := manager.Read(ctx, "finance", "log", "", manifest.ReadOptions{Newest: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, newest, 2)

	var first, second map[string]int
	require.NoError(t, json.Unmarshal(newest[0].Data, &first))
	require.NoError(t, json.Unmarshal(newest[1].Data, &second))
	require.Equal(t, 3, first["seq"])
	require.Equal(t, 2, second["seq"])

	// A manifest without a user id lives at the unsuffixed key.
	require.Equal(t, "manifests/finance/log.jsonl", manifest.JSONLKey("finance", "log", ""))
}

func TestReadSkipsMalformedLines(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	_, err := manager.Append(ctx, "finance", "log",
		map[string]string{"ok": "yes"}, "u1", manifest.DefaultMaxRetries)
	require.NoError(t, err)

	// Corrupt the manifest with a truncated line in the middle.
	key := manifest.JSONLKey("finance", "log", "u1")
	data, _, err := blobs.Get(ctx, key)
	require.NoError(t, err)
	corrupted := append([]byte("{not json\n"), data...)
	_, err = blobs.Put(ctx, key, corrupted, storage.PutOptions{})
	require.NoError(t, err)

	records, err := manager.Read(ctx, "finance", "log", "u1", manifest.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestReadAbsentManifest(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	records, err := manager.Read(ctx, "finance", "nothing", "u1", manifest.ReadOptions{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestUnavailableManager(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	blobs.Unavailable = true
	manager := newManager(t, blobs, manifest.ParquetCodec())

	_, err := manager.Append(ctx, "finance", "log", map[string]string{}, "", manifest.DefaultMaxRetries)
	require.True(t, storage.ErrUnavailable.Has(err))

	_, err = manager.Read(ctx, "finance", "log", "", manifest.ReadOptions{})
	require.True(t, storage.ErrUnavailable.Has(err))
}
