// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/silvioiatech/Umbra-sub003/internal/testcontext"
	"github.com/silvioiatech/Umbra-sub003/manifest"
	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/storage/teststore"
)

func newCatalog(t *testing.T, blobs *teststore.Client, codec manifest.TabularCodec) *manifest.Catalog {
	log := zaptest.NewLogger(t)
	store := objects.New(log, blobs)
	return manifest.NewCatalog(log, store, manifest.NewManager(log, store, codec))
}

func TestCatalogStoreAndList(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	catalog := newCatalog(t, blobs, manifest.ParquetCodec())

	records := []map[string]interface{}{
		{"merchant": "Downtown Coffee", "amount": 4.5},
		{"merchant": "Grocery Mart", "amount": 87.2},
	}

	jsonlEntry, err := catalog.StoreJSONL(ctx, "finance", "u1", records,
		map[string]string{"source": "import"})
	require.NoError(t, err)
	require.Equal(t, objects.KindJSONL, jsonlEntry.Kind)
	require.True(t, strings.HasPrefix(jsonlEntry.Key, "finance/u1/"))
	require.True(t, strings.HasSuffix(jsonlEntry.Key, ".jsonl"))
	require.NotZero(t, jsonlEntry.Size)

	// Upload ids carry a full UUID; truncating them would invite key
	// collisions within one (module, user, day).
	_, err = uuid.Parse(jsonlEntry.ID)
	require.NoError(t, err)
	require.Contains(t, jsonlEntry.Key, jsonlEntry.ID)

	jsonEntry, err := catalog.StoreJSON(ctx, "finance", "u1",
		map[string]string{"theme": "dark"}, nil)
	require.NoError(t, err)
	require.Equal(t, objects.KindJSON, jsonEntry.Kind)

	entries, err := catalog.Entries(ctx, "finance", "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, jsonlEntry.Key, entries[0].Key)
	require.Equal(t, jsonEntry.Key, entries[1].Key)

	// Another user's catalog stays empty.
	entries, err = catalog.Entries(ctx, "finance", "u2")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCatalogStoreTable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	catalog := newCatalog(t, blobs, manifest.ParquetCodec())

	entry, err := catalog.StoreTable(ctx, "finance", "u1",
		[]map[string]interface{}{{"merchant": "Downtown Coffee"}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, objects.KindParquet, entry.Kind)
	require.Equal(t, "parquet", entry.Metadata["format"])
	require.True(t, strings.HasSuffix(entry.Key, ".parquet"))

	downloaded, err := catalog.Download(ctx, entry.Key)
	require.NoError(t, err)
	rows, ok := downloaded.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, "Downtown Coffee", rows[0]["merchant"])
}

func TestCatalogStoreTableCSVFallback(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	catalog := newCatalog(t, blobs, manifest.CSVCodec())

	entry, err := catalog.StoreTable(ctx, "finance", "u1",
		[]map[string]interface{}{{"merchant": "Downtown Coffee"}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, objects.KindBinary, entry.Kind)
	require.Equal(t, "csv", entry.Metadata["format"])
	require.True(t, strings.HasSuffix(entry.Key, ".csv"))
}

func TestCatalogSearch(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	catalog := newCatalog(t, blobs, manifest.ParquetCodec())

	_, err := catalog.StoreJSON(ctx, "finance", "u1",
		map[string]string{"x": "1"}, map[string]string{"label": "Quarterly Report"})
	require.NoError(t, err)
	_, err = catalog.StoreJSON(ctx, "finance", "u1",
		map[string]string{"x": "2"}, map[string]string{"label": "Receipts"})
	require.NoError(t, err)

	matched, err := catalog.Search(ctx, "finance", "u1", "quarterly")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "Quarterly Report", matched[0].Metadata["label"])

	// Kind matches too.
	matched, err = catalog.Search(ctx, "finance", "u1", "json")
	require.NoError(t, err)
	require.Len(t, matched, 2)

	matched, err = catalog.Search(ctx, "finance", "u1", "no such thing")
	require.NoError(t, err)
	require.Empty(t, matched)
}

func TestCatalogDownloadJSONL(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	catalog := newCatalog(t, blobs, manifest.ParquetCodec())

	entry, err := catalog.StoreJSONL(ctx, "finance", "u1", []map[string]interface{}{
		{"merchant": "Downtown Coffee"},
		{"merchant": "Grocery Mart"},
	}, nil)
	require.NoError(t, err)

	downloaded, err := catalog.Download(ctx, entry.Key)
	require.NoError(t, err)
	rows, ok := downloaded.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, rows, 2)
	require.Equal(t, "Grocery Mart", rows[1]["merchant"])
}
