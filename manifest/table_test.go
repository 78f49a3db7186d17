// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silvioiatech/Umbra-sub003/internal/testcontext"
	"github.com/silvioiatech/Umbra-sub003/manifest"
	"github.com/silvioiatech/Umbra-sub003/storage/teststore"
)

func TestWriteReadTableParquet(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	records := []map[string]interface{}{
		{"merchant": "Downtown Coffee", "amount": 4.50, "count": int64(1)},
		{"merchant": "Grocery Mart", "amount": 87.20, "count": int64(12)},
	}
	schema := manifest.Schema{
		"merchant": manifest.FieldString,
		"amount":   manifest.FieldFloat64,
		"count":    manifest.FieldInt64,
	}

	result, err := manager.WriteTable(ctx, "finance", "expenses", records, "2025-03", "u1", schema)
	require.NoError(t, err)
	require.Equal(t, "parquet", result.Format)
	require.Equal(t, "manifests/finance/expenses-u1-2025-03.parquet", result.Key)
	require.Equal(t, 2, result.Records)

	loaded, err := manager.ReadTable(ctx, "finance", "expenses", "2025-03", "u1", nil)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "Downtown Coffee", loaded[0]["merchant"])
	require.Equal(t, 4.50, loaded[0]["amount"])
	require.Equal(t, int64(12), loaded[1]["count"])

	// Column projection drops everything else.
	projected, err := manager.ReadTable(ctx, "finance", "expenses", "2025-03", "u1", []string{"merchant"})
	require.NoError(t, err)
	require.Len(t, projected, 2)
	require.Equal(t, map[string]interface{}{"merchant": "Grocery Mart"}, projected[1])
}

func TestWriteTableCSVFallback(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.CSVCodec())

	records := []map[string]interface{}{
		{"merchant": "Downtown Coffee", "amount": 4.50},
	}

	result, err := manager.WriteTable(ctx, "finance", "expenses", records, "2025-03", "u1", nil)
	require.NoError(t, err)
	require.Equal(t, "csv", result.Format)
	require.Equal(t, "manifests/finance/expenses-u1-2025-03.csv", result.Key)

	// CSV is typeless on read: every value comes back as a string.
	loaded, err := manager.ReadTable(ctx, "finance", "expenses", "2025-03", "u1", nil)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "Downtown Coffee", loaded[0]["merchant"])
	require.Equal(t, "4.5", loaded[0]["amount"])
}

func TestReadTableCrossFormat(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()

	// Written with the parquet codec, read by a manager configured for CSV.
	writer := newManager(t, blobs, manifest.ParquetCodec())
	_, err := writer.WriteTable(ctx, "finance", "expenses",
		[]map[string]interface{}{{"merchant": "Downtown Coffee"}}, "2025-03", "u1", nil)
	require.NoError(t, err)

	reader := newManager(t, blobs, manifest.CSVCodec())
	loaded, err := reader.ReadTable(ctx, "finance", "expenses", "2025-03", "u1", nil)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "Downtown Coffee", loaded[0]["merchant"])
}

func TestWriteTableOverwritesPartition(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	_, err := manager.WriteTable(ctx, "finance", "expenses",
		[]map[string]interface{}{{"merchant": "old"}, {"merchant": "older"}}, "2025-03", "u1", nil)
	require.NoError(t, err)

	_, err = manager.WriteTable(ctx, "finance", "expenses",
		[]map[string]interface{}{{"merchant": "new"}}, "2025-03", "u1", nil)
	require.NoError(t, err)

	// The partition is a snapshot: only the second write remains.
	loaded, err := manager.ReadTable(ctx, "finance", "expenses", "2025-03", "u1", nil)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "new", loaded[0]["merchant"])
}

func TestReadTableAbsentPartition(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	loaded, err := manager.ReadTable(ctx, "finance", "expenses", "1999-01", "u1", nil)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestPartitions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	manager := newManager(t, blobs, manifest.ParquetCodec())

	for _, partition := range []string{"2025-02", "2025-01", "2025-03"} {
		_, err := manager.WriteTable(ctx, "finance", "expenses",
			[]map[string]interface{}{{"p": partition}}, partition, "u1", nil)
		require.NoError(t, err)
	}

	// The JSONL manifest under the same prefix must not show up as a
	// partition.
	_, err := manager.Append(ctx, "finance", "expenses",
		map[string]string{"x": "y"}, "u1", manifest.DefaultMaxRetries)
	require.NoError(t, err)

	partitions, err := manager.Partitions(ctx, "finance", "expenses", "u1")
	require.NoError(t, err)
	require.Len(t, partitions, 3)
	require.Equal(t, "2025-01", partitions[0].Partition)
	require.Equal(t, "2025-02", partitions[1].Partition)
	require.Equal(t, "2025-03", partitions[2].Partition)
	require.Equal(t, "parquet", partitions[0].Format)
	require.False(t, partitions[0].LastModified.IsZero())
}

func TestInferSchema(t *testing.T) {
	schema := manifest.InferSchema([]map[string]interface{}{
		{"name": "a", "amount": 1.5, "count": 3, "flag": true, "missing": nil},
		{"when": time.Now()},
	})
	require.Equal(t, manifest.Schema{
		"name":    manifest.FieldString,
		"amount":  manifest.FieldFloat64,
		"count":   manifest.FieldInt64,
		"flag":    manifest.FieldBool,
		"when":    manifest.FieldTimestamp,
		"missing": manifest.FieldString,
	}, schema)
}

func TestEncodeRejectsMismatchedValue(t *testing.T) {
	schema := manifest.Schema{"amount": manifest.FieldInt64}
	records := []map[string]interface{}{{"amount": "not a number"}}

	_, err := manifest.ParquetCodec().Encode(records, schema)
	require.Error(t, err)

	_, err = manifest.CSVCodec().Encode(records, schema)
	require.Error(t, err)
}
