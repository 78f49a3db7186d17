// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silvioiatech/Umbra-sub003/internal/testcontext"
	"github.com/silvioiatech/Umbra-sub003/storage"
	"github.com/silvioiatech/Umbra-sub003/storage/teststore"
)

func TestWriteIfVersion(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()

	// Empty expected version means create-only.
	v1, err := storage.WriteIfVersion(ctx, blobs, "key", []byte("one"), "", storage.PutOptions{})
	require.NoError(t, err)
	require.False(t, v1.Zero())

	_, err = storage.WriteIfVersion(ctx, blobs, "key", []byte("rival"), "", storage.PutOptions{})
	require.True(t, storage.ErrConflict.Has(err))

	data, version, err := storage.ReadVersioned(ctx, blobs, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)
	require.Equal(t, v1, version)

	v2, err := storage.WriteIfVersion(ctx, blobs, "key", []byte("two"), version, storage.PutOptions{})
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	// The old token no longer authorizes writes.
	_, err = storage.WriteIfVersion(ctx, blobs, "key", []byte("three"), v1, storage.PutOptions{})
	require.True(t, storage.ErrConflict.Has(err))
}

func TestReadVersionedMissing(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()

	_, _, err := storage.ReadVersioned(ctx, blobs, "missing")
	require.True(t, storage.ErrNotFound.Has(err))
}
