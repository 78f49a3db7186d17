// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package s3client

import (
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"github.com/silvioiatech/Umbra-sub003/storage"
)

func TestObjectInfoNormalizesMetadataKeys(t *testing.T) {
	// The backend returns user metadata with canonicalized header casing;
	// the keys must come back exactly as they were stored.
	stat := minio.ObjectInfo{
		ETag:         "abc",
		Size:         5,
		LastModified: time.Now(),
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{
			"Sha256":            "deadbeef",
			"Uploaded-At":       "2025-03-07T00:00:00Z",
			"Original-Filename": "receipt.pdf",
		},
	}

	info := objectInfo("documents/deadbeef.pdf", stat)
	require.Equal(t, "deadbeef", info.Metadata["sha256"])
	require.Equal(t, "2025-03-07T00:00:00Z", info.Metadata["uploaded-at"])
	require.Equal(t, "receipt.pdf", info.Metadata["original-filename"])

	require.Nil(t, objectInfo("key", minio.ObjectInfo{}).Metadata)
}

func TestConvertErrorMapping(t *testing.T) {
	client := &Client{}

	for _, tt := range []struct {
		name     string
		resp     minio.ErrorResponse
		notFound bool
		conflict bool
	}{
		{name: "missing key", resp: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, notFound: true},
		{name: "bare 404", resp: minio.ErrorResponse{StatusCode: 404}, notFound: true},
		{name: "lost race", resp: minio.ErrorResponse{Code: "PreconditionFailed", StatusCode: 412}, conflict: true},
		{name: "bare 412", resp: minio.ErrorResponse{StatusCode: 412}, conflict: true},
		{name: "access denied", resp: minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}},
		// A missing bucket is misconfiguration; it must not read as an
		// absent object.
		{name: "missing bucket", resp: minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}},
	} {
		err := client.convert("get", "some/key", tt.resp)
		require.Error(t, err, tt.name)
		require.Equal(t, tt.notFound, storage.ErrNotFound.Has(err), tt.name)
		require.Equal(t, tt.conflict, storage.ErrConflict.Has(err), tt.name)
		if !tt.notFound && !tt.conflict {
			require.True(t, Error.Has(err), tt.name)
		}
	}

	require.NoError(t, client.convert("get", "some/key", nil))
}
