// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package storage

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
)

var mon = monkit.Package()

// ReadVersioned downloads an object together with its version token.
// An absent key returns ErrNotFound; callers for whom absence is a valid
// empty state should treat (nil, "") as their starting point.
func ReadVersioned(ctx context.Context, blobs Blobs, key string) (data []byte, version Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if key == "" {
		return nil, "", ErrEmptyKey.New("read")
	}

	data, info, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, info.ETag, nil
}

// WriteIfVersion uploads an object only if its current version still equals
// expected; an empty expected version requires that the object does not
// exist yet. A concurrent writer winning the race surfaces as ErrConflict.
// This is the single compare-and-swap primitive shared by every conditional
// write path; retry policy is the caller's concern.
func WriteIfVersion(ctx context.Context, blobs Blobs, key string, data []byte, expected Version, opts PutOptions) (version Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if key == "" {
		return "", ErrEmptyKey.New("write")
	}

	if expected.Zero() {
		opts.IfNoneMatch = true
		opts.IfMatch = ""
	} else {
		opts.IfNoneMatch = false
		opts.IfMatch = expected
	}

	result, err := blobs.Put(ctx, key, data, opts)
	if err != nil {
		return "", err
	}
	return result.ETag, nil
}
