// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package objects

import (
	"context"
)

// statsSampleSize bounds how many objects per prefix the stats pass reads.
const statsSampleSize = 100

// PrefixStats holds sampled usage numbers for one key prefix.
type PrefixStats struct {
	Objects   int
	Bytes     int64
	Truncated bool
}

// StorageStats is a sampled usage overview of the bucket. Counts are based
// on at most statsSampleSize objects per prefix, which is enough for
// diagnostics and avoids walking a large bucket.
type StorageStats struct {
	Available  bool
	ByPrefix   map[string]PrefixStats
	TotalCount int
	TotalBytes int64
}

// Stats samples the well-known prefixes and reports object counts and sizes.
func (store *Store) Stats(ctx context.Context) (_ StorageStats, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return StorageStats{Available: false}, nil
	}

	stats := StorageStats{
		Available: true,
		ByPrefix:  map[string]PrefixStats{},
	}
	for _, prefix := range []string{"manifests/", "documents/", "json_blobs/", "search/"} {
		listing, err := store.List(ctx, prefix, statsSampleSize)
		if err != nil {
			return StorageStats{}, err
		}

		var prefixStats PrefixStats
		for _, object := range listing.Objects {
			prefixStats.Objects++
			prefixStats.Bytes += object.Size
		}
		prefixStats.Truncated = listing.Truncated

		stats.ByPrefix[prefix] = prefixStats
		stats.TotalCount += prefixStats.Objects
		stats.TotalBytes += prefixStats.Bytes
	}
	return stats, nil
}
