// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package storage defines the contract for the S3-compatible blob store
// backing every other component. The store is the only shared mutable
// resource in the system; its ETags are the version tokens used for
// optimistic concurrency.
package storage

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

var (
	// ErrNotFound is returned when a key does not exist in the bucket.
	ErrNotFound = errs.Class("object not found")
	// ErrConflict is returned when a conditional write loses a race.
	ErrConflict = errs.Class("version conflict")
	// ErrUnavailable is returned when the store is not configured; it is
	// raised before any network I/O is attempted.
	ErrUnavailable = errs.Class("store unavailable")

	// ErrEmptyKey is returned when an operation is attempted with an empty key.
	ErrEmptyKey = errs.Class("empty key")
)

// Version is an opaque revision token for an object, typically the ETag
// reported by the store. It identifies a revision, not the content: not all
// S3-compatible backends return a content hash.
type Version string

// Zero returns whether the version is unset.
func (v Version) Zero() bool { return v == "" }

// Method selects the HTTP verb a presigned URL grants.
type Method int

const (
	// MethodGet presigns a download.
	MethodGet Method = iota
	// MethodPut presigns an upload.
	MethodPut
)

// String implements the Stringer interface.
func (m Method) String() string {
	if m == MethodPut {
		return "PUT"
	}
	return "GET"
}

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key          string
	ETag         Version
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// PutOptions control a single upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string

	// IfMatch makes the write conditional on the object's current version.
	IfMatch Version
	// IfNoneMatch makes the write conditional on the object not existing.
	IfNoneMatch bool
}

// PutResult reports a completed upload.
type PutResult struct {
	ETag Version
	Size int64
}

// Listing is a single page of objects under a prefix. Pagination beyond one
// page is out of scope; Truncated tells the caller the page was clipped.
type Listing struct {
	Objects   []ObjectInfo
	Truncated bool
}

// Blobs is the thin S3-compatible client contract. Implementations must map
// backend faults onto ErrNotFound, ErrConflict and ErrUnavailable so callers
// can tell "no data yet" from "store unreachable" from "my write lost a
// race". All calls honor the caller's context deadline.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) (PutResult, error)
	Get(ctx context.Context, key string) ([]byte, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string, maxKeys int) (Listing, error)
	Delete(ctx context.Context, key string) error
	PresignURL(ctx context.Context, key string, method Method, expires time.Duration) (string, error)

	// Available reports whether the client holds a complete configuration.
	// It is a cheap local check, never a network probe: a true result does
	// not guarantee connectivity.
	Available() bool
}
