// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package objects implements content-addressed document storage and raw or
// JSON blob storage on top of the blob store contract. It owns the bucket's
// key naming policy.
package objects

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/storage"
)

var (
	mon = monkit.Package()
	// Error is the class of object storage errors.
	Error = errs.Class("object storage")
)

const (
	metadataSHA256     = "sha256"
	metadataUploadedAt = "uploaded-at"
)

// Store provides high-level object operations against one bucket.
type Store struct {
	log   *zap.Logger
	blobs storage.Blobs
}

// New creates a Store backed by blobs.
func New(log *zap.Logger, blobs storage.Blobs) *Store {
	return &Store{log: log, blobs: blobs}
}

// Available reports whether the backing store is configured. A cheap local
// check only; it does not guarantee connectivity.
func (store *Store) Available() bool { return store.blobs.Available() }

// UploadInfo reports a completed upload.
type UploadInfo struct {
	Key         string
	ETag        storage.Version
	SHA256      string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// Object is a downloaded object with its payload.
type Object struct {
	Key          string
	Data         []byte
	ETag         storage.Version
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

// PutOptions control a high-level upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Put uploads raw bytes. The payload's sha256 is computed locally and
// recorded in metadata: store ETags are opaque version tokens and cannot be
// trusted to be a content hash on every S3-compatible backend.
func (store *Store) Put(ctx context.Context, key string, data []byte, opts PutOptions) (_ UploadInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return UploadInfo{}, storage.ErrUnavailable.New("put %q", key)
	}

	digest := sha256.Sum256(data)
	sha := hex.EncodeToString(digest[:])
	uploadedAt := time.Now().UTC()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(key)
	}

	metadata := make(map[string]string, len(opts.Metadata)+2)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata[metadataSHA256] = sha
	metadata[metadataUploadedAt] = uploadedAt.Format(time.RFC3339)

	result, err := store.blobs.Put(ctx, key, data, storage.PutOptions{
		ContentType: contentType,
		Metadata:    metadata,
	})
	if err != nil {
		return UploadInfo{}, Error.Wrap(err)
	}

	store.log.Info("object stored",
		zap.String("key", key),
		zap.Int64("size", result.Size),
		zap.String("sha256", sha))

	return UploadInfo{
		Key:         key,
		ETag:        result.ETag,
		SHA256:      sha,
		Size:        result.Size,
		ContentType: contentType,
		UploadedAt:  uploadedAt,
	}, nil
}

// Get downloads an object. If the stored metadata carries a sha256 it is
// re-verified against the payload; a mismatch is logged, not fatal, since
// the caller may still want the bytes.
func (store *Store) Get(ctx context.Context, key string) (_ Object, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return Object{}, storage.ErrUnavailable.New("get %q", key)
	}

	data, info, err := store.blobs.Get(ctx, key)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return Object{}, err
		}
		return Object{}, Error.Wrap(err)
	}

	if expected, ok := info.Metadata[metadataSHA256]; ok {
		digest := sha256.Sum256(data)
		if actual := hex.EncodeToString(digest[:]); actual != expected {
			store.log.Warn("sha256 verification failed",
				zap.String("key", key),
				zap.String("expected", expected),
				zap.String("actual", actual))
		}
	}

	return Object{
		Key:          key,
		Data:         data,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		Metadata:     info.Metadata,
		LastModified: info.LastModified,
	}, nil
}

// Stat returns object info without downloading the payload.
func (store *Store) Stat(ctx context.Context, key string) (_ storage.ObjectInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return storage.ObjectInfo{}, storage.ErrUnavailable.New("stat %q", key)
	}
	info, err := store.blobs.Stat(ctx, key)
	if err != nil && !storage.ErrNotFound.Has(err) {
		return storage.ObjectInfo{}, Error.Wrap(err)
	}
	return info, err
}

// Exists reports whether the key is present.
func (store *Store) Exists(ctx context.Context, key string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.Stat(ctx, key)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an object.
func (store *Store) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return storage.ErrUnavailable.New("delete %q", key)
	}
	if err := store.blobs.Delete(ctx, key); err != nil {
		return Error.Wrap(err)
	}
	store.log.Info("object deleted", zap.String("key", key))
	return nil
}

// DocumentInfo reports a content-addressed document upload.
type DocumentInfo struct {
	Key           string
	SHA256        string
	Size          int64
	ContentType   string
	AlreadyExists bool
}

// StoreDocument uploads a document under its content-addressed key
// documents/{sha256}.{ext}. If the key already exists the upload is skipped
// entirely: identical byte content is stored at most once.
func (store *Store) StoreDocument(ctx context.Context, data []byte, filename, contentType string) (_ DocumentInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return DocumentInfo{}, storage.ErrUnavailable.New("store document %q", filename)
	}

	digest := sha256.Sum256(data)
	sha := hex.EncodeToString(digest[:])
	key := DocumentKey(sha, extensionFor(filename, contentType))

	exists, err := store.Exists(ctx, key)
	if err != nil {
		return DocumentInfo{}, err
	}
	if exists {
		store.log.Info("document already stored",
			zap.String("key", key),
			zap.String("filename", filename))
		info, err := store.Stat(ctx, key)
		if err != nil {
			return DocumentInfo{}, err
		}
		return DocumentInfo{
			Key:           key,
			SHA256:        sha,
			Size:          info.Size,
			ContentType:   info.ContentType,
			AlreadyExists: true,
		}, nil
	}

	uploaded, err := store.Put(ctx, key, data, PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"original-filename": filename},
	})
	if err != nil {
		return DocumentInfo{}, err
	}
	return DocumentInfo{
		Key:         key,
		SHA256:      sha,
		Size:        uploaded.Size,
		ContentType: uploaded.ContentType,
	}, nil
}

// PutJSON stores v as a small named JSON blob at json_blobs/{name}.json.
func (store *Store) PutJSON(ctx context.Context, name string, v interface{}) (_ UploadInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(v)
	if err != nil {
		return UploadInfo{}, Error.New("encode json blob %q: %w", name, err)
	}
	return store.Put(ctx, JSONBlobKey(name), data, PutOptions{
		ContentType: KindJSON.ContentType(),
	})
}

// GetJSON downloads a named JSON blob into v.
func (store *Store) GetJSON(ctx context.Context, name string, v interface{}) (err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := store.Get(ctx, JSONBlobKey(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(object.Data, v); err != nil {
		return Error.New("decode json blob %q: %w", name, err)
	}
	return nil
}

// List returns a single page of objects under prefix. Pagination beyond one
// page is out of scope; the listing reports truncation instead.
func (store *Store) List(ctx context.Context, prefix string, maxKeys int) (_ storage.Listing, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return storage.Listing{}, storage.ErrUnavailable.New("list %q", prefix)
	}
	listing, err := store.blobs.List(ctx, prefix, maxKeys)
	if err != nil {
		return storage.Listing{}, Error.Wrap(err)
	}
	return listing, nil
}

// PresignURL returns a time-limited URL granting direct access to key, so
// large payloads can move without proxying through this layer. Accepted
// methods are storage.MethodGet and storage.MethodPut.
func (store *Store) PresignURL(ctx context.Context, key string, method storage.Method, expiration time.Duration) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return "", storage.ErrUnavailable.New("presign %q", key)
	}
	url, err := store.blobs.PresignURL(ctx, key, method, expiration)
	if err != nil {
		return "", Error.Wrap(err)
	}
	store.log.Info("presigned url generated",
		zap.String("key", key),
		zap.Stringer("method", method),
		zap.Duration("expiration", expiration))
	return url, nil
}

// ReadVersioned downloads an object with its version token. Part of the
// shared compare-and-swap primitive used by manifest appends and search
// index mutations.
func (store *Store) ReadVersioned(ctx context.Context, key string) (data []byte, version storage.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return nil, "", storage.ErrUnavailable.New("read %q", key)
	}
	return storage.ReadVersioned(ctx, store.blobs, key)
}

// WriteIfVersion writes an object only if its version still matches
// expected; empty expected means the object must not exist yet. Lost races
// surface as storage.ErrConflict.
func (store *Store) WriteIfVersion(ctx context.Context, key string, data []byte, expected storage.Version, opts PutOptions) (version storage.Version, err error) {
	defer mon.Task()(&ctx)(&err)

	if !store.Available() {
		return "", storage.ErrUnavailable.New("write %q", key)
	}
	return storage.WriteIfVersion(ctx, store.blobs, key, data, expected, storage.PutOptions{
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	})
}
