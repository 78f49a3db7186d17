// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package s3client implements the blob store contract against a single
// bucket of any S3-compatible backend.
package s3client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/storage"
)

var (
	mon = monkit.Package()
	// Error is the class of s3 client errors.
	Error = errs.Class("s3 client")
)

// Config holds the connection parameters for one bucket.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	Insecure        bool
}

// Complete reports whether every required field is set.
func (config Config) Complete() bool {
	return config.Endpoint != "" &&
		config.AccessKeyID != "" &&
		config.SecretAccessKey != "" &&
		config.Bucket != ""
}

// Client talks to one bucket of an S3-compatible store.
//
// An incompletely configured client is still constructable: it reports
// Available() == false and fails every call with ErrUnavailable before
// attempting network I/O, so call sites degrade with an actionable error
// instead of a connection timeout.
type Client struct {
	log    *zap.Logger
	config Config
	minio  *minio.Client
}

// New creates a client for the configured bucket. No network I/O happens
// here; connectivity problems surface on first use.
func New(log *zap.Logger, config Config) (*Client, error) {
	client := &Client{log: log, config: config}

	if !config.Complete() {
		log.Warn("s3 credentials incomplete, client will be unavailable",
			zap.String("endpoint", config.Endpoint),
			zap.String("bucket", config.Bucket))
		return client, nil
	}

	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: !config.Insecure,
		Region: config.Region,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	client.minio = mc

	log.Debug("s3 client initialized",
		zap.String("endpoint", config.Endpoint),
		zap.String("bucket", config.Bucket))
	return client, nil
}

// Available implements storage.Blobs. It checks configuration only.
func (client *Client) Available() bool {
	return client.minio != nil && client.config.Complete()
}

// Put implements storage.Blobs.
func (client *Client) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) (_ storage.PutResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return storage.PutResult{}, storage.ErrUnavailable.New("put %q", key)
	}
	if key == "" {
		return storage.PutResult{}, storage.ErrEmptyKey.New("put")
	}

	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}
	if opts.IfNoneMatch {
		putOpts.SetMatchETagExcept("*")
	} else if !opts.IfMatch.Zero() {
		putOpts.SetMatchETag(string(opts.IfMatch))
	}

	info, err := client.minio.PutObject(ctx, client.config.Bucket, key,
		bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		return storage.PutResult{}, client.convert("put", key, err)
	}

	client.log.Debug("object uploaded",
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag))
	return storage.PutResult{ETag: storage.Version(info.ETag), Size: info.Size}, nil
}

// Get implements storage.Blobs.
func (client *Client) Get(ctx context.Context, key string) (_ []byte, _ storage.ObjectInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return nil, storage.ObjectInfo{}, storage.ErrUnavailable.New("get %q", key)
	}

	object, err := client.minio.GetObject(ctx, client.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, client.convert("get", key, err)
	}
	defer func() { _ = object.Close() }()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, storage.ObjectInfo{}, client.convert("get", key, err)
	}
	stat, err := object.Stat()
	if err != nil {
		return nil, storage.ObjectInfo{}, client.convert("get", key, err)
	}

	return data, objectInfo(key, stat), nil
}

// Stat implements storage.Blobs.
func (client *Client) Stat(ctx context.Context, key string) (_ storage.ObjectInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return storage.ObjectInfo{}, storage.ErrUnavailable.New("stat %q", key)
	}

	stat, err := client.minio.StatObject(ctx, client.config.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, client.convert("stat", key, err)
	}
	return objectInfo(key, stat), nil
}

// List implements storage.Blobs. It returns at most maxKeys objects and
// reports whether the prefix holds more; it never paginates further.
func (client *Client) List(ctx context.Context, prefix string, maxKeys int) (_ storage.Listing, err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return storage.Listing{}, storage.ErrUnavailable.New("list %q", prefix)
	}
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listing := storage.Listing{}
	for object := range client.minio.ListObjects(listCtx, client.config.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return storage.Listing{}, client.convert("list", prefix, object.Err)
		}
		if len(listing.Objects) >= maxKeys {
			listing.Truncated = true
			break
		}
		listing.Objects = append(listing.Objects, storage.ObjectInfo{
			Key:          object.Key,
			ETag:         storage.Version(object.ETag),
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return listing, nil
}

// Delete implements storage.Blobs. Deleting an absent key is not an error.
func (client *Client) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return storage.ErrUnavailable.New("delete %q", key)
	}

	err = client.minio.RemoveObject(ctx, client.config.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return client.convert("delete", key, err)
	}
	return nil
}

// PresignURL implements storage.Blobs. The returned URL grants direct,
// credential-free access to one object so large payloads never proxy
// through this layer.
func (client *Client) PresignURL(ctx context.Context, key string, method storage.Method, expires time.Duration) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	if !client.Available() {
		return "", storage.ErrUnavailable.New("presign %q", key)
	}

	var presigned *url.URL
	switch method {
	case storage.MethodPut:
		presigned, err = client.minio.PresignedPutObject(ctx, client.config.Bucket, key, expires)
	default:
		presigned, err = client.minio.PresignedGetObject(ctx, client.config.Bucket, key, expires, url.Values{})
	}
	if err != nil {
		return "", client.convert("presign", key, err)
	}
	return presigned.String(), nil
}

// convert maps backend faults onto the storage error classes; everything
// else is wrapped with the operation and key for context.
func (client *Client) convert(op, key string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	// A missing bucket is a configuration fault, not an absent object;
	// mapping it to ErrNotFound would make callers read it as "no data yet".
	case resp.Code == "NoSuchBucket":
		return Error.New("%s %q: %w", op, key, err)
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return storage.ErrNotFound.New("%s %q", op, key)
	case resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed:
		return storage.ErrConflict.New("%s %q", op, key)
	}
	return Error.New("%s %q: %w", op, key, err)
}

func objectInfo(key string, stat minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          key,
		ETag:         storage.Version(stat.ETag),
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
		Metadata:     normalizeMetadata(stat.UserMetadata),
	}
}

// normalizeMetadata lowercases user-metadata keys. The backend transports
// metadata as X-Amz-Meta-* headers and minio-go hands the keys back
// canonicalized ("sha256" comes back as "Sha256"), so lookups written
// against the keys we stored would miss without this.
func normalizeMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	normalized := make(map[string]string, len(metadata))
	for key, value := range metadata {
		normalized[strings.ToLower(key)] = value
	}
	return normalized
}
