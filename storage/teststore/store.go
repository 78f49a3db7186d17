// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package teststore implements an in-memory blob store with the same
// version-token semantics as the real backend.
package teststore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/silvioiatech/Umbra-sub003/storage"
)

type object struct {
	data []byte
	info storage.ObjectInfo
}

// Client implements an in-memory storage.Blobs.
type Client struct {
	mu      sync.Mutex
	objects map[string]object
	version int64

	// Unavailable makes Available report false.
	Unavailable bool

	// BeforePut, when set, runs at the start of every Put while the store
	// lock is released. Tests use it to interleave a concurrent writer
	// between a reader's download and its conditional write.
	BeforePut func(key string)

	CallCount struct {
		Put     int
		Get     int
		Stat    int
		List    int
		Delete  int
		Presign int
	}
}

// New creates an empty in-memory blob store.
func New() *Client {
	return &Client{objects: map[string]object{}}
}

func (client *Client) nextETag() storage.Version {
	client.version++
	return storage.Version(fmt.Sprintf("v%d", client.version))
}

// Put stores an object, honoring conditional write options.
func (client *Client) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) (storage.PutResult, error) {
	if hook := client.BeforePut; hook != nil {
		hook(key)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.Put++

	if key == "" {
		return storage.PutResult{}, storage.ErrEmptyKey.New("put")
	}
	if err := ctx.Err(); err != nil {
		return storage.PutResult{}, err
	}

	current, exists := client.objects[key]
	if opts.IfNoneMatch && exists {
		return storage.PutResult{}, storage.ErrConflict.New("put %q: object already exists", key)
	}
	if !opts.IfMatch.Zero() {
		if !exists {
			return storage.PutResult{}, storage.ErrConflict.New("put %q: object is gone", key)
		}
		if current.info.ETag != opts.IfMatch {
			return storage.PutResult{}, storage.ErrConflict.New("put %q: expected %s, have %s", key, opts.IfMatch, current.info.ETag)
		}
	}

	stored := object{
		data: append([]byte(nil), data...),
		info: storage.ObjectInfo{
			Key:          key,
			ETag:         client.nextETag(),
			Size:         int64(len(data)),
			LastModified: time.Now().UTC(),
			ContentType:  opts.ContentType,
			Metadata:     cloneMap(opts.Metadata),
		},
	}
	client.objects[key] = stored

	return storage.PutResult{ETag: stored.info.ETag, Size: stored.info.Size}, nil
}

// Get returns the object payload and info.
func (client *Client) Get(ctx context.Context, key string) ([]byte, storage.ObjectInfo, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.Get++

	stored, exists := client.objects[key]
	if !exists {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound.New("%q", key)
	}
	return append([]byte(nil), stored.data...), stored.info, nil
}

// Stat returns object info without the payload.
func (client *Client) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.Stat++

	stored, exists := client.objects[key]
	if !exists {
		return storage.ObjectInfo{}, storage.ErrNotFound.New("%q", key)
	}
	return stored.info, nil
}

// List returns a single page of objects under prefix, in key order.
func (client *Client) List(ctx context.Context, prefix string, maxKeys int) (storage.Listing, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.List++

	var keys []string
	for key := range client.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	listing := storage.Listing{}
	for _, key := range keys {
		if maxKeys > 0 && len(listing.Objects) >= maxKeys {
			listing.Truncated = true
			break
		}
		listing.Objects = append(listing.Objects, client.objects[key].info)
	}
	return listing, nil
}

// Delete removes an object; deleting an absent key is not an error.
func (client *Client) Delete(ctx context.Context, key string) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.Delete++

	delete(client.objects, key)
	return nil
}

// PresignURL returns a synthetic URL for the key.
func (client *Client) PresignURL(ctx context.Context, key string, method storage.Method, expires time.Duration) (string, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CallCount.Presign++

	if key == "" {
		return "", storage.ErrEmptyKey.New("presign")
	}
	return fmt.Sprintf("https://teststore.invalid/%s?method=%s&expires=%d", key, method, int(expires.Seconds())), nil
}

// Available implements storage.Blobs.
func (client *Client) Available() bool { return !client.Unavailable }

// Len returns the number of stored objects.
func (client *Client) Len() int {
	client.mu.Lock()
	defer client.mu.Unlock()
	return len(client.objects)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	clone := make(map[string]string, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
