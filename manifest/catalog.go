// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/storage"
)

// catalogName is the manifest name under which upload entries accumulate,
// one catalog per (module, user).
const catalogName = "catalog"

// Entry is one upload event recorded in a module's catalog manifest.
type Entry struct {
	ID        string            `json:"id"`
	Module    string            `json:"module"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      objects.DataKind  `json:"data_type"`
	Key       string            `json:"key"`
	ETag      storage.Version   `json:"etag"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Catalog uploads payloads under dated per-user keys and tracks every
// upload in an append-only catalog manifest, so entries stay searchable
// without listing the whole bucket.
type Catalog struct {
	log     *zap.Logger
	store   *objects.Store
	manager *Manager
}

// NewCatalog creates a Catalog recording uploads through manager.
func NewCatalog(log *zap.Logger, store *objects.Store, manager *Manager) *Catalog {
	return &Catalog{log: log, store: store, manager: manager}
}

// StoreJSONL uploads records as a JSONL object and records the upload.
func (catalog *Catalog) StoreJSONL(ctx context.Context, module, userID string, records []map[string]interface{}, metadata map[string]string) (_ Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return Entry{}, Error.New("encode jsonl upload: %w", err)
		}
	}
	return catalog.upload(ctx, module, userID, objects.KindJSONL, objects.KindJSONL.Ext(), buf.Bytes(), metadata)
}

// StoreTable uploads records in the manager's tabular format and records
// the upload. With the CSV fallback codec the entry is tagged binary and
// its metadata carries the concrete format.
func (catalog *Catalog) StoreTable(ctx context.Context, module, userID string, records []map[string]interface{}, schema Schema, metadata map[string]string) (_ Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(records) == 0 {
		return Entry{}, Error.New("table upload %s/%s: no records", module, userID)
	}
	if schema == nil {
		schema = InferSchema(records)
	}
	data, err := catalog.manager.codec.Encode(records, schema)
	if err != nil {
		return Entry{}, err
	}

	kind := objects.KindParquet
	if catalog.manager.codec.Format() != "parquet" {
		kind = objects.KindBinary
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["format"] = catalog.manager.codec.Format()

	return catalog.upload(ctx, module, userID, kind, catalog.manager.codec.Ext(), data, metadata)
}

// StoreJSON uploads a single JSON document and records the upload.
func (catalog *Catalog) StoreJSON(ctx context.Context, module, userID string, document interface{}, metadata map[string]string) (_ Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(document)
	if err != nil {
		return Entry{}, Error.New("encode json upload: %w", err)
	}
	return catalog.upload(ctx, module, userID, objects.KindJSON, objects.KindJSON.Ext(), data, metadata)
}

func (catalog *Catalog) upload(ctx context.Context, module, userID string, kind objects.DataKind, ext string, data []byte, metadata map[string]string) (Entry, error) {
	id := uuid.NewString()
	key := objects.DataKeyExt(module, userID, ext, id, time.Now())

	uploaded, err := catalog.store.Put(ctx, key, data, objects.PutOptions{
		ContentType: kind.ContentType(),
		Metadata:    metadata,
	})
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        id,
		Module:    module,
		UserID:    userID,
		Timestamp: uploaded.UploadedAt,
		Kind:      kind,
		Key:       key,
		ETag:      uploaded.ETag,
		Size:      uploaded.Size,
		Metadata:  metadata,
	}
	if _, err := catalog.manager.Append(ctx, module, catalogName, entry, userID, DefaultMaxRetries); err != nil {
		return Entry{}, err
	}

	catalog.log.Info("upload cataloged",
		zap.String("key", key),
		zap.Stringer("kind", kind),
		zap.Int64("size", uploaded.Size))
	return entry, nil
}

// Entries returns the catalog of (module, userID) in upload order.
func (catalog *Catalog) Entries(ctx context.Context, module, userID string) (_ []Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	records, err := catalog.manager.Read(ctx, module, catalogName, userID, ReadOptions{})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		var entry Entry
		if err := json.Unmarshal(record.Data, &entry); err != nil {
			catalog.log.Warn("skipping malformed catalog entry",
				zap.String("entry_id", record.EntryID),
				zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Search returns catalog entries whose key, kind or metadata values contain
// the query, case-insensitively.
func (catalog *Catalog) Search(ctx context.Context, module, userID, query string) (_ []Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	entries, err := catalog.Entries(ctx, module, userID)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries, nil
	}

	var matched []Entry
	for _, entry := range entries {
		var searchable strings.Builder
		searchable.WriteString(entry.Key)
		searchable.WriteString(" ")
		searchable.WriteString(entry.Kind.String())
		for _, value := range entry.Metadata {
			searchable.WriteString(" ")
			searchable.WriteString(value)
		}
		if strings.Contains(strings.ToLower(searchable.String()), query) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// Download fetches an uploaded payload and decodes it according to its
// key's extension: JSONL and tabular payloads decode to records, JSON to a
// single document, anything else comes back as raw bytes.
func (catalog *Catalog) Download(ctx context.Context, key string) (_ interface{}, err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := catalog.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(key, ".jsonl"):
		var records []map[string]interface{}
		for _, line := range bytes.Split(object.Data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var record map[string]interface{}
			if err := json.Unmarshal(line, &record); err != nil {
				catalog.log.Warn("skipping malformed jsonl line",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			records = append(records, record)
		}
		return records, nil

	case strings.HasSuffix(key, ".parquet"):
		return ParquetCodec().Decode(object.Data, nil)

	case strings.HasSuffix(key, ".csv"):
		return CSVCodec().Decode(object.Data, nil)

	case strings.HasSuffix(key, ".json"):
		var document map[string]interface{}
		if err := json.Unmarshal(object.Data, &document); err != nil {
			return nil, Error.New("decode %q: %w", key, err)
		}
		return document, nil

	default:
		return object.Data, nil
	}
}
