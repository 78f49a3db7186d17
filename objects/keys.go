// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

package objects

import (
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
)

// DataKind is the closed set of payload encodings this layer stores. Each
// kind carries its own file extension and content type, so a kind that the
// code does not handle is a compile error rather than a stray string.
type DataKind int

const (
	// KindJSONL is newline-delimited JSON.
	KindJSONL DataKind = iota
	// KindParquet is columnar parquet.
	KindParquet
	// KindJSON is a single JSON document.
	KindJSON
	// KindBinary is an opaque byte payload.
	KindBinary
)

// Ext returns the file extension for the kind, without a leading dot.
func (kind DataKind) Ext() string {
	switch kind {
	case KindJSONL:
		return "jsonl"
	case KindParquet:
		return "parquet"
	case KindJSON:
		return "json"
	default:
		return "bin"
	}
}

// ContentType returns the MIME type written alongside the payload.
func (kind DataKind) ContentType() string {
	switch kind {
	case KindJSONL:
		return "application/x-ndjson; charset=utf-8"
	case KindParquet:
		return "application/vnd.apache.parquet"
	case KindJSON:
		return "application/json; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// String implements the Stringer interface.
func (kind DataKind) String() string { return kind.Ext() }

// MarshalJSON encodes the kind as its extension string.
func (kind DataKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(kind.Ext())
}

// UnmarshalJSON decodes an extension string back into a kind. Unknown
// strings decode to KindBinary, matching KindForKey.
func (kind *DataKind) UnmarshalJSON(data []byte) error {
	var ext string
	if err := json.Unmarshal(data, &ext); err != nil {
		return err
	}
	*kind = KindForKey("." + ext)
	return nil
}

// KindForKey derives the kind from a key's extension.
func KindForKey(key string) DataKind {
	switch strings.ToLower(path.Ext(key)) {
	case ".jsonl":
		return KindJSONL
	case ".parquet":
		return KindParquet
	case ".json":
		return KindJSON
	default:
		return KindBinary
	}
}

// DocumentKey returns the content-addressed key for a document. Identical
// bytes always map to the same key, which is what makes deduplication work.
func DocumentKey(sha256hex, ext string) string {
	return fmt.Sprintf("documents/%s.%s", sha256hex, ext)
}

// JSONBlobKey returns the key for a small named JSON blob.
func JSONBlobKey(name string) string {
	return fmt.Sprintf("json_blobs/%s.json", name)
}

// DataKey returns the dated per-user key for an uploaded payload:
// {module}/{user}/{YYYY/MM/DD}/{id}.{ext}.
func DataKey(module, userID string, kind DataKind, id string, now time.Time) string {
	return DataKeyExt(module, userID, kind.Ext(), id, now)
}

// DataKeyExt is DataKey with an explicit extension, for payloads whose
// extension is decided by a codec rather than a kind.
func DataKeyExt(module, userID, ext, id string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s",
		module, userID, now.UTC().Format("2006/01/02"), id, ext)
}

// extensionFor picks the document extension from the original filename,
// falling back to the content type, then to the binary default.
func extensionFor(filename, contentType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); ext != "" {
		return ext
	}
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	return KindBinary.Ext()
}

// detectContentType guesses a content type from the key's extension.
func detectContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
