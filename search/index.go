// Copyright (C) 2025 Umbra Storage Authors.
// See LICENSE for copying information.

// Package search maintains a per-module inverted index stored as a single
// JSON object in the bucket. It trades query sophistication for zero extra
// infrastructure: good enough for small to medium document sets, and every
// mutation is guarded by the store's version tokens so concurrent indexers
// cannot clobber each other.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/silvioiatech/Umbra-sub003/objects"
	"github.com/silvioiatech/Umbra-sub003/storage"
)

var (
	mon = monkit.Package()
	// Error is the class of search index errors.
	Error = errs.Class("search index")

	errUnchanged = errors.New("index unchanged")
)

const (
	indexVersion = "1.0"

	// DefaultLimit caps search results when the caller passes no limit.
	DefaultLimit = 100
	// DefaultMaxRetries bounds the mutation conflict-retry loop.
	DefaultMaxRetries = 3

	statsSampleSize = 10
)

// IndexKey returns the key of the index object for (module, userID).
func IndexKey(module, userID string) string {
	if userID == "" {
		return fmt.Sprintf("search/%s/index.json", module)
	}
	return fmt.Sprintf("search/%s/%s/index.json", module, userID)
}

// Operator combines multiple keywords in a search.
type Operator int

const (
	// OpAnd requires every keyword to match.
	OpAnd Operator = iota
	// OpOr requires any keyword to match.
	OpOr
)

// Index indexes document text and merchants for one bucket.
type Index struct {
	log        *zap.Logger
	store      *objects.Store
	maxRetries int
}

// NewIndex creates an Index backed by store.
func NewIndex(log *zap.Logger, store *objects.Store) *Index {
	return &Index{log: log, store: store, maxRetries: DefaultMaxRetries}
}

// Available reports whether the backing store is configured.
func (index *Index) Available() bool { return index.store.Available() }

// Stats summarizes the size of an index.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	TotalTerms     int `json:"total_terms"`
	TotalMerchants int `json:"total_merchants"`
}

// document is the indexed view of one document, kept so a re-add or removal
// can clear the document's old postings without scanning the whole index.
type document struct {
	Words      []string          `json:"words"`
	Merchant   string            `json:"merchant,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IndexedAt  time.Time         `json:"indexed_at"`
	TextLength int               `json:"text_length"`
	WordCount  int               `json:"word_count"`
}

// state is the serialized form of the whole index.
type state struct {
	Version   string              `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Module    string              `json:"module"`
	UserID    string              `json:"user_id,omitempty"`
	Inverted  map[string][]string `json:"inverted_index"`
	Documents map[string]document `json:"documents"`
	Merchants map[string][]string `json:"merchants"`
	Stats     Stats               `json:"stats"`
}

func newState(module, userID string) state {
	now := time.Now().UTC()
	return state{
		Version:   indexVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Module:    module,
		UserID:    userID,
		Inverted:  map[string][]string{},
		Documents: map[string]document{},
		Merchants: map[string][]string{},
	}
}

// load reads the index with its version token. An absent index is a valid
// empty state with no token.
func (index *Index) load(ctx context.Context, module, userID string) (state, storage.Version, error) {
	data, version, err := index.store.ReadVersioned(ctx, IndexKey(module, userID))
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return newState(module, userID), "", nil
		}
		return state{}, "", Error.Wrap(err)
	}

	var loaded state
	if err := json.Unmarshal(data, &loaded); err != nil {
		return state{}, "", Error.New("decode index %q: %w", IndexKey(module, userID), err)
	}
	if loaded.Inverted == nil {
		loaded.Inverted = map[string][]string{}
	}
	if loaded.Documents == nil {
		loaded.Documents = map[string]document{}
	}
	if loaded.Merchants == nil {
		loaded.Merchants = map[string][]string{}
	}
	return loaded, version, nil
}

// mutate applies a read-modify-write to the index under the version token
// observed at load. A lost race re-reads and reapplies, bounded by
// maxRetries. apply may return errUnchanged to skip the write.
func (index *Index) mutate(ctx context.Context, module, userID string, apply func(s *state) error) (state, error) {
	key := IndexKey(module, userID)

	for attempt := 1; attempt <= index.maxRetries+1; attempt++ {
		current, version, err := index.load(ctx, module, userID)
		if err != nil {
			return state{}, err
		}

		if err := apply(&current); err != nil {
			if errors.Is(err, errUnchanged) {
				return current, nil
			}
			return state{}, err
		}

		current.UpdatedAt = time.Now().UTC()
		current.Stats = Stats{
			TotalDocuments: len(current.Documents),
			TotalTerms:     len(current.Inverted),
			TotalMerchants: len(current.Merchants),
		}

		data, err := json.Marshal(current)
		if err != nil {
			return state{}, Error.New("encode index %q: %w", key, err)
		}

		_, err = index.store.WriteIfVersion(ctx, key, data, version, objects.PutOptions{
			ContentType: objects.KindJSON.ContentType(),
		})
		if err != nil {
			if storage.ErrConflict.Has(err) {
				index.log.Warn("index update conflict, retrying",
					zap.String("key", key),
					zap.Int("attempt", attempt))
				continue
			}
			return state{}, Error.Wrap(err)
		}
		return current, nil
	}

	return state{}, Error.New("index %q: version conflict persisted after %d attempts", key, index.maxRetries+1)
}

// AddResult reports an indexing operation.
type AddResult struct {
	DocumentID     string
	WordsIndexed   int
	TotalTerms     int
	TotalDocuments int
}

// AddDocument indexes a document's text and merchant, replacing any earlier
// indexing of the same document ID. Stale postings from the earlier version
// are removed first, so re-adding with different text never leaves the
// document reachable through words it no longer contains.
func (index *Index) AddDocument(ctx context.Context, module, userID, documentID, text, merchant string, metadata map[string]string) (_ AddResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return AddResult{}, storage.ErrUnavailable.New("add document %q", documentID)
	}
	if documentID == "" {
		return AddResult{}, Error.New("add document: empty document id")
	}

	words := tokenize(text)

	updated, err := index.mutate(ctx, module, userID, func(s *state) error {
		unindex(s, documentID)

		for _, word := range words {
			addPosting(s.Inverted, word, documentID)
		}
		if merchant != "" {
			addPosting(s.Merchants, normalize(merchant), documentID)
		}
		s.Documents[documentID] = document{
			Words:      words,
			Merchant:   merchant,
			Metadata:   metadata,
			IndexedAt:  time.Now().UTC(),
			TextLength: len(text),
			WordCount:  len(words),
		}
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}

	index.log.Info("document indexed",
		zap.String("module", module),
		zap.String("document_id", documentID),
		zap.Int("words", len(words)),
		zap.String("merchant", merchant))

	return AddResult{
		DocumentID:     documentID,
		WordsIndexed:   len(words),
		TotalTerms:     updated.Stats.TotalTerms,
		TotalDocuments: updated.Stats.TotalDocuments,
	}, nil
}

// RemoveDocument removes a document and all its postings. It reports whether
// the document was present; removing an unknown document is not an error and
// writes nothing.
func (index *Index) RemoveDocument(ctx context.Context, module, userID, documentID string) (removed bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return false, storage.ErrUnavailable.New("remove document %q", documentID)
	}

	_, err = index.mutate(ctx, module, userID, func(s *state) error {
		if _, ok := s.Documents[documentID]; !ok {
			return errUnchanged
		}
		unindex(s, documentID)
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		index.log.Info("document removed from index",
			zap.String("module", module),
			zap.String("document_id", documentID))
	}
	return removed, nil
}

// Document is one input to a Rebuild.
type Document struct {
	ID       string
	Text     string
	Merchant string
	Metadata map[string]string
}

// RebuildResult reports a Rebuild.
type RebuildResult struct {
	Indexed int
	Skipped int
	Stats   Stats
}

// Rebuild replaces the index wholesale with one built from documents.
// Documents without an ID are skipped and counted.
func (index *Index) Rebuild(ctx context.Context, module, userID string, documents []Document) (_ RebuildResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return RebuildResult{}, storage.ErrUnavailable.New("rebuild index %s", module)
	}

	var result RebuildResult
	updated, err := index.mutate(ctx, module, userID, func(s *state) error {
		fresh := newState(module, userID)
		fresh.CreatedAt = s.CreatedAt
		if fresh.CreatedAt.IsZero() {
			fresh.CreatedAt = time.Now().UTC()
		}
		*s = fresh

		result = RebuildResult{}
		for _, doc := range documents {
			if doc.ID == "" {
				result.Skipped++
				continue
			}
			words := tokenize(doc.Text)
			for _, word := range words {
				addPosting(s.Inverted, word, doc.ID)
			}
			if doc.Merchant != "" {
				addPosting(s.Merchants, normalize(doc.Merchant), doc.ID)
			}
			s.Documents[doc.ID] = document{
				Words:      words,
				Merchant:   doc.Merchant,
				Metadata:   doc.Metadata,
				IndexedAt:  time.Now().UTC(),
				TextLength: len(doc.Text),
				WordCount:  len(words),
			}
			result.Indexed++
		}
		return nil
	})
	if err != nil {
		return RebuildResult{}, err
	}

	result.Stats = updated.Stats
	index.log.Info("index rebuilt",
		zap.String("module", module),
		zap.Int("indexed", result.Indexed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Result is one search hit.
type Result struct {
	DocumentID string
	Merchant   string
	Metadata   map[string]string
	IndexedAt  time.Time
	TextLength int
	WordCount  int
}

// SearchKeywords finds documents matching keywords. A keyword matches a term
// when either contains the other, so "coff" finds "coffee" and "coffeeshop"
// finds "coffee". Results come back newest-indexed first.
func (index *Index) SearchKeywords(ctx context.Context, module, userID string, keywords []string, op Operator, limit int) (_ []Result, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return nil, storage.ErrUnavailable.New("search %s", module)
	}

	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = normalize(strings.TrimSpace(keyword)); keyword != "" {
			normalized = append(normalized, keyword)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	current, _, err := index.load(ctx, module, userID)
	if err != nil {
		return nil, err
	}

	var matched map[string]struct{}
	for _, keyword := range normalized {
		hits := map[string]struct{}{}
		for term, postings := range current.Inverted {
			if strings.Contains(term, keyword) || strings.Contains(keyword, term) {
				for _, id := range postings {
					hits[id] = struct{}{}
				}
			}
		}

		switch {
		case matched == nil:
			matched = hits
		case op == OpAnd:
			for id := range matched {
				if _, ok := hits[id]; !ok {
					delete(matched, id)
				}
			}
		default:
			for id := range hits {
				matched[id] = struct{}{}
			}
		}
	}

	return collectResults(current, matched, limit), nil
}

// SearchMerchants finds documents by merchant name, matching when the
// normalized query and merchant contain each other. Results come back
// newest-indexed first.
func (index *Index) SearchMerchants(ctx context.Context, module, userID, query string, limit int) (_ []Result, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return nil, storage.ErrUnavailable.New("search merchants %s", module)
	}

	normalized := normalize(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}

	current, _, err := index.load(ctx, module, userID)
	if err != nil {
		return nil, err
	}

	matched := map[string]struct{}{}
	for merchant, postings := range current.Merchants {
		if strings.Contains(merchant, normalized) || strings.Contains(normalized, merchant) {
			for _, id := range postings {
				matched[id] = struct{}{}
			}
		}
	}

	return collectResults(current, matched, limit), nil
}

// IndexInfo is the stats payload for one index.
type IndexInfo struct {
	Module          string
	UserID          string
	Version         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Stats           Stats
	SampleTerms     []string
	SampleMerchants []string
}

// Info returns index statistics with a small sample of terms and merchants.
func (index *Index) Info(ctx context.Context, module, userID string) (_ IndexInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	if !index.Available() {
		return IndexInfo{}, storage.ErrUnavailable.New("index stats %s", module)
	}

	current, _, err := index.load(ctx, module, userID)
	if err != nil {
		return IndexInfo{}, err
	}

	return IndexInfo{
		Module:          module,
		UserID:          userID,
		Version:         current.Version,
		CreatedAt:       current.CreatedAt,
		UpdatedAt:       current.UpdatedAt,
		Stats: Stats{
			TotalDocuments: len(current.Documents),
			TotalTerms:     len(current.Inverted),
			TotalMerchants: len(current.Merchants),
		},
		SampleTerms:     sample(current.Inverted, statsSampleSize),
		SampleMerchants: sample(current.Merchants, statsSampleSize),
	}, nil
}

// unindex strips every posting of documentID and drops the document entry.
func unindex(s *state, documentID string) {
	doc, ok := s.Documents[documentID]
	if !ok {
		return
	}
	for _, word := range doc.Words {
		removePosting(s.Inverted, word, documentID)
	}
	if doc.Merchant != "" {
		removePosting(s.Merchants, normalize(doc.Merchant), documentID)
	}
	delete(s.Documents, documentID)
}

func addPosting(postings map[string][]string, term, documentID string) {
	ids := postings[term]
	i := sort.SearchStrings(ids, documentID)
	if i < len(ids) && ids[i] == documentID {
		return
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = documentID
	postings[term] = ids
}

func removePosting(postings map[string][]string, term, documentID string) {
	ids := postings[term]
	i := sort.SearchStrings(ids, documentID)
	if i >= len(ids) || ids[i] != documentID {
		return
	}
	ids = append(ids[:i], ids[i+1:]...)
	if len(ids) == 0 {
		delete(postings, term)
		return
	}
	postings[term] = ids
}

func collectResults(current state, matched map[string]struct{}, limit int) []Result {
	if len(matched) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]Result, 0, len(matched))
	for id := range matched {
		doc := current.Documents[id]
		results = append(results, Result{
			DocumentID: id,
			Merchant:   doc.Merchant,
			Metadata:   doc.Metadata,
			IndexedAt:  doc.IndexedAt,
			TextLength: doc.TextLength,
			WordCount:  doc.WordCount,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].IndexedAt.Equal(results[j].IndexedAt) {
			return results[i].IndexedAt.After(results[j].IndexedAt)
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sample(postings map[string][]string, n int) []string {
	keys := make([]string, 0, len(postings))
	for key := range postings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
