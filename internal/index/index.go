// Package index provides the searchable post catalog: a Bleve index with
// one document per post, upserted whole on every write and queried with
// ranked multi-field full-text search.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gofrs/flock"
)

// Document is the indexed view of a post. It is rebuilt in full on every
// upsert; the index never patches individual fields.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Tags     string `json:"tags"`
	AltText  string `json:"altText"`
	ImageURL string `json:"imageURL"`
	Date     string `json:"date"`
}

// Hit is one scored search result carrying all stored fields.
type Hit struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"imageURL"`
	Tags     string  `json:"llmTags"`
	AltText  string  `json:"altText"`
	Date     string  `json:"date"`
	Score    float64 `json:"score"`
}

// PostIndex is the single-writer post index. All writes funnel through one
// mutex so at most one physical write is in flight; reads open independent
// snapshots and never block writers.
//
// The underlying Bleve index is created lazily on the first upsert, so
// querying a catalog that has never been written returns empty results
// rather than an error.
type PostIndex struct {
	mu     sync.RWMutex
	idx    bleve.Index
	path   string // "" means in-memory
	lock   *flock.Flock
	logger *slog.Logger
}

// Open prepares a post index at path. An empty path yields an in-memory
// index (used in tests). On-disk indexes are guarded by a file lock so two
// processes cannot own the same writer.
func Open(path string, logger *slog.Logger) (*PostIndex, error) {
	p := &PostIndex{path: path, logger: logger}
	if path == "" {
		return p, nil
	}

	p.lock = flock.New(path + ".lock")
	locked, err := p.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is locked by another process", path)
	}

	// Open eagerly only when the index already exists on disk; otherwise
	// creation waits for the first upsert.
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil && isCorruptionError(err) {
			logger.Warn("post_index_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				_ = p.lock.Unlock()
				return nil, fmt.Errorf("post index corrupted and cannot be cleared: %w (original: %v)", rmErr, err)
			}
			logger.Info("post_index_cleared", slog.String("path", path))
			return p, nil
		}
		if err != nil {
			_ = p.lock.Unlock()
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		p.idx = idx
	}
	return p, nil
}

// isCorruptionError checks whether a Bleve open failure indicates an
// unusable index directory rather than a transient problem.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt || err == bleve.ErrorIndexMetaMissing {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "error opening bolt")
}

// buildMapping defines the document schema: the id as a single keyword
// term, the three text fields analyzed for matching, and imageURL/date
// stored verbatim but never matched against query terms.
func buildMapping() mapping.IndexMapping {
	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.IncludeInAll = false

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.IncludeInAll = false

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Index = false
	storedOnly.Store = true
	storedOnly.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("id", idField)
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("tags", textField)
	doc.AddFieldMappingsAt("altText", textField)
	doc.AddFieldMappingsAt("imageURL", storedOnly)
	doc.AddFieldMappingsAt("date", storedOnly)

	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name
	im.DefaultMapping = doc
	im.StoreDynamic = false
	im.IndexDynamic = false
	return im
}

// ensure creates the underlying Bleve index if it does not exist yet.
// Callers must hold the write lock.
func (p *PostIndex) ensure() error {
	if p.idx != nil {
		return nil
	}
	var (
		idx bleve.Index
		err error
	)
	if p.path == "" {
		idx, err = bleve.NewMemOnly(buildMapping())
	} else {
		idx, err = bleve.New(p.path, buildMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	p.idx = idx
	return nil
}

// Upsert replaces the document for doc.ID with a freshly built one. The
// write is committed before Upsert returns; concurrent callers serialize
// on the internal mutex so a reader never observes a half-written
// document.
func (p *PostIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensure(); err != nil {
		return err
	}
	if err := p.idx.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// Count returns the number of documents in the index.
func (p *PostIndex) Count() (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.idx == nil {
		return 0, nil
	}
	return p.idx.DocCount()
}

// Close releases the index and its file lock.
func (p *PostIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.idx != nil {
		err = p.idx.Close()
		p.idx = nil
	}
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
	return err
}
