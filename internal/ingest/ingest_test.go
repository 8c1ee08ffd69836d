package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/blob"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/enrich"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bulkResponse scripts one EnrichBulk answer for a filename.
type bulkResponse struct {
	result enrich.Result
	status enrich.BulkStatus
	reason string
}

type fakeEnricher struct {
	bulk   map[string]bulkResponse
	calls  []string
	result enrich.Result
	step   string
	err    error
}

func (f *fakeEnricher) Enrich(_ context.Context, _, filename string) (enrich.Result, string, error) {
	f.calls = append(f.calls, filename)
	return f.result, f.step, f.err
}

func (f *fakeEnricher) EnrichBulk(_ context.Context, _, filename string) (enrich.Result, enrich.BulkStatus, string) {
	f.calls = append(f.calls, filename)
	r, ok := f.bulk[filename]
	if !ok {
		return enrich.Result{Title: "Enriched " + filename, Tags: "tag", AltText: "alt"}, enrich.BulkOK, ""
	}
	return r.result, r.status, r.reason
}

type savedRecorder struct {
	posts []store.Post
	err   error
}

func (s *savedRecorder) Save(_ context.Context, p store.Post) (store.Post, error) {
	if s.err != nil {
		return store.Post{}, s.err
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("id-%d", len(s.posts)+1)
	}
	s.posts = append(s.posts, p)
	return p, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("fake image bytes"), 0o644))
	}
}

func newOrchestrator(dir string, en Enricher, saver Saver, bl blob.Store) *Orchestrator {
	if bl == nil {
		bl = blob.NewMemory()
	}
	return &Orchestrator{
		Blob:     bl,
		Posts:    saver,
		Enricher: en,
		Dir:      dir,
		Logger:   testLogger(),
	}
}

func TestRun_RateLimitStopsMidFolder(t *testing.T) {
	// Given five images where the provider rate-limits on the third
	dir := t.TempDir()
	writeFiles(t, dir, "a1.jpg", "a2.jpg", "a3.jpg", "a4.jpg", "a5.jpg")

	en := &fakeEnricher{bulk: map[string]bulkResponse{
		"a3.jpg": {status: enrich.BulkRateLimited, reason: "tags: rate limited"},
	}}
	saver := &savedRecorder{}
	o := newOrchestrator(dir, en, saver, nil)

	// When running the enriched bulk ingestion
	report, err := o.Run(context.Background(), true)

	// Then two posts are saved, the run reports why it stopped, and the
	// remaining files are untouched
	require.NoError(t, err)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, "tags: rate limited", report.StopReason)
	assert.False(t, report.Completed())
	assert.Len(t, saver.posts, 2)

	for _, n := range []string{"a3.jpg", "a4.jpg", "a5.jpg"} {
		_, statErr := os.Stat(filepath.Join(dir, n))
		assert.NoError(t, statErr, "%s should remain for the next run", n)
	}
	for _, n := range []string{"a1.jpg", "a2.jpg"} {
		_, statErr := os.Stat(filepath.Join(dir, n))
		assert.True(t, os.IsNotExist(statErr), "%s should be removed after ingestion", n)
	}
}

func TestRun_SkipsUnsupportedEntries(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg", "notes.txt", "b.PNG")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	saver := &savedRecorder{}
	o := newOrchestrator(dir, &fakeEnricher{}, saver, nil)

	report, err := o.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Success, "jpg and PNG are ingested")
	assert.Equal(t, 2, report.Skipped, "txt file and directory are skipped")
	assert.Equal(t, 0, report.Failed)
}

func TestRun_PlainModeTitlesFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "red jacket.jpg")

	mem := blob.NewMemory()
	saver := &savedRecorder{}
	en := &fakeEnricher{}
	o := newOrchestrator(dir, en, saver, mem)

	report, err := o.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Success)
	assert.Empty(t, en.calls, "plain mode never calls the enricher")
	require.Len(t, saver.posts, 1)
	assert.Equal(t, "red jacket", saver.posts[0].Title, "plain mode stores the stripped filename verbatim")
	assert.Empty(t, saver.posts[0].Tags)
	assert.Equal(t, 1, mem.Len(), "image uploaded to blob storage")
	assert.Contains(t, saver.posts[0].ImageURL, "https://public.test/")
}

func TestRun_FailedEnrichmentContinues(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a1.jpg", "a2.jpg", "a3.jpg")

	en := &fakeEnricher{bulk: map[string]bulkResponse{
		"a2.jpg": {status: enrich.BulkFailed, reason: "llmTags is empty (vision tagging failed)."},
	}}
	saver := &savedRecorder{}
	o := newOrchestrator(dir, en, saver, nil)

	report, err := o.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, report.Completed())

	// The failed file stays on disk.
	_, statErr := os.Stat(filepath.Join(dir, "a2.jpg"))
	assert.NoError(t, statErr)
}

func TestRun_MissingBucketAborts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg")

	mem := blob.NewMemory()
	mem.MissingBucket = true
	o := newOrchestrator(dir, &fakeEnricher{}, &savedRecorder{}, mem)

	_, err := o.Run(context.Background(), true)
	assert.ErrorIs(t, err, blob.ErrBucketNotFound)
}

func TestIngestSingle_Success(t *testing.T) {
	mem := blob.NewMemory()
	saver := &savedRecorder{}
	en := &fakeEnricher{result: enrich.Result{
		Title:   "Vintage Red Jacket",
		Tags:    "red, jacket, vintage",
		AltText: "red jacket vintage",
	}}
	o := newOrchestrator(t.TempDir(), en, saver, mem)

	res, err := o.IngestSingle(context.Background(), []byte("img"), "jacket.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "Vintage Red Jacket", res.Title)
	assert.Equal(t, "red, jacket, vintage", res.Tags)
	assert.Contains(t, res.ImageURL, "https://public.test/")
	assert.NotEmpty(t, res.SignedURL)
	assert.Equal(t, 1, mem.Len())
	require.Len(t, saver.posts, 1)
}

func TestIngestSingle_EmptyPayload(t *testing.T) {
	o := newOrchestrator(t.TempDir(), &fakeEnricher{}, &savedRecorder{}, nil)

	_, err := o.IngestSingle(context.Background(), nil, "a.jpg", "image/jpeg")

	assert.ErrorIs(t, err, ErrEmptyPayload)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "upload", stepErr.Step)
}

func TestIngestSingle_MissingBucket(t *testing.T) {
	mem := blob.NewMemory()
	mem.MissingBucket = true
	o := newOrchestrator(t.TempDir(), &fakeEnricher{}, &savedRecorder{}, mem)

	_, err := o.IngestSingle(context.Background(), []byte("img"), "a.jpg", "image/jpeg")

	assert.ErrorIs(t, err, ErrMissingBucket)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "bucket", stepErr.Step)
}

func TestIngestSingle_EnrichmentFailureKeepsPartialResult(t *testing.T) {
	// Given enrichment that fails after the upload succeeded
	mem := blob.NewMemory()
	en := &fakeEnricher{
		result: enrich.Result{Title: "Jacket"},
		step:   "tags",
		err:    &enrich.Error{TagsEmpty: true},
	}
	o := newOrchestrator(t.TempDir(), en, &savedRecorder{}, mem)

	// When ingesting a single image
	res, err := o.IngestSingle(context.Background(), []byte("img"), "jacket.jpg", "image/jpeg")

	// Then the error names the failing step and the partial result still
	// carries the uploaded image URL and fallback title
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "tags", stepErr.Step)

	var enrichErr *enrich.Error
	assert.ErrorAs(t, err, &enrichErr)
	assert.Equal(t, "Jacket", res.Title)
	assert.NotEmpty(t, res.ImageURL)
	assert.Empty(t, res.ID, "nothing was saved")
}

func TestIngestSingle_SaveFailure(t *testing.T) {
	saver := &savedRecorder{err: errors.New("db down")}
	en := &fakeEnricher{result: enrich.Result{Title: "Jacket", Tags: "jacket", AltText: "jacket"}}
	o := newOrchestrator(t.TempDir(), en, saver, nil)

	_, err := o.IngestSingle(context.Background(), []byte("img"), "a.jpg", "image/jpeg")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "save", stepErr.Step)
}
