package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/backoff"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/blob"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/enrich"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/store"
)

// Saver persists a finished post. Satisfied by store.Service.
type Saver interface {
	Save(ctx context.Context, p store.Post) (store.Post, error)
}

// Orchestrator walks a local folder and ingests every supported image:
// upload, optional enrichment, save, then delete the source file. Files
// are processed in name order so an aborted run resumes where it
// stopped.
type Orchestrator struct {
	Blob     blob.Store
	Posts    Saver
	Enricher Enricher
	Dir      string

	SignedURLTTL   time.Duration
	PacingEnriched time.Duration
	PacingPlain    time.Duration

	Logger *slog.Logger
}

var supportedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Run ingests the folder. With enrichItems set, every image goes through
// AI enrichment and the first provider rate limit aborts the run with a
// populated StopReason; remaining files stay on disk for the next run.
func (o *Orchestrator) Run(ctx context.Context, enrichItems bool) (Report, error) {
	var report Report

	if err := o.Blob.BucketExists(ctx); err != nil {
		return report, fmt.Errorf("bulk run aborted: %w", err)
	}

	entries, err := os.ReadDir(o.Dir)
	if err != nil {
		return report, fmt.Errorf("failed to read ingest folder: %w", err)
	}

	o.Logger.Info("bulk_run_started",
		slog.String("dir", o.Dir),
		slog.Int("entries", len(entries)),
		slog.Bool("enrich", enrichItems))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := entry.Name()
		if entry.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(name))] {
			report.Skipped++
			continue
		}

		stop, err := o.processFile(ctx, name, enrichItems, &report)
		if err != nil {
			o.Logger.Warn("bulk_item_failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			report.Failed++
			continue
		}
		if stop {
			break
		}

		pause := o.PacingPlain
		if enrichItems {
			pause = o.PacingEnriched
		}
		if err := backoff.Sleep(ctx, pause); err != nil {
			return report, err
		}
	}

	o.Logger.Info("bulk_run_finished",
		slog.Int("success", report.Success),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.String("stop_reason", report.StopReason))
	return report, nil
}

// processFile ingests one image. It returns stop=true when the run must
// abort because a provider rate limit was hit.
func (o *Orchestrator) processFile(ctx context.Context, name string, enrichItems bool, report *Report) (bool, error) {
	path := filepath.Join(o.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := uuid.NewString() + "-" + name
	if err := o.Blob.Put(ctx, key, data, contentType); err != nil {
		return false, err
	}

	publicURL := o.Blob.PublicURL(key)
	signedURL, err := o.Blob.SignedURL(ctx, key, o.SignedURLTTL)
	if err != nil {
		return false, err
	}

	// Plain mode keeps the stripped filename as-is; title polish is the
	// enrichment path's job.
	post := store.Post{
		Title:    enrich.StripExt(name),
		ImageURL: publicURL,
		Date:     time.Now().Format("2006-01-02"),
	}

	if enrichItems {
		result, status, reason := o.Enricher.EnrichBulk(ctx, signedURL, name)
		switch status {
		case enrich.BulkRateLimited:
			report.StopReason = reason
			o.Logger.Warn("bulk_run_rate_limited",
				slog.String("file", name),
				slog.String("reason", reason))
			return true, nil
		case enrich.BulkFailed:
			return false, fmt.Errorf("enrichment failed: %s", reason)
		}
		post.Title = result.Title
		post.Tags = result.Tags
		post.AltText = result.AltText
	}

	if _, err := o.Posts.Save(ctx, post); err != nil {
		return false, err
	}

	// The source file is only a staging copy at this point; a failed
	// delete leaves a duplicate next run, nothing worse.
	if err := os.Remove(path); err != nil {
		o.Logger.Warn("bulk_source_not_removed",
			slog.String("file", name),
			slog.String("error", err.Error()))
	}

	report.Success++
	o.Logger.Info("bulk_item_ingested",
		slog.String("file", name),
		slog.String("title", post.Title))
	return false, nil
}
