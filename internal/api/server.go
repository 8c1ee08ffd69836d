// Package api exposes the HTTP surface: image upload, bulk ingestion,
// search, and a health probe.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/enrich"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/index"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/ingest"
)

// maxUploadBytes caps a single image upload at 20 MB.
const maxUploadBytes = 20 << 20

// Searcher runs ranked catalog queries. Satisfied by store.Service.
type Searcher interface {
	Search(ctx context.Context, query, mode string, limit int) ([]index.Hit, error)
}

// Ingestor runs the upload pipelines. Satisfied by ingest.Orchestrator.
type Ingestor interface {
	IngestSingle(ctx context.Context, data []byte, filename, contentType string) (ingest.SingleResult, error)
	Run(ctx context.Context, enrichItems bool) (ingest.Report, error)
}

// Server wires the HTTP handlers to the ingestion and search services.
type Server struct {
	ingestor Ingestor
	searcher Searcher
	logger   *slog.Logger
}

// NewServer builds the gin engine with all routes registered.
func NewServer(ing Ingestor, search Searcher, logger *slog.Logger) (*Server, *gin.Engine) {
	s := &Server{ingestor: ing, searcher: search, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/images/upload", s.handleUpload)
	r.POST("/images/bulk", s.handleBulk)
	r.GET("/search", s.handleSearch)
	r.GET("/healthz", s.handleHealth)

	return s, r
}

func (s *Server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	res, err := s.ingestor.IngestSingle(c.Request.Context(), data, header.Filename, contentType)
	if err != nil {
		s.renderUploadError(c, res, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       res.ID,
		"title":    res.Title,
		"imageURL": res.ImageURL,
		"llmTags":  res.Tags,
		"altText":  res.AltText,
	})
}

// renderUploadError maps pipeline failures to responses. Enrichment
// failures after a successful upload return 502 with the partial state
// so the client can show the image that did make it to storage.
func (s *Server) renderUploadError(c *gin.Context, res ingest.SingleResult, err error) {
	s.logger.Warn("upload_failed", slog.String("error", err.Error()))

	var stepErr *ingest.StepError
	step := ""
	if errors.As(err, &stepErr) {
		step = stepErr.Step
	}

	var enrichErr *enrich.Error
	if errors.As(err, &enrichErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "EnrichmentFailed",
			"detail":   enrichErr.Error(),
			"step":     step,
			"imageURL": res.ImageURL,
			"title":    res.Title,
		})
		return
	}

	switch {
	case errors.Is(err, ingest.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "EmptyPayload", "step": step})
	case errors.Is(err, ingest.ErrMissingBucket):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "MissingBucket", "step": step})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "UploadFailed", "step": step})
	}
}

func (s *Server) handleBulk(c *gin.Context) {
	enrichItems, _ := strconv.ParseBool(c.DefaultQuery("enrich", "false"))

	report, err := s.ingestor.Run(c.Request.Context(), enrichItems)
	if err != nil {
		s.logger.Error("bulk_run_failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	mode := c.DefaultQuery("mode", "llm")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	hits, err := s.searcher.Search(c.Request.Context(), query, mode, limit)
	if err != nil {
		s.logger.Error("search_failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query": query,
		"mode":  mode,
		"hits":  hits,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
