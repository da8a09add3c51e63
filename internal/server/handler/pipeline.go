package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/pipeline"
)

// PipelineStats exposes the ingest counters.
type PipelineStats interface {
	Stats() pipeline.Stats
}

// ArchiveRunner runs one archive pass on demand.
type ArchiveRunner interface {
	Run(ctx context.Context) (pipeline.ArchiveReport, error)
}

// BatchReader reads raw event batches back from the archive.
type BatchReader interface {
	ListDay(ctx context.Context, at time.Time) ([]domain.BlobInfo, error)
	ReadBatch(ctx context.Context, path string) ([]nostr.Event, error)
}

// PipelineHandler serves ingest pipeline endpoints. Any collaborator may be
// nil when the process runs without ingestion or object storage.
type PipelineHandler struct {
	stats    PipelineStats
	archiver ArchiveRunner
	batches  BatchReader
	logger   *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(stats PipelineStats, archiver ArchiveRunner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{stats: stats, archiver: archiver, logger: logger}
}

// WithBatchReader enables the archived batch endpoints.
func (h *PipelineHandler) WithBatchReader(r BatchReader) *PipelineHandler {
	h.batches = r
	return h
}

// GetStats returns the orchestrator counters.
// GET /api/pipeline/stats
func (h *PipelineHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not running")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// TriggerArchive runs the retention archiver now and returns its report.
// POST /api/pipeline/archive
func (h *PipelineHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver is not configured")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: archive run requested")
	report, err := h.archiver.Run(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "run archive", err)
		return
	}
	status := http.StatusOK
	if report.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// ListBatches lists the raw event batches archived on one UTC day.
// GET /api/pipeline/batches?date=2026-01-02
func (h *PipelineHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "event archive is not configured")
		return
	}
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	infos, err := h.batches.ListDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, h.logger, "list event batches", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "batches": infos})
}

// GetBatch returns the events stored in one archived batch.
// GET /api/pipeline/batches/{path...}
func (h *PipelineHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "event archive is not configured")
		return
	}
	path := pathParam(r, "path")
	events, err := h.batches.ReadBatch(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, "read event batch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "events": events})
}
