package handler

import (
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/updown/internal/blob/s3"
	"github.com/alanyoungcy/updown/internal/domain"
)

// ArchiveHandler serves archived rounds from object storage.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// GetArchivedRound streams the archived JSON of one epoch.
// GET /api/v1/archive/rounds/{epoch}
func (h *ArchiveHandler) GetArchivedRound(w http.ResponseWriter, r *http.Request) {
	epoch, ok := pathInt(w, r, "epoch")
	if !ok {
		return
	}
	body, err := h.blobs.Get(r.Context(), s3blob.RoundPath(epoch))
	if err != nil {
		writeEngineError(w, r, h.logger, "get archived round", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.Int64("epoch", epoch),
			slog.String("error", err.Error()),
		)
	}
}

// archivedRound is one entry of the archive listing.
type archivedRound struct {
	Epoch      int64     `json:"epoch"`
	Size       int64     `json:"size"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ListArchivedRounds lists the archived epochs in ascending order. Objects
// under the prefix that are not round archives are skipped.
// GET /api/v1/archive/rounds
func (h *ArchiveHandler) ListArchivedRounds(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), s3blob.RoundPrefix)
	if err != nil {
		writeEngineError(w, r, h.logger, "list archived rounds", err)
		return
	}
	rounds := make([]archivedRound, 0, len(infos))
	for _, info := range infos {
		epoch, ok := s3blob.EpochFromPath(info.Path)
		if !ok {
			continue
		}
		rounds = append(rounds, archivedRound{Epoch: epoch, Size: info.Size, ArchivedAt: info.LastModified})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Epoch < rounds[j].Epoch })
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds, "count": len(rounds)})
}
