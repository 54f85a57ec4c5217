package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/pkg/auth"
	"meterhub-backend/pkg/common"
	apperrors "meterhub-backend/pkg/errors"
	"meterhub-backend/pkg/utils"
)

// Batches above this size cannot fit a single transaction together with
// the counter updates and bucket items.
const maxBatchSize = 25

// ReadingHandler handles reading ingestion and queries
type ReadingHandler struct {
	readings ports.ReadingRepository
	trackers ports.TrackerRepository
	logger   *zap.Logger
}

// NewReadingHandler creates a new reading handler
func NewReadingHandler(readings ports.ReadingRepository, trackers ports.TrackerRepository, logger *zap.Logger) *ReadingHandler {
	return &ReadingHandler{readings: readings, trackers: trackers, logger: logger}
}

// ReadingInputRequest is one element of an ingestion batch
type ReadingInputRequest struct {
	ID    string   `json:"id" validate:"required,min=1,max=100"`
	Type  string   `json:"type" validate:"required"`
	Cycle string   `json:"cycle,omitempty"`
	Value *float64 `json:"value,omitempty"`
	Start *int64   `json:"start,omitempty"`
	End   *int64   `json:"end,omitempty"`
	IV    string   `json:"iv,omitempty" validate:"omitempty,max=100"`
}

// IngestReadingsRequest represents the request body for batch ingestion
type IngestReadingsRequest struct {
	Readings []ReadingInputRequest `json:"readings" validate:"required,max=25"`
}

// ReadingResponse is the wire shape of a persisted reading
type ReadingResponse struct {
	ID        string   `json:"id"`
	TrackerID string   `json:"tracker_id"`
	Type      string   `json:"type"`
	Cycle     string   `json:"cycle,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Start     *int64   `json:"start,omitempty"`
	End       *int64   `json:"end,omitempty"`
	IV        string   `json:"iv,omitempty"`
	Status    string   `json:"status"`
	Created   int64    `json:"created"`
}

func toReadingResponse(r *entities.Reading) ReadingResponse {
	return ReadingResponse{
		ID:        r.ID,
		TrackerID: r.TrackerID,
		Type:      r.Type,
		Cycle:     r.Cycle,
		Value:     r.Value,
		Start:     r.Start,
		End:       r.End,
		IV:        r.IV,
		Status:    r.Status,
		Created:   r.Created,
	}
}

// IngestReadings handles POST /trackers/{trackerID}/readings. The batch is
// applied atomically; malformed elements are dropped without failing the
// rest. Ownership of the tracker is enforced inside the transaction.
func (h *ReadingHandler) IngestReadings(w http.ResponseWriter, r *http.Request) {
	var req IngestReadingsRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}
	if len(req.Readings) > maxBatchSize {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "batch exceeds maximum size")
		return
	}

	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	trackerID := chi.URLParam(r, "trackerID")
	tracker, err := h.trackers.GetByID(r.Context(), trackerID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	inputs := make([]entities.ReadingInput, 0, len(req.Readings))
	for _, in := range req.Readings {
		inputs = append(inputs, entities.ReadingInput{
			ID:    in.ID,
			Type:  in.Type,
			Cycle: in.Cycle,
			Value: in.Value,
			Start: in.Start,
			End:   in.End,
			IV:    in.IV,
		})
	}

	if err := h.readings.Ingest(r.Context(), trackerID, tracker.PlaceID, userCtx.UserID, userCtx.IsAdmin, inputs); err != nil {
		h.logger.Error("Ingestion failed",
			zap.Error(err),
			zap.String("trackerId", trackerID),
			zap.Int("batchSize", len(inputs)),
		)
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"tracker_id": trackerID,
		"submitted":  len(inputs),
	})
}

// GetReading handles GET /readings/{readingID}
func (h *ReadingHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	readingID := chi.URLParam(r, "readingID")
	reading, err := h.readings.GetByID(r.Context(), readingID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	if !userCtx.IsAdmin && reading.OwnerID != userCtx.UserID {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "reading belongs to another user")
		return
	}
	common.RespondJSON(w, http.StatusOK, toReadingResponse(reading))
}

// ListReadings handles GET /trackers/{trackerID}/readings
func (h *ReadingHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	trackerID := chi.URLParam(r, "trackerID")
	tracker, err := h.trackers.GetByID(r.Context(), trackerID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !userCtx.IsAdmin && tracker.OwnerID != userCtx.UserID {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "tracker belongs to another user")
		return
	}

	opts := common.ExtractListOptions(r)
	page, err := h.readings.ListByTracker(r.Context(), trackerID, opts)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	items := make([]ReadingResponse, 0, len(page.Items))
	for _, rd := range page.Items {
		items = append(items, toReadingResponse(rd))
	}
	common.RespondJSON(w, http.StatusOK, common.PageResponse{Items: items, NextToken: page.NextToken})
}
