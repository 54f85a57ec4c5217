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

// TrackerHandler handles tracker-related HTTP requests
type TrackerHandler struct {
	trackers ports.TrackerRepository
	utility  ports.UtilityClient
	logger   *zap.Logger
}

// NewTrackerHandler creates a new tracker handler
func NewTrackerHandler(trackers ports.TrackerRepository, utility ports.UtilityClient, logger *zap.Logger) *TrackerHandler {
	return &TrackerHandler{trackers: trackers, utility: utility, logger: logger}
}

// CreateTrackerRequest represents the request body for creating a tracker
type CreateTrackerRequest struct {
	Type string `json:"type" validate:"required,oneof=gas-meter electricity-meter"`
}

// SetUtilityRequest carries the utility account details for a tracker
type SetUtilityRequest struct {
	Provider      string `json:"provider" validate:"required,min=1,max=100"`
	AccountNumber string `json:"account_number" validate:"required,min=1,max=100"`
	MeterNumber   string `json:"meter_number" validate:"required,min=1,max=100"`
}

// TrackerResponse is the wire shape of a tracker
type TrackerResponse struct {
	ID      string `json:"id"`
	PlaceID string `json:"place_id"`
	OwnerID string `json:"owner_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Created int64  `json:"created"`

	Utility *UtilityResponse `json:"utility,omitempty"`

	ConsumptionReadingCount int64              `json:"consumption_reading_count"`
	AbsoluteReadingCount    int64              `json:"absolute_reading_count"`
	CycleCounts             map[string]int64   `json:"cycle_counts,omitempty"`
	CycleTotals             map[string]float64 `json:"cycle_totals,omitempty"`
}

// UtilityResponse is the wire shape of a linked utility account
type UtilityResponse struct {
	Provider      string `json:"provider"`
	AccountNumber string `json:"account_number"`
	MeterNumber   string `json:"meter_number"`
}

func toTrackerResponse(t *entities.Tracker) TrackerResponse {
	resp := TrackerResponse{
		ID:                      t.ID,
		PlaceID:                 t.PlaceID,
		OwnerID:                 t.OwnerID,
		Type:                    t.Type,
		Status:                  t.Status,
		Created:                 t.Created,
		ConsumptionReadingCount: t.ConsumptionReadingCount,
		AbsoluteReadingCount:    t.AbsoluteReadingCount,
		CycleCounts:             t.CycleCounts,
		CycleTotals:             t.CycleTotals,
	}
	if t.Utility != nil {
		resp.Utility = &UtilityResponse{
			Provider:      t.Utility.Provider,
			AccountNumber: t.Utility.AccountNumber,
			MeterNumber:   t.Utility.MeterNumber,
		}
	}
	return resp
}

// CreateTracker handles POST /places/{placeID}/trackers. Ownership of the
// place is enforced inside the creation transaction.
func (h *TrackerHandler) CreateTracker(w http.ResponseWriter, r *http.Request) {
	var req CreateTrackerRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	placeID := chi.URLParam(r, "placeID")
	tracker := entities.NewTracker(placeID, userCtx.UserID, req.Type)

	if err := h.trackers.Create(r.Context(), tracker, userCtx.UserID, userCtx.IsAdmin); err != nil {
		h.logger.Error("Failed to create tracker",
			zap.Error(err),
			zap.String("placeId", placeID),
		)
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("Tracker created",
		zap.String("trackerId", tracker.ID),
		zap.String("placeId", placeID),
		zap.String("type", tracker.Type),
	)
	common.RespondJSON(w, http.StatusCreated, toTrackerResponse(tracker))
}

// GetTracker handles GET /trackers/{trackerID}
func (h *TrackerHandler) GetTracker(w http.ResponseWriter, r *http.Request) {
	tracker, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, toTrackerResponse(tracker))
}

// ListTrackers handles GET /places/{placeID}/trackers
func (h *TrackerHandler) ListTrackers(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.GetUserFromContext(r.Context()); err != nil {
		common.RespondAppError(w, err)
		return
	}

	placeID := chi.URLParam(r, "placeID")
	opts := common.ExtractListOptions(r)

	page, err := h.trackers.ListByPlace(r.Context(), placeID, opts)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	items := make([]TrackerResponse, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, toTrackerResponse(t))
	}
	common.RespondJSON(w, http.StatusOK, common.PageResponse{Items: items, NextToken: page.NextToken})
}

// SetUtility handles PUT /trackers/{trackerID}/utility. The account is
// verified with the provider gateway before being linked.
func (h *TrackerHandler) SetUtility(w http.ResponseWriter, r *http.Request) {
	var req SetUtilityRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	tracker, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	valid, err := h.utility.VerifyAccount(r.Context(), req.Provider, req.AccountNumber)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !valid {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "utility account could not be verified")
		return
	}

	account := entities.UtilityAccount{
		Provider:      req.Provider,
		AccountNumber: req.AccountNumber,
		MeterNumber:   req.MeterNumber,
	}
	if err := h.trackers.SetUtility(r.Context(), tracker.ID, account); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": tracker.ID})
}

// RemoveUtility handles DELETE /trackers/{trackerID}/utility
func (h *TrackerHandler) RemoveUtility(w http.ResponseWriter, r *http.Request) {
	tracker, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	if err := h.trackers.RemoveUtility(r.Context(), tracker.ID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": tracker.ID})
}

// DeleteTracker handles DELETE /trackers/{trackerID}. Archives by default;
// admins may pass ?permanent=true.
func (h *TrackerHandler) DeleteTracker(w http.ResponseWriter, r *http.Request) {
	tracker, userCtx, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	permanent := r.URL.Query().Get("permanent") == "true"
	if permanent && !userCtx.IsAdmin {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "permanent deletion requires admin access")
		return
	}

	if err := h.trackers.Delete(r.Context(), tracker.ID, permanent); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": tracker.ID})
}

func (h *TrackerHandler) fetchOwned(w http.ResponseWriter, r *http.Request) (*entities.Tracker, auth.UserContext, bool) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return nil, auth.UserContext{}, false
	}

	trackerID := chi.URLParam(r, "trackerID")
	tracker, err := h.trackers.GetByID(r.Context(), trackerID)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, userCtx, false
	}

	if !userCtx.IsAdmin && tracker.OwnerID != userCtx.UserID {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "tracker belongs to another user")
		return nil, userCtx, false
	}
	return tracker, userCtx, true
}
