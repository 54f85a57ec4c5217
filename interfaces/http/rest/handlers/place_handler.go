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

// PlaceHandler handles place-related HTTP requests
type PlaceHandler struct {
	places ports.PlaceRepository
	logger *zap.Logger
}

// NewPlaceHandler creates a new place handler
func NewPlaceHandler(places ports.PlaceRepository, logger *zap.Logger) *PlaceHandler {
	return &PlaceHandler{places: places, logger: logger}
}

// CreatePlaceRequest represents the request body for creating a place
type CreatePlaceRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	Position string `json:"position,omitempty" validate:"omitempty,max=100"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url,max=2000"`
}

// UpdatePlaceRequest represents the request body for updating a place
type UpdatePlaceRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url,max=2000"`
}

// ReviewPlaceRequest carries the review decision for a place
type ReviewPlaceRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// PlaceResponse is the wire shape of a place
type PlaceResponse struct {
	ID                      string `json:"id"`
	UserID                  string `json:"user_id"`
	Name                    string `json:"name"`
	Position                string `json:"position,omitempty"`
	ImageURL                string `json:"image_url,omitempty"`
	Status                  string `json:"status"`
	Created                 int64  `json:"created"`
	ConsumptionReadingCount int64  `json:"consumption_reading_count"`
	AbsoluteReadingCount    int64  `json:"absolute_reading_count"`
}

func toPlaceResponse(p *entities.Place) PlaceResponse {
	return PlaceResponse{
		ID:                      p.ID,
		UserID:                  p.UserID,
		Name:                    p.Name,
		Position:                p.Position,
		ImageURL:                p.ImageURL,
		Status:                  p.Status,
		Created:                 p.Created,
		ConsumptionReadingCount: p.ConsumptionReadingCount,
		AbsoluteReadingCount:    p.AbsoluteReadingCount,
	}
}

// CreatePlace handles POST /places
func (h *PlaceHandler) CreatePlace(w http.ResponseWriter, r *http.Request) {
	var req CreatePlaceRequest
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

	place := entities.NewPlace(userCtx.UserID, req.Name, req.Position, req.ImageURL)
	if err := h.places.Create(r.Context(), place); err != nil {
		h.logger.Error("Failed to create place", zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("Place created",
		zap.String("placeId", place.ID),
		zap.String("userId", userCtx.UserID),
	)
	common.RespondJSON(w, http.StatusCreated, toPlaceResponse(place))
}

// GetPlace handles GET /places/{placeID}
func (h *PlaceHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	place, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, toPlaceResponse(place))
}

// ListPlaces handles GET /places, returning the caller's places. Admins
// may pass ?scope=all to list across users.
func (h *PlaceHandler) ListPlaces(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	opts := common.ExtractListOptions(r)

	var page ports.Page[*entities.Place]
	if userCtx.IsAdmin && r.URL.Query().Get("scope") == "all" {
		page, err = h.places.ListAll(r.Context(), opts)
	} else {
		page, err = h.places.ListByUser(r.Context(), userCtx.UserID, opts)
	}
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	items := make([]PlaceResponse, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, toPlaceResponse(p))
	}
	common.RespondJSON(w, http.StatusOK, common.PageResponse{Items: items, NextToken: page.NextToken})
}

// UpdatePlace handles PUT /places/{placeID}
func (h *PlaceHandler) UpdatePlace(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlaceRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	place, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	if err := h.places.UpdateMeta(r.Context(), place.ID, req.Name, req.ImageURL); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": place.ID})
}

// ReviewPlace handles POST /places/{placeID}/review (admin only).
func (h *PlaceHandler) ReviewPlace(w http.ResponseWriter, r *http.Request) {
	var req ReviewPlaceRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	placeID := chi.URLParam(r, "placeID")
	if err := h.places.UpdateStatus(r.Context(), placeID, req.Status); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": placeID, "status": req.Status})
}

// DeletePlace handles DELETE /places/{placeID}. Archives by default;
// admins may pass ?permanent=true.
func (h *PlaceHandler) DeletePlace(w http.ResponseWriter, r *http.Request) {
	place, userCtx, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	permanent := r.URL.Query().Get("permanent") == "true"
	if permanent && !userCtx.IsAdmin {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "permanent deletion requires admin access")
		return
	}

	if err := h.places.Delete(r.Context(), place.ID, permanent); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": place.ID})
}

func (h *PlaceHandler) fetchOwned(w http.ResponseWriter, r *http.Request) (*entities.Place, auth.UserContext, bool) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return nil, auth.UserContext{}, false
	}

	placeID := chi.URLParam(r, "placeID")
	place, err := h.places.GetByID(r.Context(), placeID)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, userCtx, false
	}

	if !userCtx.IsAdmin && place.UserID != userCtx.UserID {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "place belongs to another user")
		return nil, userCtx, false
	}
	return place, userCtx, true
}
