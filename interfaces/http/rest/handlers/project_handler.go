package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	"meterhub-backend/pkg/auth"
	"meterhub-backend/pkg/common"
	apperrors "meterhub-backend/pkg/errors"
	"meterhub-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// ProjectHandler handles project-related HTTP requests
type ProjectHandler struct {
	projects  ports.ProjectRepository
	assets    ports.AssetClient
	users     ports.UserRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(
	projects ports.ProjectRepository,
	assets ports.AssetClient,
	users ports.UserRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		projects:  projects,
		assets:    assets,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateProjectRequest represents the request body for creating a project
type CreateProjectRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url,max=2000"`
}

// UpdateProjectRequest represents the request body for updating a project
type UpdateProjectRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url,max=2000"`
}

// ReviewProjectRequest carries the review decision for a project
type ReviewProjectRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// ProjectResponse is the wire shape of a project
type ProjectResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	Status   string `json:"status"`
	AssetID  string `json:"asset_id,omitempty"`
	Created  int64  `json:"created"`
}

func toProjectResponse(p *entities.Project) ProjectResponse {
	return ProjectResponse{
		ID:       p.ID,
		UserID:   p.UserID,
		Name:     p.Name,
		ImageURL: p.ImageURL,
		Status:   p.Status,
		AssetID:  p.AssetID,
		Created:  p.Created,
	}
}

// CreateProject handles POST /projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
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

	project := entities.NewProject(userCtx.UserID, req.Name, req.ImageURL)
	if err := h.projects.Create(r.Context(), project); err != nil {
		h.logger.Error("Failed to create project", zap.Error(err))
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("Project created",
		zap.String("projectId", project.ID),
		zap.String("userId", userCtx.UserID),
	)
	common.RespondJSON(w, http.StatusCreated, toProjectResponse(project))
}

// GetProject handles GET /projects/{projectID}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, toProjectResponse(project))
}

// ListProjects handles GET /projects, returning the caller's projects.
// Admins receive all projects across users.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	opts := common.ExtractListOptions(r)

	var page ports.Page[*entities.Project]
	if userCtx.IsAdmin && r.URL.Query().Get("scope") == "all" {
		page, err = h.projects.ListAll(r.Context(), opts)
	} else {
		page, err = h.projects.ListByUser(r.Context(), userCtx.UserID, opts)
	}
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	items := make([]ProjectResponse, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, toProjectResponse(p))
	}
	common.RespondJSON(w, http.StatusOK, common.PageResponse{Items: items, NextToken: page.NextToken})
}

// UpdateProject handles PUT /projects/{projectID}
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	project, _, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	if err := h.projects.UpdateMeta(r.Context(), project.ID, req.Name, req.ImageURL); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": project.ID})
}

// ReviewProject handles POST /projects/{projectID}/review (admin only).
// Only projects still in the created state can be approved or rejected.
func (h *ProjectHandler) ReviewProject(w http.ResponseWriter, r *http.Request) {
	var req ReviewProjectRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, string(apperrors.ErrorTypeValidation), err.Error())
		return
	}

	projectID := chi.URLParam(r, "projectID")
	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !project.Reviewable() {
		common.RespondError(w, http.StatusConflict, string(apperrors.ErrorTypeConflict), "project has already been reviewed")
		return
	}

	if err := h.projects.UpdateStatus(r.Context(), projectID, req.Status); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.publisher.Publish(r.Context(), "project.reviewed", map[string]string{
		"projectId": projectID,
		"status":    req.Status,
	}); err != nil {
		h.logger.Warn("Failed to publish review event", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"id": projectID, "status": req.Status})
}

// MintProjectAsset handles POST /projects/{projectID}/asset. The project
// must be approved and the owner must have a connected wallet.
func (h *ProjectHandler) MintProjectAsset(w http.ResponseWriter, r *http.Request) {
	project, userCtx, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	if project.Status != keys.StatusApproved {
		common.RespondError(w, http.StatusConflict, string(apperrors.ErrorTypeConflict), "only approved projects can be minted")
		return
	}
	if project.AssetID != "" {
		common.RespondError(w, http.StatusConflict, string(apperrors.ErrorTypeConflict), "project already has an asset")
		return
	}

	owner, err := h.users.GetByID(r.Context(), project.UserID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if owner.Wallet == "" {
		common.RespondError(w, http.StatusConflict, string(apperrors.ErrorTypeConflict), "owner has no connected wallet")
		return
	}

	assetID, err := h.assets.MintAsset(r.Context(), project.ID, owner.Wallet)
	if err != nil {
		h.logger.Error("Asset mint failed", zap.Error(err), zap.String("projectId", project.ID))
		common.RespondAppError(w, err)
		return
	}

	if err := h.projects.SetAssetID(r.Context(), project.ID, assetID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.publisher.Publish(r.Context(), "project.asset.minted", map[string]string{
		"projectId": project.ID,
		"assetId":   assetID,
	}); err != nil {
		h.logger.Warn("Failed to publish mint event", zap.Error(err))
	}

	h.logger.Info("Project asset minted",
		zap.String("projectId", project.ID),
		zap.String("assetId", assetID),
		zap.String("userId", userCtx.UserID),
	)
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": project.ID, "asset_id": assetID})
}

// DeleteProject handles DELETE /projects/{projectID}. By default the
// project is archived; admins may pass ?permanent=true.
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project, userCtx, ok := h.fetchOwned(w, r)
	if !ok {
		return
	}

	permanent := r.URL.Query().Get("permanent") == "true"
	if permanent && !userCtx.IsAdmin {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "permanent deletion requires admin access")
		return
	}

	if err := h.projects.Delete(r.Context(), project.ID, permanent); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": project.ID})
}

// fetchOwned loads the addressed project and enforces ownership for
// non-admin callers.
func (h *ProjectHandler) fetchOwned(w http.ResponseWriter, r *http.Request) (*entities.Project, auth.UserContext, bool) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return nil, auth.UserContext{}, false
	}

	projectID := chi.URLParam(r, "projectID")
	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, userCtx, false
	}

	if !userCtx.IsAdmin && project.UserID != userCtx.UserID {
		common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "project belongs to another user")
		return nil, userCtx, false
	}
	return project, userCtx, true
}
