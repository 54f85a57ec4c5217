package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/pkg/auth"
	"meterhub-backend/pkg/common"
	apperrors "meterhub-backend/pkg/errors"
	"meterhub-backend/pkg/utils"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users  ports.UserRepository
	logger *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users ports.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// SetWalletRequest carries the wallet address to connect
type SetWalletRequest struct {
	Wallet string `json:"wallet" validate:"required,min=1,max=200"`
}

// UserResponse is the wire shape of a user
type UserResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Wallet  string `json:"wallet,omitempty"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
}

func toUserResponse(u *entities.User) UserResponse {
	return UserResponse{
		ID:      u.ID,
		Email:   u.Email,
		Wallet:  u.Wallet,
		Status:  u.Status,
		Created: u.Created,
	}
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), userCtx.UserID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, toUserResponse(user))
}

// SetWallet handles PUT /users/me/wallet
func (h *UserHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	var req SetWalletRequest
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

	if err := h.users.SetWallet(r.Context(), userCtx.UserID, req.Wallet); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("Wallet connected", zap.String("userId", userCtx.UserID))
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": userCtx.UserID})
}
