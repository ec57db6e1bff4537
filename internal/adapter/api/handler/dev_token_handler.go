package handler

import (
	"github.com/labstack/echo/v4"

	"letschat/internal/domain/entity"
	"letschat/internal/domain/repository"
	"letschat/internal/infrastructure/firebase"
	"letschat/pkg/errors"
	"letschat/pkg/response"
)

// DevTokenHandler mints long-lived tokens for local development so the socket
// and REST surfaces can be exercised without a front-end session flow. Only
// routed outside production.
type DevTokenHandler struct {
	firebaseAuth *firebase.FirebaseAuthClient
	userRepo     repository.UserRepository
}

func NewDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient, userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth: firebaseAuth,
		userRepo:     userRepo,
	}
}

type devTokenRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// GenerateToken returns a token for the given user id, creating the profile
// document first if it does not exist yet.
func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()

	user, err := h.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, "NOT_FOUND") {
			return response.Error(c, err)
		}
		user = &entity.User{
			ID:       req.UserID,
			Email:    req.Email,
			Username: req.Username,
		}
		if user.Username == "" {
			user.Username = req.UserID
		}
		if _, err := h.firebaseAuth.CreateUser(ctx, user.ID, user.Email, user.Username); err != nil {
			return response.Error(c, err)
		}
		if err := h.userRepo.Create(ctx, user); err != nil {
			return response.Error(c, err)
		}
	}

	token, err := h.firebaseAuth.GenerateLongLivedToken(ctx, user.ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}
