package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"artspire/internal/logger"
	"artspire/pkg/errors"
	"artspire/pkg/middleware"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1/auth")
	{
		v1.POST("/register", h.Register)
		v1.POST("/login", h.Login)
		v1.POST("/refresh", h.Refresh)

		me := v1.Group("/me", middleware.BearerAuth(h.service))
		{
			me.GET("", h.Me)
			me.PUT("/profile-image", h.UpdateProfileImage)
		}
	}
}

// Register godoc
// @Summary      Register a user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        user  body      RegisterRequest  true  "Account data"
// @Success      201   {object}  RegisterResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{ID: user.ID})
}

// Login godoc
// @Summary      Issue an access and refresh token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body      LoginRequest  true  "Credentials"
// @Success      200          {object}  TokenResponse
// @Failure      401          {object}  errors.ErrorResponse
// @Failure      403          {object}  errors.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	tokens, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Refresh godoc
// @Summary      Exchange a refresh token for an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token  body      RefreshRequest  true  "Refresh token"
// @Success      200    {object}  TokenResponse
// @Failure      401    {object}  errors.ErrorResponse
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Me godoc
// @Summary      Current user profile
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  User
// @Failure      401  {object}  errors.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	id, ok := Subject(middleware.Claims(c))
	if !ok {
		h.handleError(c, errors.ErrUnauthorized.WithMessage("invalid subject"))
		return
	}

	user, err := h.service.Me(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfileImage godoc
// @Summary      Replace the current user's profile image
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        image  body      ProfileImageRequest  true  "Base64 image"
// @Success      200    {object}  map[string]string
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      503    {object}  errors.ErrorResponse
// @Router       /auth/me/profile-image [put]
func (h *Handler) UpdateProfileImage(c *gin.Context) {
	id, ok := Subject(middleware.Claims(c))
	if !ok {
		h.handleError(c, errors.ErrUnauthorized.WithMessage("invalid subject"))
		return
	}

	var req ProfileImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	blobName, err := h.service.UpdateProfileImage(c.Request.Context(), id, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile_image": blobName})
}
