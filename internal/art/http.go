package art

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"artspire/internal/constants"
	"artspire/internal/endpoints"
	"artspire/internal/logger"
	pkgerrors "artspire/pkg/errors"
	"artspire/pkg/middleware"
)

// Gateway exposes the RPC endpoints of the platform over HTTP.
type Gateway struct {
	client *endpoints.Client
	images *ImageService
	logger logger.Logger
}

func NewGateway(client *endpoints.Client, images *ImageService, log logger.Logger) *Gateway {
	return &Gateway{client: client, images: images, logger: log}
}

func (g *Gateway) handleError(c *gin.Context, err error) {
	g.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err))
}

func (g *Gateway) RegisterRoutes(router *gin.Engine) {
	router.GET("/blobs/*name", g.ServeBlob)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/users", g.LookupUsers)
		v1.GET("/images/url", g.ImageURL)
		v1.GET("/arts/:id/similar", g.SimilarArts)

		authed := v1.Group("", middleware.BearerAuth(g.client))
		{
			authed.GET("/me", g.Me)
			authed.POST("/images", g.UploadImage)
		}
	}
}

type UploadImageRequest struct {
	ImgBase64 string `json:"img_base64" binding:"required"`
	ImgType   string `json:"img_type" binding:"required"`
}

type UploadImageResponse struct {
	BlobName string `json:"blob_name"`
	ImgURL   string `json:"img_url"`
}

// Me godoc
// @Summary      Decoded claims of the bearer token
// @Tags         gateway
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /me [get]
func (g *Gateway) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Claims(c))
}

// LookupUsers godoc
// @Summary      Batch user lookup
// @Tags         gateway
// @Produce      json
// @Param        ids  query     string  true  "Comma separated user ids"
// @Success      200  {array}   endpoints.User
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      504  {object}  errors.ErrorResponse
// @Router       /users [get]
func (g *Gateway) LookupUsers(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		g.handleError(c, err)
		return
	}

	users, err := g.client.LookupUsers(c.Request.Context(), ids)
	if err != nil {
		g.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// UploadImage godoc
// @Summary      Store an image for the current user
// @Tags         gateway
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        image  body      UploadImageRequest  true  "Base64 image"
// @Success      201    {object}  UploadImageResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      502    {object}  errors.ErrorResponse
// @Router       /images [post]
func (g *Gateway) UploadImage(c *gin.Context) {
	var req UploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithCause(err)))
		return
	}

	owner := "anonymous"
	if sub, ok := middleware.Claims(c)["sub"].(float64); ok {
		owner = strconv.Itoa(int(sub))
	}
	blobName := fmt.Sprintf("arts/%s/%s.jpg", owner, uuid.NewString())

	ctx := c.Request.Context()
	name, status := g.images.Store(ctx, endpoints.ImageStoreRequest{
		ImgBase64: req.ImgBase64,
		ImgType:   req.ImgType,
		BlobName:  blobName,
	})
	if err := endpoints.StatusError(status); err != nil {
		g.handleError(c, err)
		return
	}

	url, _ := g.images.URL(ctx, name)
	c.JSON(http.StatusCreated, UploadImageResponse{BlobName: name, ImgURL: url})
}

// ImageURL godoc
// @Summary      Signed URL for a stored image
// @Tags         gateway
// @Produce      json
// @Param        blob_name  query     string  true  "Blob name"
// @Success      200        {object}  endpoints.ImageURLResponse
// @Failure      400        {object}  errors.ErrorResponse
// @Router       /images/url [get]
func (g *Gateway) ImageURL(c *gin.Context) {
	url, err := g.client.ImageURL(c.Request.Context(), c.Query("blob_name"))
	if err != nil {
		g.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, endpoints.ImageURLResponse{Status: endpoints.ImageStatusSuccess, ImgURL: &url})
}

// SimilarArts godoc
// @Summary      Arts similar to the given one
// @Tags         gateway
// @Produce      json
// @Param        id   path      int  true  "Art ID"
// @Success      200  {array}   int
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      504  {object}  errors.ErrorResponse
// @Router       /arts/{id}/similar [get]
func (g *Gateway) SimilarArts(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		g.handleError(c, pkgerrors.ErrValidation.WithDetail("message", "art id must be an integer"))
		return
	}

	ids, err := g.client.SimilarArts(c.Request.Context(), id)
	if err != nil {
		g.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

// ServeBlob godoc
// @Summary      Download a blob through a signed URL
// @Tags         gateway
// @Produce      image/jpeg
// @Param        name       path   string  true  "Blob name"
// @Param        expires    query  int     true  "Expiry unix time"
// @Param        signature  query  string  true  "URL signature"
// @Success      200
// @Failure      403  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /blobs/{name} [get]
func (g *Gateway) ServeBlob(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	blob, err := g.images.Open(c.Request.Context(), name, c.Query("expires"), c.Query("signature"))
	switch {
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrURLExpired):
		g.handleError(c, pkgerrors.ErrForbidden.WithCause(err))
		return
	case errors.Is(err, ErrBlobNotFound):
		g.handleError(c, pkgerrors.ErrNotFound.WithDetail("message", "blob not found"))
		return
	case err != nil:
		g.handleError(c, pkgerrors.ErrInternal.WithCause(err))
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = constants.MimeJPEG
	}
	c.Data(http.StatusOK, contentType, blob.Data)
}

func parseIDs(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return []int{}, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, pkgerrors.ErrValidation.WithDetail("message", fmt.Sprintf("invalid id %q", p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
