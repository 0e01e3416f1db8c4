package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/logger"
)

func newTestRouter(t *testing.T, repo *memRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(newTestService(t, repo, &stubImages{name: "profiles/1/img"}), logger.NopLogger()).RegisterRoutes(router)
	return router
}

func doJSON(router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_RegisterLoginMe(t *testing.T) {
	router := newTestRouter(t, newMemRepository())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{Username: "sugar", Email: "sugar@example.com", Password: "secret7"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "sugar", Password: "secret7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tokens TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))

	w = doJSON(router, http.MethodGet, "/api/v1/auth/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"sugar"`)
	assert.NotContains(t, w.Body.String(), "password")

	w = doJSON(router, http.MethodPut, "/api/v1/auth/me/profile-image", tokens.AccessToken, ProfileImageRequest{ImgBase64: "aGk=", ImgType: "image/png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"profile_image":"profiles/1/img"}`, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Errors(t *testing.T) {
	router := newTestRouter(t, newMemRepository())

	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "ghost", Password: "secret7"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/auth/me", "bad-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
