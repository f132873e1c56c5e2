// internal/middleware/middleware_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/utils"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(I18nMiddleware())
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"actor": utils.GetActorFromContext(c),
			"lang":  utils.GetLangFromContext(c),
		})
	})
	r.GET("/partners/:partner_id", chain...)
	return r
}

func get(r *gin.Engine, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPartnerScope(t *testing.T) {
	utils.SetJWTSecret("middleware-test")
	own := uuid.NewString()

	partnerToken, err := utils.GenerateJWT("user-1", utils.RolePartner, own, time.Hour)
	require.NoError(t, err)
	adminToken, err := utils.GenerateJWT("admin-1", utils.RoleAdmin, "", time.Hour)
	require.NoError(t, err)
	serviceToken, err := utils.GenerateJWT("svc", utils.RoleService, "", time.Hour)
	require.NoError(t, err)

	r := newEngine(AuthRequired(), PartnerScope("partner_id"))

	assert.Equal(t, http.StatusOK, get(r, "/partners/"+own, partnerToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/partners/"+uuid.NewString(), partnerToken, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/partners/"+uuid.NewString(), adminToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/partners/"+own, serviceToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/partners/"+own, "", nil).Code)
}

func TestExpiredToken(t *testing.T) {
	utils.SetJWTSecret("middleware-test")
	expired, err := utils.GenerateJWT("admin-1", utils.RoleAdmin, "", -time.Minute)
	require.NoError(t, err)

	r := newEngine(AuthRequired(), AdminRequired())
	assert.Equal(t, http.StatusUnauthorized, get(r, "/partners/x", expired, nil).Code)
}

func TestI18nMiddleware(t *testing.T) {
	r := newEngine()

	w := get(r, "/partners/x", "", map[string]string{"Accept-Language": "ko-KR,ko;q=0.9,en;q=0.8"})
	assert.Contains(t, w.Body.String(), `"lang":"ko"`)

	w = get(r, "/partners/x", "", map[string]string{"Accept-Language": "fr-FR"})
	assert.Contains(t, w.Body.String(), `"lang":"en"`)
	assert.Contains(t, w.Body.String(), `"actor":"anonymous"`)
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(0.001, 2))

	assert.Equal(t, http.StatusOK, get(r, "/partners/x", "", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/partners/x", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/partners/x", "", nil).Code)
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID(), RequestLogger())

	w := get(r, "/partners/x", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = get(r, "/partners/x", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
