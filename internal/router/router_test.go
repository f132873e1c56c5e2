// internal/router/router_test.go
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/repository/memory"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type RouterTestSuite struct {
	suite.Suite
	engine       *gin.Engine
	adminToken   string
	serviceToken string

	stopQueue context.CancelFunc
	queueDone chan struct{}
}

func (suite *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("router-test-secret")

	var err error
	suite.adminToken, err = utils.GenerateJWT("admin-1", utils.RoleAdmin, "", time.Hour)
	require.NoError(suite.T(), err)
	suite.serviceToken, err = utils.GenerateJWT("order-service", utils.RoleService, "", time.Hour)
	require.NoError(suite.T(), err)
}

func (suite *RouterTestSuite) SetupTest() {
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Attribution: config.AttributionConfig{
			Model:         "last_click",
			Window:        720 * time.Hour,
			DedupWindow:   30 * time.Minute,
			VisitorCookie: "pe_vid",
			CookieMaxAge:  3600,
		},
		Links: config.LinksConfig{
			BaseURL:             "https://go.test/l/",
			CodeLength:          8,
			MaxRetries:          3,
			BlockedProductTypes: []string{"alcohol"},
		},
		Commission: config.CommissionConfig{
			HoldPeriod:      14 * 24 * time.Hour,
			RetryAttempts:   3,
			RetryBaseDelay:  time.Millisecond,
			DefaultCurrency: "KRW",
		},
		Settlement: config.SettlementConfig{LockTTL: time.Second},
	}

	store := memory.NewStore()
	audit := services.NewAuditService(store)
	notifier := services.NewNotificationService(config.EmailConfig{})
	fingerprints := services.NewFingerprinter("router-test")
	links := services.NewLinkService(store, cfg.Links, audit)
	clicks := services.NewClickService(store, links, nil, cfg.Attribution.DedupWindow)
	queue := services.NewClickQueue(clicks, 16, 1)
	commissions := services.NewCommissionService(store, audit, nil, cfg.Commission)
	storage, err := services.NewStorageService(config.AWSConfig{ExportPrefix: "settlements/", LocalExportDir: suite.T().TempDir()})
	require.NoError(suite.T(), err)

	suite.engine = Initialize(Services{
		Partners:     services.NewPartnerService(store, audit),
		Catalog:      services.NewCatalogService(store),
		Links:        links,
		Clicks:       clicks,
		ClickQueue:   queue,
		Fingerprints: fingerprints,
		Attribution:  services.NewAttributionService(store, links, commissions, fingerprints, audit, cfg.Attribution, "KRW"),
		Commissions:  commissions,
		Policies:     services.NewPolicyService(store, audit, notifier, services.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}),
		Settlements:  services.NewSettlementService(store, nil, audit, cfg.Settlement, "KRW", services.SettlementDeps{Storage: storage}),
		Audit:        audit,
	}, cfg)

	var queueCtx context.Context
	queueCtx, suite.stopQueue = context.WithCancel(context.Background())
	suite.queueDone = make(chan struct{})
	go func() {
		defer close(suite.queueDone)
		_ = queue.Run(queueCtx)
	}()
}

func (suite *RouterTestSuite) TearDownTest() {
	suite.drainQueue()
}

func (suite *RouterTestSuite) drainQueue() {
	if suite.stopQueue == nil {
		return
	}
	suite.stopQueue()
	<-suite.queueDone
	suite.stopQueue = nil
}

func (suite *RouterTestSuite) perform(method, path, token string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(suite.T(), err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	suite.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	apiErr, ok := body["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return apiErr["code"].(string)
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	data, ok := decode(t, w)["data"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return data
}

func listOf(t *testing.T, w *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	data, ok := decode(t, w)["data"].([]interface{})
	require.True(t, ok, w.Body.String())
	return data
}

// activePartnerWithLink registers and approves a partner and gives it a link
// to a catalog product. It returns the partner id and the link's short code.
func (suite *RouterTestSuite) activePartnerWithLink(name string) (string, string) {
	t := suite.T()

	w := suite.perform(http.MethodPost, "/v1/admin/partners", suite.adminToken, gin.H{
		"name":  name,
		"email": name + "@partners.test",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	partnerID := dataOf(t, w)["id"].(string)

	w = suite.perform(http.MethodPost, "/v1/admin/partners/"+partnerID+"/approve", suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = suite.perform(http.MethodPut, "/v1/admin/catalog", suite.adminToken, gin.H{
		"target_type":  "product",
		"target_id":    "sku-" + name,
		"title":        "Serum",
		"url":          "https://shop.test/p/sku-" + name,
		"product_type": "cosmetics",
		"category":     "skincare",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = suite.perform(http.MethodPost, "/v1/admin/links", suite.adminToken, gin.H{
		"partner_id":  partnerID,
		"target_type": "product",
		"target_id":   "sku-" + name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	link := dataOf(t, w)
	assert.Equal(t, "https://go.test/l/"+link["short_code"].(string), link["short_url"])

	return partnerID, link["short_code"].(string)
}

func (suite *RouterTestSuite) TestHealth() {
	w := suite.perform(http.MethodGet, "/health", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestAuthentication() {
	w := suite.perform(http.MethodGet, "/v1/admin/partners", "", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.perform(http.MethodGet, "/v1/admin/partners", "not-a-token", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	partnerToken, err := utils.GenerateJWT("p-1", utils.RolePartner, uuid.NewString(), time.Hour)
	require.NoError(suite.T(), err)
	w = suite.perform(http.MethodGet, "/v1/admin/partners", partnerToken, nil)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w = suite.perform(http.MethodPost, "/v1/internal/order-events", partnerToken, []byte(`{}`))
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w = suite.perform(http.MethodGet, "/v1/admin/partners", suite.adminToken, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestRedirectRecordsClickAndSetsCookie() {
	t := suite.T()
	_, code := suite.activePartnerWithLink("alpha")

	w := suite.perform(http.MethodGet, "/l/"+code, "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.test/p/sku-alpha", w.Header().Get("Location"))

	var visitor *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "pe_vid" {
			visitor = c
		}
	}
	require.NotNil(t, visitor)
	assert.True(t, visitor.HttpOnly)

	// A repeat visit with the same cookie is a duplicate and sets no cookie
	w = suite.perform(http.MethodGet, "/l/"+code, "", nil, visitor)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, w.Result().Cookies())

	suite.drainQueue()

	w = suite.perform(http.MethodGet, "/v1/admin/clicks", suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, listOf(t, w), 1)
}

func (suite *RouterTestSuite) TestRedirectUnknownCode() {
	w := suite.perform(http.MethodGet, "/l/NOPE1234", "", nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
	assert.Equal(suite.T(), "NOT_FOUND", errorCode(suite.T(), w))
}

func (suite *RouterTestSuite) TestArchivedLink() {
	t := suite.T()
	partnerID, code := suite.activePartnerWithLink("beta")

	w := suite.perform(http.MethodGet, "/v1/admin/partners/"+partnerID+"/links", suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links := listOf(t, w)
	require.Len(t, links, 1)
	linkID := links[0].(map[string]interface{})["id"].(string)

	w = suite.perform(http.MethodPatch, "/v1/admin/links/"+linkID+"/status", suite.adminToken, gin.H{"status": "archived"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = suite.perform(http.MethodPatch, "/v1/admin/links/"+linkID+"/status", suite.adminToken, gin.H{"status": "active"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, w))

	w = suite.perform(http.MethodGet, "/l/"+code, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func (suite *RouterTestSuite) TestOrderEventCreatesCommission() {
	t := suite.T()
	partnerID, code := suite.activePartnerWithLink("gamma")

	w := suite.perform(http.MethodPost, "/v1/admin/policies", suite.adminToken, gin.H{
		"name":            "Default",
		"policy_type":     "default",
		"commission_type": "percentage",
		"rate":            "0.05",
		"priority":        1,
		"status":          "active",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	envelope, err := events.NewEnvelope(events.OrderConfirmed, events.OrderEvent{
		OrderID:    "order-1",
		PartnerRef: code,
		Amount:     decimal.NewFromInt(100000),
		Currency:   "KRW",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	// Replays are idempotent
	for i := 0; i < 2; i++ {
		w = suite.perform(http.MethodPost, "/v1/internal/order-events", suite.serviceToken, envelope)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	w = suite.perform(http.MethodGet, "/v1/admin/commissions?partner_id="+partnerID, suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	commissions := listOf(t, w)
	require.Len(t, commissions, 1)
	commission := commissions[0].(map[string]interface{})
	assert.True(t, decimal.RequireFromString(commission["final_amount"].(string)).Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "pending", commission["status"])

	// Partners see their own commissions only
	partnerToken, err := utils.GenerateJWT("gamma-user", utils.RolePartner, partnerID, time.Hour)
	require.NoError(t, err)
	w = suite.perform(http.MethodGet, "/v1/partner/"+partnerID+"/commissions", partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, listOf(t, w), 1)

	w = suite.perform(http.MethodGet, "/v1/partner/"+uuid.NewString()+"/commissions", partnerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = suite.perform(http.MethodGet, "/v1/partner/"+partnerID+"/stats", partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataOf(t, w)["conversions"])
}

func (suite *RouterTestSuite) TestMalformedOrderEvent() {
	w := suite.perform(http.MethodPost, "/v1/internal/order-events", suite.serviceToken, []byte(`{"type":"order.shipped","data":{"orderId":"o-1"}}`))
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	envelope, err := events.NewEnvelope(events.OrderConfirmed, events.OrderEvent{OrderID: "o-2", Amount: decimal.NewFromInt(-1)})
	require.NoError(suite.T(), err)
	w = suite.perform(http.MethodPost, "/v1/internal/order-events", suite.serviceToken, envelope)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *RouterTestSuite) TestPolicyValidation() {
	w := suite.perform(http.MethodPost, "/v1/admin/policies", suite.adminToken, gin.H{
		"name":            "Too generous",
		"policy_type":     "default",
		"commission_type": "percentage",
		"rate":            "1.5",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "VALIDATION_ERROR", errorCode(suite.T(), w))

	w = suite.perform(http.MethodGet, "/v1/admin/policies/not-a-uuid", suite.adminToken, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.perform(http.MethodGet, "/v1/admin/policies/"+uuid.NewString(), suite.adminToken, nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *RouterTestSuite) TestSettlementBatchLifecycle() {
	t := suite.T()
	partnerID, _ := suite.activePartnerWithLink("delta")

	w := suite.perform(http.MethodPost, "/v1/admin/settlements", suite.adminToken, gin.H{"partner_id": partnerID, "period": "2026-13"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = suite.perform(http.MethodPost, "/v1/admin/settlements", suite.adminToken, gin.H{"partner_id": partnerID, "period": "2026-03"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	batchID := dataOf(t, w)["id"].(string)

	w = suite.perform(http.MethodPost, "/v1/admin/settlements", suite.adminToken, gin.H{"partner_id": partnerID, "period": "2026-03"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BATCH_ALREADY_OPEN", errorCode(t, w))

	w = suite.perform(http.MethodGet, "/v1/admin/settlements/"+batchID+"/items", suite.adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BATCH_OPEN", errorCode(t, w))

	w = suite.perform(http.MethodPost, "/v1/admin/settlements/"+batchID+"/close", suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "closed", dataOf(t, w)["status"])

	w = suite.perform(http.MethodGet, "/v1/admin/settlements/"+batchID+"/items", suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, listOf(t, w))

	// Nothing to transfer and no gateway configured
	w = suite.perform(http.MethodPost, "/v1/admin/settlements/"+batchID+"/pay", suite.adminToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = suite.perform(http.MethodPost, "/v1/admin/settlements/"+batchID+"/mark-failed", suite.adminToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = suite.perform(http.MethodGet, "/v1/admin/audit-logs?subject_type=settlement_batch&subject_id="+batchID, suite.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, listOf(t, w))
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
