// internal/handlers/errors_test.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	type request struct {
		Name string `validate:"required"`
	}
	validatorErr := fmt.Errorf("validation failed: %w", utils.ValidateStruct(&request{}))

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"struct validation", validatorErr, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"field validation", commission.NewValidationError("rate", "too high"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"permanent event", &events.Permanent{Err: commission.NewValidationError("orderId", "is required")}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"policy conflict", &commission.PolicyConflictError{PolicyIDs: []uuid.UUID{uuid.New(), uuid.New()}, Priority: 5}, http.StatusConflict, "POLICY_CONFLICT"},
		{"link not found", services.ErrLinkNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"not found", fmt.Errorf("load: %w", services.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"batch already open", services.ErrBatchAlreadyOpen, http.StatusConflict, "BATCH_ALREADY_OPEN"},
		{"batch open", services.ErrBatchOpen, http.StatusConflict, "BATCH_OPEN"},
		{"concurrent modification", services.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"usage cap", services.ErrUsageCapExceeded, http.StatusConflict, "USAGE_CAP_EXCEEDED"},
		{"transition", fmt.Errorf("%w: closed -> open", services.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{"code exhausted", services.ErrCodeGenerationExhausted, http.StatusServiceUnavailable, "CODE_GENERATION_EXHAUSTED"},
		{"close incomplete", services.ErrBatchCloseIncomplete, http.StatusServiceUnavailable, "BATCH_CLOSE_INCOMPLETE"},
		{"payout", services.ErrPayoutNotConfigured, http.StatusServiceUnavailable, "PAYOUT_NOT_CONFIGURED"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err, i18n.KeyResourcePolicy)

			assert.Equal(t, tt.status, w.Code)
			var body utils.APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestScopedPartnerID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	partnerID := uuid.New()
	other := uuid.New()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?partner_id="+other.String(), nil)
	c.Set("role", utils.RoleAdmin)
	require.NotNil(t, scopedPartnerID(c))
	assert.Equal(t, other, *scopedPartnerID(c))

	// Partner tokens ignore the query filter
	c.Set("role", utils.RolePartner)
	c.Set("partner_id", partnerID.String())
	assert.Equal(t, partnerID, *scopedPartnerID(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("role", utils.RoleAdmin)
	assert.Nil(t, scopedPartnerID(c))
}
