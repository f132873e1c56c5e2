// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

// respondError maps service errors onto the API error envelope. resource is
// the i18n resource key used for not-found responses.
func respondError(c *gin.Context, err error, resource string) {
	lang := utils.GetLangFromContext(c)

	var validationErrs validator.ValidationErrors
	var fieldErr *services.ValidationError
	var conflictErr *commission.PolicyConflictError

	switch {
	case errors.As(err, &validationErrs):
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(validationErrs))
	case errors.As(err, &fieldErr):
		utils.ValidationErrorResponse(c, []utils.ValidationError{{
			Field:   fieldErr.Field,
			Tag:     "invalid",
			Message: fieldErr.Message,
		}})
	case errors.As(err, &conflictErr):
		utils.ConflictResponse(c, "POLICY_CONFLICT", i18n.T(lang, i18n.KeyPolicyConflict), gin.H{
			"policy_ids": conflictErr.PolicyIDs,
			"priority":   conflictErr.Priority,
		})
	case errors.Is(err, services.ErrLinkNotFound):
		utils.NotFoundResponse(c, i18n.KeyResourceLink)
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, services.ErrBatchAlreadyOpen):
		utils.ConflictResponse(c, "BATCH_ALREADY_OPEN", i18n.T(lang, i18n.KeySettlementAlreadyOpen), nil)
	case errors.Is(err, services.ErrBatchOpen):
		utils.ConflictResponse(c, "BATCH_OPEN", i18n.T(lang, i18n.KeySettlementBatchOpen), nil)
	case errors.Is(err, services.ErrConcurrentModification):
		utils.ConflictResponse(c, "CONCURRENT_MODIFICATION", i18n.T(lang, i18n.KeyConcurrentModification), nil)
	case errors.Is(err, services.ErrUsageCapExceeded):
		utils.ConflictResponse(c, "USAGE_CAP_EXCEEDED", i18n.T(lang, i18n.KeyPolicyUsageLimit), nil)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.ConflictResponse(c, "INVALID_TRANSITION", i18n.T(lang, i18n.KeyInvalidTransition), err.Error())
	case errors.Is(err, services.ErrCodeGenerationExhausted):
		utils.ServiceUnavailableResponse(c, "CODE_GENERATION_EXHAUSTED", i18n.T(lang, i18n.KeyLinkCodeExhausted))
	case errors.Is(err, services.ErrBatchCloseIncomplete):
		utils.ServiceUnavailableResponse(c, "BATCH_CLOSE_INCOMPLETE", i18n.T(lang, i18n.KeySettlementCloseIncomplete))
	case errors.Is(err, services.ErrPayoutNotConfigured):
		utils.ServiceUnavailableResponse(c, "PAYOUT_NOT_CONFIGURED", err.Error())
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON decodes the body and runs struct validation. It writes the error
// response itself and reports whether the handler should continue.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(c *gin.Context, name string) *uuid.UUID {
	if raw := c.Query(name); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return &id
		}
	}
	return nil
}

func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{ID: utils.GetActorFromContext(c), IP: c.ClientIP()}
}

// scopedPartnerID returns the partner a partner token is bound to, or the
// partner_id query filter for admins.
func scopedPartnerID(c *gin.Context) *uuid.UUID {
	if role, _ := utils.GetRoleFromContext(c); role == utils.RolePartner {
		if raw, ok := utils.GetPartnerIDFromContext(c); ok {
			if id, err := uuid.Parse(raw); err == nil {
				return &id
			}
		}
		id := uuid.Nil
		return &id
	}
	return queryUUID(c, "partner_id")
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=500"`
}
