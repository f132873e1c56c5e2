// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAdminAccessDenied = "admin.access_denied"
	KeyPartnerMismatch   = "auth.partner_mismatch"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// Resources (resource + ".not_found")
	KeyResourcePartner    = "partner"
	KeyResourceCatalog    = "catalog"
	KeyResourceLink       = "link"
	KeyResourceClick      = "click"
	KeyResourceConversion = "conversion"
	KeyResourcePolicy     = "policy"
	KeyResourceCommission = "commission"
	KeyResourceSettlement = "settlement"
	KeyResourceRecord     = "record"

	// Links
	KeyLinkNotFound      = "link.not_found"
	KeyLinkCodeExhausted = "link.code_exhausted"

	// Policies
	KeyPolicyConflict   = "policy.conflict"
	KeyPolicyUsageLimit = "policy.usage_limit"

	// Settlement
	KeySettlementAlreadyOpen     = "settlement.already_open"
	KeySettlementCloseIncomplete = "settlement.close_incomplete"
	KeySettlementBatchOpen       = "settlement.batch_open"

	// State
	KeyConcurrentModification = "state.concurrent_modification"
	KeyInvalidTransition      = "state.invalid_transition"
)
