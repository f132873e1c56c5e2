// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/utils"
)

func bearerClaims(c *gin.Context) (*utils.JWTClaims, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, i18n.KeyAuthRequired
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, i18n.KeyAuthInvalidToken
	}

	claims, err := utils.ValidateJWT(parts[1])
	if err != nil {
		return nil, i18n.KeyAuthTokenExpired
	}
	return claims, ""
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, failure := bearerClaims(c)
		if claims == nil {
			lang := utils.GetLangFromContext(c)
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", i18n.T(lang, failure), nil)
			c.Abort()
			return
		}

		c.Set("actor_id", claims.ActorID)
		c.Set("role", claims.Role)
		c.Set("partner_id", claims.PartnerID)
		c.Next()
	}
}

// RequireRole lets the request through when the token carries one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetRoleFromContext(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "")
		c.Abort()
	}
}

func AdminRequired() gin.HandlerFunc {
	return RequireRole(utils.RoleAdmin)
}

// ServiceOrAdmin guards the internal ingestion routes used by the order
// system.
func ServiceOrAdmin() gin.HandlerFunc {
	return RequireRole(utils.RoleService, utils.RoleAdmin)
}

// PartnerScope limits partner tokens to their own partner id. The id is read
// from the named path parameter. Admin tokens pass unchanged.
func PartnerScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetRoleFromContext(c)
		if role == utils.RoleAdmin {
			c.Next()
			return
		}

		partnerID, ok := utils.GetPartnerIDFromContext(c)
		if role != utils.RolePartner || !ok || partnerID != c.Param(param) {
			lang := utils.GetLangFromContext(c)
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyPartnerMismatch))
			c.Abort()
			return
		}
		c.Next()
	}
}
