// internal/i18n/i18n_test.go
package i18n

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize("locales", "en"))

	assert.Equal(t, "Link not found", T("en", KeyLinkNotFound))
	assert.NotEqual(t, KeyLinkNotFound, T("ko", KeyLinkNotFound))
	assert.Equal(t, "Link not found", T("fr", KeyLinkNotFound))
	assert.Equal(t, "Invalid period", T("en", KeyValidationInvalid, "period"))
	assert.Equal(t, "missing.key", T("en", "missing.key"))
}

func TestLocalesShareKeys(t *testing.T) {
	load := func(lang string) map[string]string {
		data, err := os.ReadFile(filepath.Join("locales", lang+".json"))
		require.NoError(t, err)
		var out map[string]string
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	en := load("en")
	for _, lang := range SupportedLanguages[1:] {
		other := load(lang)
		for key := range en {
			assert.Contains(t, other, key, "%s is missing %s", lang, key)
		}
	}

	for _, key := range []string{
		KeyInternalError, KeyRateLimited, KeyAuthRequired, KeyPartnerMismatch,
		KeyPolicyConflict, KeySettlementAlreadyOpen, KeyInvalidTransition,
		KeyResourceSettlement + ".not_found",
	} {
		assert.Contains(t, en, key)
	}
}
