// internal/services/fingerprint_test.go
package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprinter(t *testing.T) {
	f := NewFingerprinter("secret-a")

	assert.Empty(t, f.Visitor(""))
	assert.Empty(t, f.IP(""))
	assert.Equal(t, f.Visitor("visitor-1"), f.Visitor("visitor-1"))
	assert.Len(t, f.Visitor("visitor-1"), 64)
	assert.NotEqual(t, f.Visitor("visitor-1"), f.Visitor("visitor-2"))

	// the same input hashes differently per domain and per secret
	assert.NotEqual(t, f.Visitor("10.0.0.1"), f.IP("10.0.0.1"))
	assert.NotEqual(t, f.Visitor("visitor-1"), NewFingerprinter("secret-b").Visitor("visitor-1"))

	long := NewFingerprinter(strings.Repeat("k", 100))
	assert.Len(t, long.Visitor("visitor-1"), 64)
}
