// internal/services/fingerprint.go
package services

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives stable, non-reversible visitor identifiers with a
// keyed BLAKE2b hash so raw cookies and IPs are never stored.
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(secret string) *Fingerprinter {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Fingerprinter{key: key}
}

func (f *Fingerprinter) hash(domain string, parts ...string) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		// only reachable with a key longer than 64 bytes, which NewFingerprinter prevents
		panic(err)
	}
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Visitor hashes the visitor id carried by the tracking cookie. Order events
// carry the same raw id so both sides hash to the same fingerprint.
func (f *Fingerprinter) Visitor(visitorID string) string {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return ""
	}
	return f.hash("visitor", visitorID)
}

// IP hashes a client address for storage alongside a click.
func (f *Fingerprinter) IP(ip string) string {
	if ip == "" {
		return ""
	}
	return f.hash("ip", ip)
}
