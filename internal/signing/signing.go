// Package signing issues and verifies expiring HMAC links to stored resume
// files.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature of a document id and expiry.
func (s *Signer) Sign(documentID int64, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%d", documentID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Link returns base/files/{id}?expires=..&sig=.. valid for ttl.
func (s *Signer) Link(base string, documentID int64, ttl time.Duration) (string, time.Time) {
	expires := s.now().Add(ttl).UTC().Truncate(time.Second)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	q.Set("sig", s.Sign(documentID, expires.Unix()))
	return fmt.Sprintf("%s/files/%d?%s", strings.TrimRight(base, "/"), documentID, q.Encode()), expires
}

// Validate checks the signature and that the link has not expired.
func (s *Signer) Validate(documentID int64, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	expected := s.Sign(documentID, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
