// Package signing mints and verifies HMAC-signed download URLs. The server
// keeps no state per issued URL: the resource path, expiry, and method live
// inside the signed payload itself.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kilnrun/kiln/pkg/types"
)

// payload is the signed JSON object carried in the URL.
type payload struct {
	Path   string `json:"path"`
	Exp    int64  `json:"exp"`
	Method string `json:"method"`
}

// Signer signs and verifies download URLs under a process-wide key.
type Signer struct {
	key     []byte
	baseURL string
	ttl     time.Duration
}

// NewSigner creates a signer. baseURL is the public base used when minting
// links (e.g. "http://localhost:8080"); ttl is how long minted URLs stay
// valid.
func NewSigner(key []byte, baseURL string, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key cannot be empty")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Signer{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
	}, nil
}

// TTL returns the configured URL lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// SignURL mints a signed GET URL for the given resource path. The returned
// expiry is embedded in the payload.
func (s *Signer) SignURL(path string, now time.Time) (string, time.Time) {
	exp := now.Add(s.ttl)
	raw, _ := json.Marshal(payload{
		Path:   path,
		Exp:    exp.Unix(),
		Method: "GET",
	})

	q := url.Values{}
	q.Set("payload", base64.RawURLEncoding.EncodeToString(raw))
	q.Set("sig", hex.EncodeToString(s.sign(raw)))

	return s.baseURL + path + "?" + q.Encode(), time.Unix(exp.Unix(), 0).UTC()
}

// Verify checks a presented payload and signature against the request path.
// Every failure reason collapses to the same forbidden error so clients
// cannot distinguish tampering from expiry.
func (s *Signer) Verify(requestPath, payloadB64, sigHex string, now time.Time) error {
	forbidden := types.E(types.ErrForbidden, "signature verification failed")

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return forbidden
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return forbidden
	}
	if !hmac.Equal(sig, s.sign(raw)) {
		return forbidden
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return forbidden
	}
	if p.Path != requestPath {
		return forbidden
	}
	if p.Method != "GET" {
		return forbidden
	}
	if now.Unix() >= p.Exp {
		return forbidden
	}
	return nil
}

func (s *Signer) sign(raw []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(raw)
	return mac.Sum(nil)
}
