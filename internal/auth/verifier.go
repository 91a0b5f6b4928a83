// Package auth provides bearer token verification for the API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Verifier validates bearer tokens and extracts tenant/role claims.
// Modes: dev (token is "tenant:role", no crypto) and hmac (HS256 JWT).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
}

// Principal is the authenticated caller.
type Principal struct {
	Tenant string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may mutate schedules, batches
// and runs.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }

// New returns a Verifier for the given mode; empty mode means dev.
func New(mode, hmacSecret string) *Verifier {
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:        strings.ToLower(strings.TrimSpace(mode)),
		HMACSecret:  []byte(hmacSecret),
		TenantClaim: "tenant",
		RoleClaim:   "role",
	}
}

// Verify checks the token and returns its principal.
func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, err
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, err
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("bad signature")
	}

	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, err
	}
	tenant, _ := claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
