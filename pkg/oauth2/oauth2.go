package oauth2

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Grant is the token request of the desktop client.
// Exactly one of Code and RefreshToken is used, selected by GrantType.
type Grant struct {
	GrantType    string `json:"grant_type" validate:"required,oneof=authorization_code refresh_token"`
	Code         string `json:"code" validate:"required_if=GrantType authorization_code"`
	RefreshToken string `json:"refresh_token" validate:"required_if=GrantType refresh_token"`
}

// ParseGrant decodes and validates a grant. Errors are *relay.Error of kind input.
func ParseGrant(body []byte) (*Grant, error) {
	grant := new(Grant)
	if err := relay.DecodeJSON(body, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// Value returns the credential selected by the grant type.
func (g *Grant) Value() string {
	if g.GrantType == GrantTypeRefreshToken {
		return g.RefreshToken
	}
	return g.Code
}

// Form encodes the grant for a token endpoint. Only the field matching the
// grant type is sent.
func (g *Grant) Form(redirectURI string) url.Values {
	params := url.Values{}
	params.Set("grant_type", g.GrantType)
	switch g.GrantType {
	case GrantTypeAuthorizationCode:
		params.Set("code", g.Code)
	case GrantTypeRefreshToken:
		params.Set("refresh_token", g.RefreshToken)
	}
	if redirectURI != "" {
		params.Set("redirect_uri", redirectURI)
	}
	return params
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// TokenResult is returned to the desktop client after an exchange.
// ExpiresAt is always a string of digits (seconds since epoch).
type TokenResult struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	ExpiresAt    string         `json:"expires_at"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	Raw          map[string]any `json:"-"`
}

// MarshalJSON flattens provider specific fields next to the normalized ones.
func (r TokenResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Raw)+5)
	for k, v := range r.Raw {
		out[k] = v
	}
	out["access_token"] = r.AccessToken
	out["expires_at"] = r.ExpiresAt
	if r.RefreshToken != "" {
		out["refresh_token"] = r.RefreshToken
	}
	if r.TokenType != "" {
		out["token_type"] = r.TokenType
	}
	if r.ExpiresIn != 0 {
		out["expires_in"] = r.ExpiresIn
	}
	return json.Marshal(out)
}

// FormatExpiry renders an expiry as epoch seconds. The zero time yields "0".
func FormatExpiry(expiry time.Time) string {
	if expiry.IsZero() {
		return "0"
	}
	return strconv.FormatInt(expiry.Unix(), 10)
}

// ExpiryFromNumber interprets numeric JSON values (float64, json.Number, int64)
// as epoch seconds.
func ExpiryFromNumber(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), n > 0
	case int64:
		return time.Unix(n, 0), n > 0
	case int:
		return time.Unix(int64(n), 0), n > 0
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return time.Unix(i, 0), err == nil && i > 0
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return time.Unix(i, 0), err == nil && i > 0
	}
	return time.Time{}, false
}
