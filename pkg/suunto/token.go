package suunto

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/oauth2"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

// TokenRoute exchanges a code or refresh token at the Suunto OAuth server.
// The client credentials travel as HTTP Basic auth, the grant as a form body.
type TokenRoute struct {
	tokenURL    string
	callbackURL string
	basicAuth   string
}

func NewTokenRoute(cfg config.SuuntoConfig) *TokenRoute {
	credentials := cfg.ClientID + ":" + cfg.ClientSecret
	return &TokenRoute{
		tokenURL:    cfg.TokenURL,
		callbackURL: cfg.CallbackURL,
		basicAuth:   "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
	}
}

func (r *TokenRoute) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	grant, err := oauth2.ParseGrant(in.Body)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", r.basicAuth)
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	return &relay.RequestSpec{
		Method: http.MethodPost,
		URL:    r.tokenURL,
		Header: header,
		Body:   []byte(grant.Form(r.callbackURL).Encode()),
	}, nil
}

func (r *TokenRoute) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	logTokenUser(resp.Body)
	return relay.Passthrough(http.StatusCreated, resp), nil
}

func logTokenUser(body []byte) {
	var token oauth2.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return
	}
	if user, ok := tokenUser(token.AccessToken); ok {
		slog.Debug("Suunto token issued", "user", user, "expires_in", token.ExpiresIn)
	}
}

// tokenUser reads the user claim of a Suunto access token. The token is not
// verified, the claim only ends up in the debug log.
func tokenUser(accessToken string) (string, bool) {
	if strings.Count(accessToken, ".") != 2 {
		return "", false
	}
	parsed, err := jwt.ParseInsecure([]byte(accessToken))
	if err != nil {
		slog.Debug("Suunto access token is not a parsable JWT", "error", err)
		return "", false
	}
	claim, ok := parsed.Get("user")
	if !ok {
		return "", false
	}
	user, ok := claim.(string)
	return user, ok
}
