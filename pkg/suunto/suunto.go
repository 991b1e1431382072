// Package suunto relays the desktop client's calls to the Suunto cloud API.
//
// Every data call forwards the client's bearer token untouched and adds the
// subscription key of the relay.
package suunto

import (
	"net/http"
	"strings"

	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

const (
	HeaderSubscriptionKey = "Ocp-Apim-Subscription-Key"
	MIMEGPX               = "application/gpx+xml"
)

// API holds what every Suunto data route needs to address the upstream.
type API struct {
	baseURL         string
	subscriptionKey string
}

func NewAPI(cfg config.SuuntoConfig) API {
	return API{
		baseURL:         strings.TrimSuffix(cfg.APIURL, "/"),
		subscriptionKey: cfg.SubscriptionKey,
	}
}

func (a API) url(path string) string {
	return a.baseURL + path
}

func (a API) header(in *relay.Inbound) http.Header {
	header := http.Header{}
	relay.ForwardAuthorization(in, header)
	header.Set(HeaderSubscriptionKey, a.subscriptionKey)
	return header
}
