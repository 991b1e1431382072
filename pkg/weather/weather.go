// Package weather relays historical weather lookups so the api keys stay on the relay.
package weather

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

// WeatherAPIHistory answers GET /weatherapi with the history.json of weatherapi.com.
type WeatherAPIHistory struct {
	url string
	key string
}

func NewWeatherAPIHistory(cfg config.WeatherAPIConfig) *WeatherAPIHistory {
	return &WeatherAPIHistory{url: cfg.URL, key: cfg.Key}
}

func (r *WeatherAPIHistory) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	query := url.Values{}
	query.Set("key", r.key)

	// weatherapi takes the location as "lat,lon"
	var location []string
	for _, name := range []string{"lat", "lon"} {
		if value := in.Query.Get(name); value != "" {
			location = append(location, value)
		}
	}
	if len(location) > 0 {
		query.Set("q", strings.Join(location, ","))
	}
	relay.SetPresent(query, in.Query, "dt", "end_dt", "lang")

	return &relay.RequestSpec{
		Method: http.MethodGet,
		URL:    withQuery(r.url, query),
	}, nil
}

func (r *WeatherAPIHistory) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	return relay.Passthrough(http.StatusOK, resp), nil
}

// OpenWeatherMap relays one OpenWeatherMap endpoint, forwarding only the
// listed query parameters that the client sent.
type OpenWeatherMap struct {
	url    string
	key    string
	params []string
}

func NewTimeMachine(cfg config.OpenWeatherMapConfig) *OpenWeatherMap {
	return &OpenWeatherMap{
		url:    strings.TrimSuffix(cfg.URL, "/") + "/data/3.0/onecall/timemachine",
		key:    cfg.Key,
		params: []string{"lat", "lon", "dt", "units", "lang"},
	}
}

func NewAirPollution(cfg config.OpenWeatherMapConfig) *OpenWeatherMap {
	return &OpenWeatherMap{
		url:    strings.TrimSuffix(cfg.URL, "/") + "/data/2.5/air_pollution/history",
		key:    cfg.Key,
		params: []string{"lat", "lon", "start", "end"},
	}
}

func (r *OpenWeatherMap) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	query := url.Values{}
	relay.SetPresent(query, in.Query, r.params...)
	query.Set("appid", r.key)

	return &relay.RequestSpec{
		Method: http.MethodGet,
		URL:    withQuery(r.url, query),
	}, nil
}

func (r *OpenWeatherMap) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	return relay.Passthrough(http.StatusOK, resp), nil
}

func withQuery(base string, query url.Values) string {
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + query.Encode()
}
