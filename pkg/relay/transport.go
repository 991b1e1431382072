package relay

import "net/http"

type addHeaderTransport struct {
	t     http.RoundTripper
	name  string
	value string
}

// AddHeaderTransport sets a header on every outbound request unless the caller already set it.
func AddHeaderTransport(t http.RoundTripper, name, value string) http.RoundTripper {
	return &addHeaderTransport{t, name, value}
}

func AddUserAgentTransport(t http.RoundTripper, userAgent string) http.RoundTripper {
	return AddHeaderTransport(t, "User-Agent", userAgent)
}

func (adt *addHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(adt.name) == "" {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set(adt.name, adt.value)
	}
	if adt.t == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return adt.t.RoundTrip(req)
}
