// Package relay forwards simplified requests of the desktop client to upstream APIs.
//
// A Route turns an Inbound request into a RequestSpec and maps the upstream Response
// back into an Outbound response. Relay composes a Route with a Client into a Handler,
// which is what the dispatch table of the server knows about.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Inbound is the transport independent view of a request from the desktop client.
type Inbound struct {
	Header http.Header
	Query  url.Values
	Params map[string]string
	Body   []byte
}

func (in *Inbound) Authorization() string {
	if in.Header == nil {
		return ""
	}
	return in.Header.Get("Authorization")
}

func (in *Inbound) Param(name string) string {
	if in.Params == nil {
		return ""
	}
	return in.Params[name]
}

// Outbound is what gets written back to the desktop client.
type Outbound struct {
	Status      int
	Header      http.Header
	ContentType string
	Body        []byte
}

type Route interface {
	BuildRequest(in *Inbound) (*RequestSpec, error)
	MapResponse(in *Inbound, resp *Response) (*Outbound, error)
}

type Handler interface {
	Handle(ctx context.Context, in *Inbound) (*Outbound, error)
}

type HandlerFunc func(ctx context.Context, in *Inbound) (*Outbound, error)

func (f HandlerFunc) Handle(ctx context.Context, in *Inbound) (*Outbound, error) {
	return f(ctx, in)
}

// Relay performs exactly one outbound call per request: build, call, map.
func Relay(client *Client, route Route) Handler {
	return HandlerFunc(func(ctx context.Context, in *Inbound) (*Outbound, error) {
		spec, err := route.BuildRequest(in)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(ctx, spec)
		if err != nil {
			return nil, err
		}
		return route.MapResponse(in, resp)
	})
}

// Passthrough relays the upstream body and content type with the given status.
func Passthrough(status int, resp *Response) *Outbound {
	return &Outbound{
		Status:      status,
		ContentType: resp.ContentType(),
		Body:        resp.Body,
	}
}

func JSON(status int, v any) (*Outbound, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &Outbound{
		Status:      status,
		ContentType: "application/json; charset=UTF-8",
		Body:        body,
	}, nil
}

// ForwardAuthorization copies the inbound bearer credential untouched.
func ForwardAuthorization(in *Inbound, header http.Header) {
	if auth := in.Authorization(); auth != "" {
		header.Set("Authorization", auth)
	}
}

// SetPresent copies the named inbound query parameters that are present and non-empty.
func SetPresent(dst url.Values, src url.Values, names ...string) {
	for _, name := range names {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
}
