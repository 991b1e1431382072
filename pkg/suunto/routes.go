package suunto

import (
	"net/http"
	"net/url"

	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

type routeImportRequest struct {
	GPXRoute string `json:"gpxRoute" validate:"required"`
}

// RouteImport uploads a GPX route that the client sends base64 encoded.
type RouteImport struct {
	api API
}

func NewRouteImport(api API) *RouteImport {
	return &RouteImport{api: api}
}

func (r *RouteImport) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	var req routeImportRequest
	if err := relay.DecodeJSON(in.Body, &req); err != nil {
		return nil, err
	}
	gpx, err := relay.DecodeBase64("gpxRoute", req.GPXRoute)
	if err != nil {
		return nil, err
	}

	header := r.api.header(in)
	header.Set("Content-Type", MIMEGPX)

	return &relay.RequestSpec{
		Method: http.MethodPost,
		URL:    r.api.url("/route/import"),
		Header: header,
		Body:   gpx,
	}, nil
}

func (r *RouteImport) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	return relay.Passthrough(http.StatusCreated, resp), nil
}

// Workouts lists the workouts of the authorized user, optionally bounded by
// since and until (epoch milliseconds, forwarded as given).
type Workouts struct {
	api API
}

func NewWorkouts(api API) *Workouts {
	return &Workouts{api: api}
}

func (r *Workouts) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	query := url.Values{}
	query.Set("limit", "10000")
	query.Set("filter-by-modification-time", "false")
	relay.SetPresent(query, in.Query, "since", "until")

	return &relay.RequestSpec{
		Method: http.MethodGet,
		URL:    r.api.url("/workouts") + "?" + query.Encode(),
		Header: r.api.header(in),
	}, nil
}

func (r *Workouts) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	return relay.Passthrough(http.StatusOK, resp), nil
}

// ExportFit downloads the FIT file of one workout. The body is relayed byte for
// byte together with the upstream file name.
type ExportFit struct {
	api API
}

func NewExportFit(api API) *ExportFit {
	return &ExportFit{api: api}
}

func (r *ExportFit) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	workoutKey := in.Query.Get("workoutKey")
	if workoutKey == "" {
		return nil, relay.InputError("workoutKey is required")
	}

	return &relay.RequestSpec{
		Method: http.MethodGet,
		URL:    r.api.url("/workout/exportFit/" + url.PathEscape(workoutKey)),
		Header: r.api.header(in),
		Binary: true,
	}, nil
}

func (r *ExportFit) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	out := relay.Passthrough(http.StatusOK, resp)
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		out.Header = http.Header{}
		out.Header.Set("Content-Disposition", disposition)
	}
	return out, nil
}
