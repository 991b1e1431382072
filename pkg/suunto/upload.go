package suunto

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

// UploadOrchestrator runs the multi step workout upload of the Suunto cloud.
// The server only knows this interface.
type UploadOrchestrator interface {
	StartUpload(ctx context.Context, in *relay.Inbound) (*relay.Outbound, error)
	UploadStatus(ctx context.Context, in *relay.Inbound) (*relay.Outbound, error)
}

type uploadRequest struct {
	Workout     string `json:"workout" validate:"required"`
	Description string `json:"description"`
	Comment     string `json:"comment"`
	NotifyUser  bool   `json:"notifyUser"`
}

type uploadInit struct {
	Description string `json:"description,omitempty"`
	Comment     string `json:"comment,omitempty"`
	NotifyUser  bool   `json:"notifyUser"`
}

// UploadSession is what Suunto answers to an upload initialisation: the FIT
// file has to be PUT to URL with Headers.
type UploadSession struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// Uploader initialises an upload, then stores the FIT file in the blob
// storage returned by Suunto.
type Uploader struct {
	api    API
	client *relay.Client
	status relay.Handler
}

func NewUploader(api API, client *relay.Client) *Uploader {
	return &Uploader{
		api:    api,
		client: client,
		status: relay.Relay(client, &uploadStatusRoute{api: api}),
	}
}

func (u *Uploader) StartUpload(ctx context.Context, in *relay.Inbound) (*relay.Outbound, error) {
	var req uploadRequest
	if err := relay.DecodeJSON(in.Body, &req); err != nil {
		return nil, err
	}
	fit, err := relay.DecodeBase64("workout", req.Workout)
	if err != nil {
		return nil, err
	}

	initBody, err := json.Marshal(uploadInit{
		Description: req.Description,
		Comment:     req.Comment,
		NotifyUser:  req.NotifyUser,
	})
	if err != nil {
		return nil, err
	}

	header := u.api.header(in)
	header.Set("Content-Type", "application/json")
	initResp, err := u.client.Do(ctx, &relay.RequestSpec{
		Method: http.MethodPost,
		URL:    u.api.url("/upload/"),
		Header: header,
		Body:   initBody,
	})
	if err != nil {
		return nil, err
	}

	var session UploadSession
	if err := json.Unmarshal(initResp.Body, &session); err != nil || session.URL == "" {
		return nil, relay.UpstreamError(http.StatusBadGateway, []byte("upload initialisation returned no upload url"), "")
	}

	blobHeader := http.Header{}
	for name, value := range session.Headers {
		blobHeader.Set(name, value)
	}
	if _, err := u.client.Do(ctx, &relay.RequestSpec{
		Method: http.MethodPut,
		URL:    session.URL,
		Header: blobHeader,
		Body:   fit,
	}); err != nil {
		return nil, err
	}

	slog.Info("Suunto workout uploaded", "upload_id", session.ID, "size", len(fit))
	return relay.Passthrough(http.StatusCreated, initResp), nil
}

func (u *Uploader) UploadStatus(ctx context.Context, in *relay.Inbound) (*relay.Outbound, error) {
	return u.status.Handle(ctx, in)
}

type uploadStatusRoute struct {
	api API
}

func (r *uploadStatusRoute) BuildRequest(in *relay.Inbound) (*relay.RequestSpec, error) {
	id := in.Param("id")
	if id == "" {
		return nil, relay.InputError("upload id is required")
	}
	return &relay.RequestSpec{
		Method: http.MethodGet,
		URL:    r.api.url("/upload/" + url.PathEscape(id)),
		Header: r.api.header(in),
	}, nil
}

func (r *uploadStatusRoute) MapResponse(_ *relay.Inbound, resp *relay.Response) (*relay.Outbound, error) {
	return relay.Passthrough(http.StatusOK, resp), nil
}
