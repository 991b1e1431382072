package suunto

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	return upstream
}

func testAPI(upstream *httptest.Server) API {
	return NewAPI(config.SuuntoConfig{
		APIURL:          upstream.URL + "/v2",
		SubscriptionKey: "sub-key",
	})
}

func signedAccessToken(t *testing.T) string {
	token, err := jwt.NewBuilder().Claim("user", "rider").Build()
	if err != nil {
		t.Fatal(err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte("test-key")))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func TestTokenRoute(t *testing.T) {
	accessToken := signedAccessToken(t)
	upstreamBody := []byte(`{"access_token":"` + accessToken + `","token_type":"bearer","refresh_token":"r2","expires_in":86399,"user":"rider"}`)

	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "suunto-id" || secret != "suunto-secret" {
			t.Errorf("unexpected basic auth %q %q %v", id, secret, ok)
		}
		if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r1" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("redirect_uri") != "http://localhost:4919" {
			t.Errorf("unexpected redirect_uri %q", r.PostForm.Get("redirect_uri"))
		}
		if r.PostForm.Has("code") {
			t.Errorf("code must not be sent for refresh_token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(upstreamBody)
	})

	handler := relay.Relay(relay.NewClient(), NewTokenRoute(config.SuuntoConfig{
		ClientID:     "suunto-id",
		ClientSecret: "suunto-secret",
		TokenURL:     upstream.URL + "/oauth/token",
		CallbackURL:  config.DefaultSuuntoCallbackURL,
	}))

	out, err := handler.Handle(context.Background(), &relay.Inbound{
		Body: []byte(`{"grant_type":"refresh_token","refresh_token":"r1"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", out.Status)
	}
	if !bytes.Equal(out.Body, upstreamBody) {
		t.Fatalf("body must be relayed as is: %s", out.Body)
	}
}

func TestTokenUser(t *testing.T) {
	if user, ok := tokenUser(signedAccessToken(t)); !ok || user != "rider" {
		t.Fatalf("unexpected user %q %v", user, ok)
	}
	for _, accessToken := range []string{"", "opaque-token", "a.b.c"} {
		if user, ok := tokenUser(accessToken); ok {
			t.Fatalf("%q: unexpected user %q", accessToken, user)
		}
	}
}

func TestTokenRouteUpstreamError(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`invalid_grant`))
	})
	handler := relay.Relay(relay.NewClient(), NewTokenRoute(config.SuuntoConfig{TokenURL: upstream.URL}))

	_, err := handler.Handle(context.Background(), &relay.Inbound{
		Body: []byte(`{"grant_type":"authorization_code","code":"bad"}`),
	})
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusUnauthorized || relayErr.Message != "invalid_grant" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRouteImportDecodesGPX(t *testing.T) {
	gpx := []byte(`<?xml version="1.0"?><gpx version="1.1"><rte><name>Loop</name></rte></gpx>`)

	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/route/import" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != MIMEGPX {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(HeaderSubscriptionKey) != "sub-key" || r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, gpx) {
			t.Errorf("decoded gpx differs: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"route-1"}`))
	})

	payload, _ := json.Marshal(map[string]string{"gpxRoute": base64.StdEncoding.EncodeToString(gpx)})
	handler := relay.Relay(relay.NewClient(), NewRouteImport(testAPI(upstream)))
	out, err := handler.Handle(context.Background(), &relay.Inbound{
		Header: http.Header{"Authorization": []string{"Bearer user-token"}},
		Body:   payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusCreated || string(out.Body) != `{"id":"route-1"}` {
		t.Fatalf("unexpected response %d %s", out.Status, out.Body)
	}
}

func TestRouteImportAcceptsWrappedAndUnpaddedBase64(t *testing.T) {
	gpx := []byte(`<?xml version="1.0"?><gpx version="1.1" creator="MyTourbook"><rte><name>Lake loop</name></rte></gpx>`)
	std := base64.StdEncoding.EncodeToString(gpx)
	wrapped := std[:40] + "\n" + std[40:80] + "\n" + std[80:]

	var received [][]byte
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = append(received, body)
		w.Write([]byte(`{}`))
	})
	handler := relay.Relay(relay.NewClient(), NewRouteImport(testAPI(upstream)))

	for _, encoded := range []string{wrapped, base64.RawStdEncoding.EncodeToString(gpx)} {
		payload, _ := json.Marshal(map[string]string{"gpxRoute": encoded})
		if _, err := handler.Handle(context.Background(), &relay.Inbound{Body: payload}); err != nil {
			t.Fatalf("%q: %v", encoded, err)
		}
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", len(received))
	}
	for _, body := range received {
		if !bytes.Equal(body, gpx) {
			t.Fatalf("decoded gpx differs: %s", body)
		}
	}
}

func TestRouteImportRejectsInvalidBase64(t *testing.T) {
	called := false
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := relay.Relay(relay.NewClient(), NewRouteImport(testAPI(upstream)))

	for _, body := range []string{`{"gpxRoute":"not base64!"}`, `{}`} {
		_, err := handler.Handle(context.Background(), &relay.Inbound{Body: []byte(body)})
		var relayErr *relay.Error
		if !errors.As(err, &relayErr) || relayErr.Kind != relay.KindInput || relayErr.Status != http.StatusBadRequest {
			t.Fatalf("%s: unexpected error %v", body, err)
		}
	}
	if called {
		t.Fatal("upstream must not be called")
	}
}

func TestWorkoutsQuery(t *testing.T) {
	var got url.Values
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/workouts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get(HeaderSubscriptionKey) != "sub-key" {
			t.Errorf("missing subscription key")
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("no authorization must be sent when the client sent none")
		}
		got = r.URL.Query()
		w.Write([]byte(`{"payload":[]}`))
	})
	handler := relay.Relay(relay.NewClient(), NewWorkouts(testAPI(upstream)))

	out, err := handler.Handle(context.Background(), &relay.Inbound{Query: url.Values{"since": {"1600000000000"}}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.Status)
	}
	if got.Get("limit") != "10000" || got.Get("filter-by-modification-time") != "false" {
		t.Fatalf("unexpected query %v", got)
	}
	if got.Get("since") != "1600000000000" || got.Has("until") {
		t.Fatalf("unexpected query %v", got)
	}
}

func TestExportFitIsBinary(t *testing.T) {
	fit := []byte{0x0e, 0x10, 0x00, 0xff, 0x80, 0x2e, 0x46, 0x49, 0x54, 0x00, 0xc3}

	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/workout/exportFit/abc123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="abc123.fit"`)
		w.Write(fit)
	})
	handler := relay.Relay(relay.NewClient(), NewExportFit(testAPI(upstream)))

	out, err := handler.Handle(context.Background(), &relay.Inbound{Query: url.Values{"workoutKey": {"abc123"}}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusOK || !bytes.Equal(out.Body, fit) {
		t.Fatalf("unexpected response %d %v", out.Status, out.Body)
	}
	if out.Header.Get("Content-Disposition") != `attachment; filename="abc123.fit"` {
		t.Fatalf("unexpected content disposition %q", out.Header.Get("Content-Disposition"))
	}

	_, err = handler.Handle(context.Background(), &relay.Inbound{})
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) || relayErr.Kind != relay.KindInput {
		t.Fatalf("missing workoutKey must be an input error, got %v", err)
	}
}

func TestUploaderStartUpload(t *testing.T) {
	fit := []byte{0x0e, 0x20, 0x01, 0x02, 0xff}
	var blobBody []byte
	var blobType string

	mux := http.NewServeMux()
	upstream := newUpstream(t, mux.ServeHTTP)
	mux.HandleFunc("/v2/upload/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var init map[string]any
		json.NewDecoder(r.Body).Decode(&init)
		if init["description"] != "Morning ride" || init["notifyUser"] != true {
			t.Errorf("unexpected init body %v", init)
		}
		if _, ok := init["workout"]; ok {
			t.Errorf("workout must not be sent with the metadata")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(UploadSession{
			ID:      "upload-1",
			URL:     upstream.URL + "/blob/upload-1",
			Headers: map[string]string{"x-ms-blob-type": "BlockBlob"},
		})
	})
	mux.HandleFunc("/blob/upload-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		blobType = r.Header.Get("x-ms-blob-type")
		blobBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	uploader := NewUploader(testAPI(upstream), relay.NewClient())
	payload, _ := json.Marshal(map[string]any{
		"workout":     base64.StdEncoding.EncodeToString(fit),
		"description": "Morning ride",
		"notifyUser":  true,
	})
	out, err := uploader.StartUpload(context.Background(), &relay.Inbound{Body: payload})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", out.Status)
	}
	if !bytes.Equal(blobBody, fit) || blobType != "BlockBlob" {
		t.Fatalf("unexpected blob upload %v %q", blobBody, blobType)
	}
	var session UploadSession
	if err := json.Unmarshal(out.Body, &session); err != nil || session.ID != "upload-1" {
		t.Fatalf("unexpected body %s", out.Body)
	}
}

func TestUploaderStatus(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/upload/upload-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"upload-1","status":"PROCESSED"}`))
	})
	uploader := NewUploader(testAPI(upstream), relay.NewClient())

	out, err := uploader.UploadStatus(context.Background(), &relay.Inbound{Params: map[string]string{"id": "upload-1"}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != http.StatusOK || string(out.Body) != `{"id":"upload-1","status":"PROCESSED"}` {
		t.Fatalf("unexpected response %d %s", out.Status, out.Body)
	}
}
