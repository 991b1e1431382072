package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
)

// Adapt turns a relay handler into an echo handler. Errors are returned
// untouched and written by ErrorHandlerMiddleware.
func Adapt(h relay.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		in, err := inbound(c)
		if err != nil {
			return err
		}

		out, err := h.Handle(c.Request().Context(), in)
		if err != nil {
			return err
		}
		return writeOutbound(c, out)
	}
}

func inbound(c echo.Context) (*relay.Inbound, error) {
	req := c.Request()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return nil, httpErr
			}
			return nil, relay.InputError("read request body: %v", err)
		}
	}

	params := make(map[string]string, len(c.ParamNames()))
	for i, name := range c.ParamNames() {
		params[name] = c.ParamValues()[i]
	}

	return &relay.Inbound{
		Header: req.Header,
		Query:  c.QueryParams(),
		Params: params,
		Body:   body,
	}, nil
}

func writeOutbound(c echo.Context, out *relay.Outbound) error {
	for name, values := range out.Header {
		for _, value := range values {
			c.Response().Header().Add(name, value)
		}
	}
	contentType := out.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(out.Body)
	}
	return c.Blob(out.Status, contentType, out.Body)
}

// ErrorHandlerMiddleware is the single place where errors become responses.
// Relay errors carry the upstream message verbatim, everything echo raises
// itself is answered as JSON.
func ErrorHandlerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil {
			return nil
		}

		var relayErr *relay.Error
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &relayErr):
			slog.Error("Relay error", "kind", relayErr.Kind, "status", relayErr.Status, "error", relayErr.Message, "path", c.Path(), "remote_addr", c.RealIP())
			contentType := relayErr.ContentType
			if contentType == "" {
				contentType = echo.MIMETextPlainCharsetUTF8
			}
			return c.Blob(relayErr.Status, contentType, []byte(relayErr.Message))
		case errors.As(err, &echoErr):
			slog.Error("Error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
			return c.JSON(echoErr.Code, &relay.Error{
				Kind:    relay.KindInput,
				Status:  echoErr.Code,
				Message: fmt.Sprint(echoErr.Message),
			})
		default:
			slog.Error("Error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
			return c.JSON(http.StatusInternalServerError, &relay.Error{
				Status:  http.StatusInternalServerError,
				Message: err.Error(),
			})
		}
	}
}
