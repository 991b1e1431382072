// Package strava exchanges Strava authorization codes and refresh tokens on behalf of
// the desktop client, which never sees the client secret.
package strava

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/mytourbook/tourbook-relay/pkg/oauth2"
	"github.com/mytourbook/tourbook-relay/pkg/relay"
	xoauth2 "golang.org/x/oauth2"
)

// provider specific fields relayed next to the normalized token
var extraFields = []string{"athlete"}

type TokenExchange struct {
	oauthConfig *xoauth2.Config
	httpClient  *http.Client
}

func NewTokenExchange(cfg config.StravaConfig, client *relay.Client) *TokenExchange {
	return &TokenExchange{
		oauthConfig: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: xoauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: xoauth2.AuthStyleInParams,
			},
		},
		httpClient: client.HTTPClient(),
	}
}

// Handle answers POST /strava/token.
func (t *TokenExchange) Handle(ctx context.Context, in *relay.Inbound) (*relay.Outbound, error) {
	grant, err := oauth2.ParseGrant(in.Body)
	if err != nil {
		return nil, err
	}

	token, err := t.Exchange(ctx, grant)
	if err != nil {
		return nil, err
	}

	result := NewTokenResult(token)
	slog.Info("Strava token issued", "grant_type", grant.GrantType, "expires_at", result.ExpiresAt)

	return relay.JSON(http.StatusCreated, result)
}

// Exchange performs a single call to the Strava token endpoint.
func (t *TokenExchange) Exchange(ctx context.Context, grant *oauth2.Grant) (*xoauth2.Token, error) {
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, t.httpClient)

	var token *xoauth2.Token
	var err error
	switch grant.GrantType {
	case oauth2.GrantTypeAuthorizationCode:
		token, err = t.oauthConfig.Exchange(ctx, grant.Code)
	case oauth2.GrantTypeRefreshToken:
		// a token without access token is never valid, so this always refreshes
		token, err = t.oauthConfig.TokenSource(ctx, &xoauth2.Token{RefreshToken: grant.RefreshToken}).Token()
	default:
		return nil, relay.InputError("unsupported grant_type: %s", grant.GrantType)
	}
	if err != nil {
		return nil, mapTokenError(err)
	}
	return token, nil
}

func mapTokenError(err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return relay.UpstreamError(
			retrieveErr.Response.StatusCode,
			retrieveErr.Body,
			retrieveErr.Response.Header.Get("Content-Type"),
		)
	}
	return relay.TransportError(err)
}

// NewTokenResult normalizes the expiry to epoch seconds. Strava sends an absolute
// expires_at, which wins over the expiry computed from expires_in. The fields
// are written both flat and below "token".
func NewTokenResult(token *xoauth2.Token) *oauth2.TokenResult {
	expiry := token.Expiry
	if expiresAt, ok := oauth2.ExpiryFromNumber(token.Extra("expires_at")); ok {
		expiry = expiresAt
	}

	result := &oauth2.TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    oauth2.FormatExpiry(expiry),
		Raw:          map[string]any{},
	}
	if expiresIn, ok := token.Extra("expires_in").(float64); ok {
		result.ExpiresIn = int64(expiresIn)
	}
	nested := map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"token_type":    result.TokenType,
		"expires_at":    result.ExpiresAt,
	}
	if result.ExpiresIn != 0 {
		nested["expires_in"] = result.ExpiresIn
	}
	for _, field := range extraFields {
		if v := token.Extra(field); v != nil {
			result.Raw[field] = v
			nested[field] = v
		}
	}
	// older desktop clients read the token from the nested object
	result.Raw["token"] = nested
	return result
}
