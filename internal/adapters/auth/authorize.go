package auth

import (
	"errors"
	"fmt"
	"net/url"
)

type AuthorizationRequest struct {
	AuthorizeURL  string
	ClientID      string
	RedirectURI   string
	Scope         string
	State         string
	CodeChallenge string
	// ExtraParams carries provider-specific authorize parameters from the
	// descriptor table.
	ExtraParams map[string]string
}

// BuildAuthorizationURL forms the provider redirect target for one login
// attempt. The redirect_uri embedded here must match the token exchange
// byte for byte.
func BuildAuthorizationURL(req AuthorizationRequest) (string, error) {
	if req.AuthorizeURL == "" {
		return "", errors.New("authorize url is required")
	}
	if req.ClientID == "" {
		return "", errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}

	parsed, err := url.Parse(req.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("authorize url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("authorize url host is required")
	}

	q := parsed.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	if req.Scope != "" {
		q.Set("scope", req.Scope)
	}
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", ChallengeMethodS256)
	for key, value := range req.ExtraParams {
		q.Set(key, value)
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
