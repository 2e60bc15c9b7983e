package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxTokenResponseBytes = 1 << 20

// BodyEncoding selects how a provider expects the token request encoded.
type BodyEncoding string

const (
	BodyForm BodyEncoding = "form"
	BodyJSON BodyEncoding = "json"
)

type TokenRequest struct {
	TokenURL     string
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string
	Encoding     BodyEncoding
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeError carries the provider's verbatim response body so the
// operator can diagnose a rejected exchange.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ExchangeCode redeems an authorization code for tokens. A single attempt,
// no retries: any failure is terminal for this flow.
func ExchangeCode(ctx context.Context, client *http.Client, req TokenRequest) (TokenResponse, error) {
	if req.TokenURL == "" {
		return TokenResponse{}, errors.New("token url is required")
	}
	if req.ClientID == "" {
		return TokenResponse{}, errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return TokenResponse{}, errors.New("redirect uri is required")
	}
	if req.Code == "" {
		return TokenResponse{}, errors.New("authorization code is required")
	}
	if req.CodeVerifier == "" {
		return TokenResponse{}, errors.New("code verifier is required")
	}

	if client == nil {
		client = http.DefaultClient
	}

	httpReq, err := buildTokenRequest(ctx, req)
	if err != nil {
		return TokenResponse{}, err
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return TokenResponse{}, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return TokenResponse{}, errors.New("token response missing access_token")
	}

	return tokens, nil
}

func buildTokenRequest(ctx context.Context, req TokenRequest) (*http.Request, error) {
	var (
		body        string
		contentType string
	)

	switch req.Encoding {
	case BodyJSON:
		payload, err := json.Marshal(map[string]string{
			"grant_type":    "authorization_code",
			"code":          req.Code,
			"redirect_uri":  req.RedirectURI,
			"client_id":     req.ClientID,
			"code_verifier": req.CodeVerifier,
		})
		if err != nil {
			return nil, fmt.Errorf("encode token request: %w", err)
		}
		body = string(payload)
		contentType = "application/json"
	default:
		values := url.Values{}
		values.Set("grant_type", "authorization_code")
		values.Set("code", req.Code)
		values.Set("redirect_uri", req.RedirectURI)
		values.Set("client_id", req.ClientID)
		values.Set("code_verifier", req.CodeVerifier)
		body = values.Encode()
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.TokenURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}
