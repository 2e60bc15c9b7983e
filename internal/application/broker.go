// Package application orchestrates the authorization flows: it owns the
// per-provider state machine from start through callback, token exchange
// and persistence.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bnema/modelgw/internal/adapters/auth"
	"github.com/bnema/modelgw/internal/domain"
	"github.com/bnema/modelgw/internal/ports"
	"github.com/bnema/modelgw/internal/providers"
)

// Outcome is the terminal state of one callback delivery.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
)

// CallbackParams carries the query parameters a provider redirect
// delivered to the callback endpoint.
type CallbackParams struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// CallbackResult is what the callback page renders from.
type CallbackResult struct {
	Outcome  Outcome
	Provider domain.Provider
	Err      error
}

type StartResult struct {
	URL   string
	State string
}

// Broker runs authorization flows for every OAuth-capable provider and
// owns all credential writes into the settings document.
type Broker struct {
	store    ports.SettingsStore
	registry *auth.Registry
	table    providers.Table
	baseURL  string
	client   *http.Client
	clock    ports.Clock
	logger   *slog.Logger
}

// Options configures a Broker. Zero values fall back to the compiled-in
// descriptor table, the default HTTP client and the system clock.
type Options struct {
	BaseURL    string
	Table      providers.Table
	HTTPClient *http.Client
	Clock      ports.Clock
	Logger     *slog.Logger
}

func NewBroker(store ports.SettingsStore, opts Options) *Broker {
	if opts.Table == nil {
		opts.Table = providers.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Broker{
		store:    store,
		registry: auth.NewRegistry(),
		table:    opts.Table,
		baseURL:  opts.BaseURL,
		client:   opts.HTTPClient,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Providers returns the OAuth-capable provider tags this broker serves.
func (b *Broker) Providers() []domain.Provider {
	return b.table.Tags()
}

// StartLogin registers a fresh session and returns the provider
// authorization URL for the operator's browser.
func (b *Broker) StartLogin(_ context.Context, provider domain.Provider) (StartResult, error) {
	desc, ok := b.table.Lookup(provider)
	if !ok {
		return StartResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}

	session, err := b.registry.Create(provider)
	if err != nil {
		return StartResult{}, fmt.Errorf("create authorization session: %w", err)
	}

	url, err := auth.BuildAuthorizationURL(auth.AuthorizationRequest{
		AuthorizeURL:  desc.AuthorizeURL,
		ClientID:      desc.ClientID,
		RedirectURI:   desc.RedirectURI(b.baseURL),
		Scope:         desc.Scope,
		State:         session.State,
		CodeChallenge: auth.Challenge(session.Verifier),
		ExtraParams:   desc.AuthParams,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("build authorization url: %w", err)
	}

	b.logger.Info("authorization flow started", "provider", provider)

	return StartResult{URL: url, State: session.State}, nil
}

// CompleteLogin resolves a provider callback to a terminal outcome. The
// session is consumed before the exchange request goes out, so a replayed
// callback can never trigger a second exchange. The settings document is
// mutated only after a fully successful exchange.
func (b *Broker) CompleteLogin(ctx context.Context, provider domain.Provider, params CallbackParams) CallbackResult {
	desc, ok := b.table.Lookup(provider)
	if !ok {
		return CallbackResult{
			Outcome:  OutcomeFailed,
			Provider: provider,
			Err:      fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider),
		}
	}

	if params.ErrorCode != "" {
		err := errors.New(params.ErrorCode)
		if params.ErrorDescription != "" {
			err = fmt.Errorf("%s: %s", params.ErrorCode, params.ErrorDescription)
		}
		b.logger.Warn("provider denied authorization", "provider", provider, "error", err)

		return CallbackResult{Outcome: OutcomeFailed, Provider: provider, Err: err}
	}

	session, err := b.registry.Consume(params.State, provider)
	if err != nil {
		b.logger.Warn("callback carried an invalid or expired session", "provider", provider, "error", err)

		return CallbackResult{Outcome: OutcomeExpired, Provider: provider, Err: err}
	}

	if params.Code == "" {
		err := errors.New("callback is missing the authorization code")
		b.logger.Warn("malformed provider callback", "provider", provider, "error", err)

		return CallbackResult{Outcome: OutcomeFailed, Provider: provider, Err: err}
	}

	tokens, err := auth.ExchangeCode(ctx, b.client, auth.TokenRequest{
		TokenURL:     desc.TokenURL,
		ClientID:     desc.ClientID,
		RedirectURI:  desc.RedirectURI(b.baseURL),
		Code:         params.Code,
		CodeVerifier: session.Verifier,
		Encoding:     desc.TokenBody,
	})
	if err != nil {
		b.logger.Error("token exchange failed", "provider", provider, "error", err)

		return CallbackResult{Outcome: OutcomeFailed, Provider: provider, Err: err}
	}

	if err := b.persistTokens(ctx, provider, tokens); err != nil {
		b.logger.Error("persist exchanged tokens", "provider", provider, "error", err)

		return CallbackResult{Outcome: OutcomeFailed, Provider: provider, Err: err}
	}

	b.logger.Info("authorization flow completed", "provider", provider)

	return CallbackResult{Outcome: OutcomeCompleted, Provider: provider}
}

func (b *Broker) persistTokens(ctx context.Context, provider domain.Provider, tokens auth.TokenResponse) error {
	now := b.clock.Now()

	return b.store.Mutate(ctx, func(doc *domain.Document) error {
		if err := doc.Set(domain.ModelPath(provider, domain.KeyOAuthToken), tokens.AccessToken); err != nil {
			return err
		}

		if tokens.RefreshToken != "" {
			if err := doc.Set(domain.ModelPath(provider, domain.KeyOAuthRefresh), tokens.RefreshToken); err != nil {
				return err
			}
		} else if err := doc.Delete(domain.ModelPath(provider, domain.KeyOAuthRefresh)); err != nil {
			return err
		}

		if tokens.ExpiresIn > 0 {
			expiresAt := now.UnixMilli() + tokens.ExpiresIn*1000
			if err := doc.Set(domain.ModelPath(provider, domain.KeyOAuthExpiresAt), expiresAt); err != nil {
				return err
			}
		} else if err := doc.Delete(domain.ModelPath(provider, domain.KeyOAuthExpiresAt)); err != nil {
			return err
		}

		return doc.Set(domain.ModelPath(provider, domain.KeyAuthMethod), string(domain.AuthMethodOAuth))
	})
}

// Disconnect returns the provider sub-record to an unauthenticated state,
// regardless of which auth method was in effect.
func (b *Broker) Disconnect(ctx context.Context, provider domain.Provider) error {
	err := b.store.Mutate(ctx, func(doc *domain.Document) error {
		for _, key := range []string{
			domain.KeyOAuthToken,
			domain.KeyOAuthRefresh,
			domain.KeyOAuthExpiresAt,
			domain.KeyAuthMethod,
			domain.KeyAPIKey,
		} {
			if err := doc.Delete(domain.ModelPath(provider, key)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", provider, err)
	}

	b.logger.Info("provider disconnected", "provider", provider)

	return nil
}

// SetAPIKey stores a static key and makes it the authoritative credential.
// This path bypasses the OAuth state machine entirely.
func (b *Broker) SetAPIKey(ctx context.Context, provider domain.Provider, key string) error {
	if key == "" {
		return errors.New("api key is empty")
	}

	err := b.store.Mutate(ctx, func(doc *domain.Document) error {
		if err := doc.Set(domain.ModelPath(provider, domain.KeyAPIKey), key); err != nil {
			return err
		}

		return doc.Set(domain.ModelPath(provider, domain.KeyAuthMethod), string(domain.AuthMethodAPIKey))
	})
	if err != nil {
		return fmt.Errorf("set api key for %s: %w", provider, err)
	}

	return nil
}

// Status derives the connection status from the current document. Pure
// read, no side effects.
func (b *Broker) Status(ctx context.Context, provider domain.Provider) (domain.ConnectionStatus, error) {
	doc, err := b.store.Load(ctx)
	if err != nil {
		return domain.ConnectionStatus{}, fmt.Errorf("load settings: %w", err)
	}

	token := doc.Get(domain.ModelPath(provider, domain.KeyOAuthToken)).String()
	apiKey := doc.Get(domain.ModelPath(provider, domain.KeyAPIKey)).String()

	status := domain.ConnectionStatus{Connected: token != "" || apiKey != ""}

	if stored := doc.Get(domain.ModelPath(provider, domain.KeyAuthMethod)); stored.Exists() && stored.String() != "" {
		method := domain.AuthMethod(stored.String())
		status.Method = &method
	} else if apiKey != "" {
		method := domain.AuthMethodAPIKey
		status.Method = &method
	}

	return status, nil
}

// Settings returns the raw bytes of the current document.
func (b *Broker) Settings(ctx context.Context) ([]byte, error) {
	doc, err := b.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return doc.Bytes(), nil
}

// MergeSettings applies a partial document shallowly over the persisted
// one, the way the dashboard's settings editor saves.
func (b *Broker) MergeSettings(ctx context.Context, partial []byte) error {
	err := b.store.Mutate(ctx, func(doc *domain.Document) error {
		return doc.MergeShallow(partial)
	})
	if err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}

	return nil
}
