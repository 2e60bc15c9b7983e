package application

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/modelgw/internal/adapters/auth"
	"github.com/bnema/modelgw/internal/adapters/settings"
	"github.com/bnema/modelgw/internal/domain"
	"github.com/bnema/modelgw/internal/providers"
)

const testBaseURL = "http://gateway.test"

func newTestBroker(t *testing.T, tokenURL string) (*Broker, *settings.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := settings.NewStoreAtPath(filepath.Join(t.TempDir(), "settings.json"), logger)
	require.NoError(t, err)

	table := providers.Table{
		domain.ProviderOpenAI: {
			Provider:     domain.ProviderOpenAI,
			ClientID:     "client-test",
			AuthorizeURL: "https://auth.example.com/oauth/authorize",
			TokenURL:     tokenURL,
			CallbackPath: "/auth/openai/callback",
			Scope:        "openid profile",
			TokenBody:    auth.BodyForm,
		},
	}

	broker := NewBroker(store, Options{
		BaseURL: testBaseURL,
		Table:   table,
		Logger:  logger,
	})

	return broker, store
}

func TestStartLoginReturnsAuthorizationURLBoundToSession(t *testing.T) {
	t.Parallel()

	broker, _ := newTestBroker(t, "https://auth.example.com/oauth/token")

	result, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	require.NotEmpty(t, result.State)

	parsed, err := url.Parse(result.URL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, result.State, q.Get("state"))
	assert.Equal(t, auth.ChallengeMethodS256, q.Get("code_challenge_method"))
	assert.Equal(t, testBaseURL+"/auth/openai/callback", q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestStartLoginRejectsProviderWithoutDescriptor(t *testing.T) {
	t.Parallel()

	broker, _ := newTestBroker(t, "https://auth.example.com/oauth/token")

	_, err := broker.StartLogin(context.Background(), domain.ProviderOpenCode)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestCompleteLoginPersistsTokensAndAuthMethod(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, testBaseURL+"/auth/openai/callback", r.Form.Get("redirect_uri"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T","refresh_token":"R","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	broker, store := newTestBroker(t, tokenServer.URL)

	started, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	result := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, CallbackParams{
		Code:  "code-abc",
		State: started.State,
	})
	after := time.Now().UnixMilli()

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Get("models.openai.oauth_token").String())
	assert.Equal(t, "R", doc.Get("models.openai.oauth_refresh_token").String())
	assert.Equal(t, "oauth", doc.Get("models.openai.auth_method").String())

	expiresAt := doc.Get("models.openai.oauth_expires_at").Int()
	assert.GreaterOrEqual(t, expiresAt, before+3600*1000)
	assert.LessOrEqual(t, expiresAt, after+3600*1000)

	status, err := broker.Status(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.Method)
	assert.Equal(t, domain.AuthMethodOAuth, *status.Method)
}

func TestCompleteLoginLeavesExistingAPIKeyInPlace(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T"}`))
	}))
	defer tokenServer.Close()

	broker, store := newTestBroker(t, tokenServer.URL)
	require.NoError(t, broker.SetAPIKey(context.Background(), domain.ProviderOpenAI, "sk-old"))

	started, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)

	result := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, CallbackParams{
		Code:  "code-abc",
		State: started.State,
	})
	require.Equal(t, OutcomeCompleted, result.Outcome)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	// The key survives but is no longer authoritative.
	assert.Equal(t, "sk-old", doc.Get("models.openai.apiKey").String())
	assert.Equal(t, "oauth", doc.Get("models.openai.auth_method").String())
	// No lifetime reported, so no expiry is stored.
	assert.False(t, doc.Get("models.openai.oauth_expires_at").Exists())
	assert.False(t, doc.Get("models.openai.oauth_refresh_token").Exists())
}

func TestCompleteLoginProviderErrorSkipsExchange(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("token endpoint must not be called on a provider-denied callback")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer tokenServer.Close()

	broker, store := newTestBroker(t, tokenServer.URL)

	started, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)

	result := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, CallbackParams{
		State:            started.State,
		ErrorCode:        "access_denied",
		ErrorDescription: "the operator said no",
	})
	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "the operator said no")

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Get("models.openai.oauth_token").Exists())
}

func TestCompleteLoginRejectsUnknownState(t *testing.T) {
	t.Parallel()

	broker, _ := newTestBroker(t, "https://auth.example.com/oauth/token")

	result := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, CallbackParams{
		Code:  "code-abc",
		State: "never-issued",
	})
	assert.Equal(t, OutcomeExpired, result.Outcome)
	assert.ErrorIs(t, result.Err, domain.ErrSessionNotFound)
}

func TestCompleteLoginRejectsReplayedCallback(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	broker, _ := newTestBroker(t, tokenServer.URL)

	started, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)

	params := CallbackParams{Code: "code-abc", State: started.State}
	first := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, params)
	require.Equal(t, OutcomeCompleted, first.Outcome)

	replay := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, params)
	assert.Equal(t, OutcomeExpired, replay.Outcome)
}

func TestCompleteLoginExchangeFailureWritesNothing(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer tokenServer.Close()

	broker, store := newTestBroker(t, tokenServer.URL)

	started, err := broker.StartLogin(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)

	result := broker.CompleteLogin(context.Background(), domain.ProviderOpenAI, CallbackParams{
		Code:  "code-abc",
		State: started.State,
	})
	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "invalid_client")

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Get("models.openai").Exists())

	status, err := broker.Status(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Nil(t, status.Method)
}

func TestDisconnectReturnsProviderToUnauthenticated(t *testing.T) {
	t.Parallel()

	broker, store := newTestBroker(t, "https://auth.example.com/oauth/token")

	require.NoError(t, store.Mutate(context.Background(), func(doc *domain.Document) error {
		if err := doc.Set("models.openai.oauth_token", "T"); err != nil {
			return err
		}
		if err := doc.Set("models.openai.apiKey", "sk-x"); err != nil {
			return err
		}
		return doc.Set("models.openai.auth_method", "oauth")
	}))

	require.NoError(t, broker.Disconnect(context.Background(), domain.ProviderOpenAI))

	status, err := broker.Status(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Nil(t, status.Method)
}

func TestSetAPIKeyBypassesOAuthStateMachine(t *testing.T) {
	t.Parallel()

	broker, _ := newTestBroker(t, "https://auth.example.com/oauth/token")

	require.NoError(t, broker.SetAPIKey(context.Background(), domain.ProviderOpenAI, "sk-fresh"))

	status, err := broker.Status(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.Method)
	assert.Equal(t, domain.AuthMethodAPIKey, *status.Method)
}

func TestStatusInfersAPIKeyMethodWhenMethodAbsent(t *testing.T) {
	t.Parallel()

	broker, store := newTestBroker(t, "https://auth.example.com/oauth/token")

	require.NoError(t, store.Mutate(context.Background(), func(doc *domain.Document) error {
		return doc.Set("models.openai.apiKey", "sk-x")
	}))

	status, err := broker.Status(context.Background(), domain.ProviderOpenAI)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.Method)
	assert.Equal(t, domain.AuthMethodAPIKey, *status.Method)
}

func TestMergeSettingsAppliesShallowPatch(t *testing.T) {
	t.Parallel()

	broker, store := newTestBroker(t, "https://auth.example.com/oauth/token")

	require.NoError(t, broker.MergeSettings(context.Background(), []byte(`{"channels":{"discord":{"enabled":true}}}`)))

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, doc.Get("channels.discord.enabled").Bool())
}
