package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bnema/modelgw/internal/domain"
)

func methodPtr(m domain.AuthMethod) *domain.AuthMethod {
	return &m
}

func TestRenderConnectedOAuthProvider(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	output := Render([]Row{
		{
			Provider:  domain.ProviderOpenAI,
			Status:    domain.ConnectionStatus{Connected: true, Method: methodPtr(domain.AuthMethodOAuth)},
			ExpiresAt: now.Add(13 * time.Hour),
		},
	}, RenderOptions{Now: now})

	assert.Contains(t, output, "providers: 1")
	assert.Contains(t, output, "openai")
	assert.Contains(t, output, "connected")
	assert.Contains(t, output, "via oauth")
	assert.Contains(t, output, "token expires in 13 hours (00:00)")
}

func TestRenderExpiredTokenIsFlagged(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	output := Render([]Row{
		{
			Provider:  domain.ProviderAnthropic,
			Status:    domain.ConnectionStatus{Connected: true, Method: methodPtr(domain.AuthMethodOAuth)},
			ExpiresAt: now.Add(-2 * time.Hour),
		},
	}, RenderOptions{Now: now})

	assert.Contains(t, output, "token expired 2 hours ago")
}

func TestRenderAPIKeyProviderHasNoExpiry(t *testing.T) {
	t.Parallel()

	output := Render([]Row{
		{
			Provider: domain.ProviderAnthropic,
			Status:   domain.ConnectionStatus{Connected: true, Method: methodPtr(domain.AuthMethodAPIKey)},
		},
	}, RenderOptions{Now: time.Now()})

	assert.Contains(t, output, "via api_key")
	assert.NotContains(t, output, "token expires")
}

func TestRenderDisconnectedProvider(t *testing.T) {
	t.Parallel()

	output := Render([]Row{
		{Provider: domain.ProviderOpenAI, Status: domain.ConnectionStatus{}},
	}, RenderOptions{})

	assert.Contains(t, output, "not connected")
}

func TestRenderEmptyList(t *testing.T) {
	t.Parallel()

	output := Render(nil, RenderOptions{})
	assert.Contains(t, output, "No providers configured.")
}
