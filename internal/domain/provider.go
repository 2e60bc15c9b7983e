package domain

import "fmt"

// Provider identifies an AI-provider sub-record in the settings document.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderOpenCode  Provider = "opencode"
	ProviderAnthropic Provider = "anthropic"
)

// DetectionOrder is the order in which a missing models.provider value is
// inferred from present sub-records. Older documents predate the explicit
// top-level provider key, so the order is fixed to keep them deterministic.
var DetectionOrder = []Provider{ProviderOpenAI, ProviderOpenCode, ProviderAnthropic}

func ParseProvider(raw string) (Provider, error) {
	switch Provider(raw) {
	case ProviderOpenAI, ProviderOpenCode, ProviderAnthropic:
		return Provider(raw), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
}

func (p Provider) String() string {
	return string(p)
}
