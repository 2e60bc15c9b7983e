// Package providers holds the static per-provider OAuth descriptor table.
// Descriptors are data, not behavior: the flow controller stays
// provider-agnostic and reads everything provider-specific from here.
package providers

import (
	_ "embed"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bnema/modelgw/internal/adapters/auth"
	"github.com/bnema/modelgw/internal/domain"
)

//go:embed descriptors.toml
var rawDescriptors []byte

// Descriptor is the immutable constant set for one OAuth-capable provider.
type Descriptor struct {
	Provider     domain.Provider   `toml:"provider"`
	ClientID     string            `toml:"client_id"`
	AuthorizeURL string            `toml:"authorize_url"`
	TokenURL     string            `toml:"token_url"`
	CallbackPath string            `toml:"callback_path"`
	Scope        string            `toml:"scope"`
	TokenBody    auth.BodyEncoding `toml:"token_body"`
	AuthParams   map[string]string `toml:"auth_params"`
}

// RedirectURI joins the externally reachable base URL with the provider's
// callback path. The result must match what was registered with the
// provider, and is reused byte for byte at exchange time.
func (d Descriptor) RedirectURI(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + d.CallbackPath
}

// Table maps provider tags to descriptors. Flows consult a table rather
// than the package directly so tests can point descriptors at fake
// endpoints.
type Table map[domain.Provider]Descriptor

func (t Table) Lookup(p domain.Provider) (Descriptor, bool) {
	d, ok := t[p]
	return d, ok
}

// Tags returns the OAuth-capable provider tags in detection order.
func (t Table) Tags() []domain.Provider {
	tags := make([]domain.Provider, 0, len(t))
	for _, p := range domain.DetectionOrder {
		if _, ok := t[p]; ok {
			tags = append(tags, p)
		}
	}

	return tags
}

var defaultTable = mustParse(rawDescriptors)

// Default returns the compiled-in descriptor table.
func Default() Table {
	return defaultTable
}

func mustParse(raw []byte) Table {
	var file struct {
		Descriptors []Descriptor `toml:"descriptor"`
	}
	if err := toml.Unmarshal(raw, &file); err != nil {
		panic(fmt.Sprintf("providers: parse embedded descriptors: %v", err))
	}

	table := make(Table, len(file.Descriptors))
	for _, d := range file.Descriptors {
		if d.Provider == "" || d.ClientID == "" || d.AuthorizeURL == "" || d.TokenURL == "" || d.CallbackPath == "" {
			panic(fmt.Sprintf("providers: incomplete descriptor for %q", d.Provider))
		}
		table[d.Provider] = d
	}

	return table
}
