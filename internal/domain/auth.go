package domain

// AuthMethod indicates which stored credential is authoritative for a
// provider. When absent from the document, presence of an apiKey implies
// key-based auth.
type AuthMethod string

const (
	AuthMethodOAuth  AuthMethod = "oauth"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// ConnectionStatus is the dashboard-facing view of a provider sub-record.
// Method is nil when no credential is stored.
type ConnectionStatus struct {
	Connected bool        `json:"connected"`
	Method    *AuthMethod `json:"method"`
}
