package broker

import "context"

// Credentials is the key pair of one venue account. The broker holds it read-only and never
// persists it.
type Credentials struct {
	APIKey string
	Secret string
}

// String redacts the secret so credentials can appear in logs safely.
func (c Credentials) String() string {
	key := c.APIKey
	if len(key) > 4 {
		key = key[:4] + "..."
	}
	return "Credentials{APIKey:" + key + " Secret:<redacted>}"
}

// CredentialSource resolves the key pair for an account.
type CredentialSource interface {
	Credentials(ctx context.Context, account string) (Credentials, error)
}
