package config

import "os"

const (
	_apiKeyEnv    = "BINANCE_API_KEY"
	_apiSecretEnv = "BINANCE_API_SECRET"
)

// Credentials are injected into the exchange client and never stored in
// config files.
type Credentials struct {
	APIKey    string
	APISecret string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		APIKey:    os.Getenv(_apiKeyEnv),
		APISecret: os.Getenv(_apiSecretEnv),
	}
}

func (c Credentials) IsEmpty() bool {
	return c.APIKey == ""
}

// String hides the secret when credentials end up in logs.
func (c Credentials) String() string {
	if c.IsEmpty() {
		return "<anonymous>"
	}
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:4] + "****"
}
