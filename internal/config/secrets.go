package config

import (
	"context"
	"fmt"
)

// SecretProvider resolves a batch of secret names to their plaintext values.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// RuntimeSecrets are the values the pipeline needs at run time.
type RuntimeSecrets struct {
	WeatherAPIKey SecretString
	SlackWebhook  SecretString
}

// NewSecretProvider picks the provider named by SECRETS_PROVIDER.
//
//nolint:ireturn
func NewSecretProvider(cfg Secrets) SecretProvider {
	if cfg.Provider == ProviderSSM {
		return NewSSMProvider(cfg.AWSRegion)
	}
	return NewEnvVarProvider()
}

// ResolveSecrets fetches the API key and webhook URL and fails if either is missing or empty.
func ResolveSecrets(ctx context.Context, p SecretProvider, cfg Secrets) (RuntimeSecrets, error) {
	keys := []string{cfg.WeatherAPIKey, cfg.SlackWebhook}
	values, err := p.GetParametersBatch(ctx, keys)
	if err != nil {
		return RuntimeSecrets{}, fmt.Errorf("resolve secrets: %w", err)
	}

	for _, k := range keys {
		if values[k] == "" {
			return RuntimeSecrets{}, fmt.Errorf("resolve secrets: %q is missing or empty", k)
		}
	}

	return RuntimeSecrets{
		WeatherAPIKey: SecretString(values[cfg.WeatherAPIKey]),
		SlackWebhook:  SecretString(values[cfg.SlackWebhook]),
	}, nil
}
