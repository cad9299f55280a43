package config

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrSecretNotFound is returned when a secret has no value.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves named secrets.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, def string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct {
	lookup func(string) (string, bool)
}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{lookup: os.LookupEnv}
}

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Secret names consulted by LoadSecrets.
const (
	SecretSQLDSN          = "READQUEST_SECRET_SQL_DSN"
	SecretRedisPassword   = "READQUEST_SECRET_REDIS_PASSWORD"
	SecretWebhookSecret   = "READQUEST_SECRET_WEBHOOK"
	SecretAnalyticsAPIKey = "READQUEST_SECRET_ANALYTICS_API_KEY"
)

// LoadSecrets fills credentials from store, keeping configured values when a
// secret is absent.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) {
	c.Storage.SQL.DSN = store.GetWithDefault(ctx, SecretSQLDSN, c.Storage.SQL.DSN)
	c.Storage.Redis.Password = store.GetWithDefault(ctx, SecretRedisPassword, c.Storage.Redis.Password)
	c.Integrations.WebhookSecret = store.GetWithDefault(ctx, SecretWebhookSecret, c.Integrations.WebhookSecret)
	c.Integrations.AnalyticsAPIKey = store.GetWithDefault(ctx, SecretAnalyticsAPIKey, c.Integrations.AnalyticsAPIKey)
}

// LoadSecretsFromEnv is LoadSecrets backed by the environment.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) {
	c.LoadSecrets(ctx, NewEnvironmentSecretStore())
}
