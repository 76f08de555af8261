package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestSubscriptionFromEnv(t *testing.T) {
	t.Setenv("AZURE_"+EnvSubscriptionID, "")
	t.Setenv(EnvSubscriptionID, "")
	assert.Empty(t, SubscriptionFromEnv())

	t.Setenv("AZURE_"+EnvSubscriptionID, "fallback-sub")
	assert.Equal(t, "fallback-sub", SubscriptionFromEnv())

	t.Setenv(EnvSubscriptionID, "sub")
	assert.Equal(t, "sub", SubscriptionFromEnv())
}

func TestCredentialsFrom_AllSet(t *testing.T) {
	creds, err := credentialsFrom(envMap(map[string]string{
		"TENANT_ID":       "tenant",
		"CLIENT_ID":       "client",
		"CLIENT_SECRET":   "secret",
		"SUBSCRIPTION_ID": "sub",
	}))

	require.NoError(t, err)
	assert.Equal(t, Credentials{
		TenantID:       "tenant",
		ClientID:       "client",
		ClientSecret:   "secret",
		SubscriptionID: "sub",
	}, creds)
}

func TestCredentialsFrom_AzurePrefixFallback(t *testing.T) {
	creds, err := credentialsFrom(envMap(map[string]string{
		"AZURE_TENANT_ID":       "tenant",
		"AZURE_CLIENT_ID":       "client",
		"CLIENT_SECRET":         "secret",
		"AZURE_SUBSCRIPTION_ID": "sub",
	}))

	require.NoError(t, err)
	assert.Equal(t, "tenant", creds.TenantID)
	assert.Equal(t, "sub", creds.SubscriptionID)
}

func TestCredentialsFrom_Missing(t *testing.T) {
	_, err := credentialsFrom(envMap(map[string]string{
		"TENANT_ID": "tenant",
	}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.Contains(t, err.Error(), "CLIENT_ID, CLIENT_SECRET, SUBSCRIPTION_ID")
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("TENANT_ID", "t")
	t.Setenv("CLIENT_ID", "c")
	t.Setenv("CLIENT_SECRET", "s")
	t.Setenv("SUBSCRIPTION_ID", "sub")

	creds, err := CredentialsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sub", creds.SubscriptionID)
}
