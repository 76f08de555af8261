package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingCredentials is returned when a required credential variable is unset.
var ErrMissingCredentials = errors.New("missing azure credentials")

// Credentials identify the service principal and target subscription.
type Credentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// Environment variable names. Each falls back to its AZURE_-prefixed form.
const (
	EnvTenantID       = "TENANT_ID"
	EnvClientID       = "CLIENT_ID"
	EnvClientSecret   = "CLIENT_SECRET"
	EnvSubscriptionID = "SUBSCRIPTION_ID"
)

// CredentialsFromEnv reads the service principal from the environment.
func CredentialsFromEnv() (Credentials, error) {
	return credentialsFrom(os.Getenv)
}

// SubscriptionFromEnv returns the target subscription, or "" when unset.
// Unlike CredentialsFromEnv it needs none of the other variables.
func SubscriptionFromEnv() string {
	return lookupEnv(os.Getenv, EnvSubscriptionID)
}

func lookupEnv(getenv func(string) string, name string) string {
	if v := getenv(name); v != "" {
		return v
	}
	return getenv("AZURE_" + name)
}

func credentialsFrom(getenv func(string) string) (Credentials, error) {
	var missing []string
	lookup := func(name string) string {
		v := lookupEnv(getenv, name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	creds := Credentials{
		TenantID:       lookup(EnvTenantID),
		ClientID:       lookup(EnvClientID),
		ClientSecret:   lookup(EnvClientSecret),
		SubscriptionID: lookup(EnvSubscriptionID),
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: %s not set", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return creds, nil
}
