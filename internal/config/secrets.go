package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: envName+"_FILE"
// names a file holding the value and takes precedence over envName itself.
// An unset secret is the empty string.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read secret %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Secrets are the credentials the engine may need.
type Secrets struct {
	PostgresPassword string
	MQTTPassword     string
	OperatorPassword string
	AdminPassword    string
}

// LoadSecrets resolves every secret, reporting all unreadable files at once.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	var errs []error
	for _, item := range []struct {
		env string
		dst *string
	}{
		{"PGPASSWORD", &s.PostgresPassword},
		{"MQTT_PASSWORD", &s.MQTTPassword},
		{"STRIDEQUEST_OPERATOR_PASSWORD", &s.OperatorPassword},
		{"STRIDEQUEST_ADMIN_PASSWORD", &s.AdminPassword},
	} {
		v, err := ResolveSecret(item.env)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*item.dst = v
	}
	return s, errors.Join(errs...)
}
