package config

import "context"

// SecretProvider resolves parameter paths to plaintext values. Production uses
// SSM Parameter Store; local development reads the environment.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every path it could
	// resolve. Unknown paths are omitted, not errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
