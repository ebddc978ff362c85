package config

import "context"

// SecretProvider abstracts secret retrieval so the same loader works with
// AWS SSM Parameter Store and with plain environment variables.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a map
	// of path -> plaintext value for every parameter that was found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
