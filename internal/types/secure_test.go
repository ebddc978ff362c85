package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "redis://:hunter2@cache.internal:6379/0"

func TestSecretString_FormattingIsRedacted(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%+v"} {
		result := fmt.Sprintf(verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
		if result != redactedPlaceholder {
			t.Errorf("fmt.Sprintf(%s) = %q, want %q", verb, result, redactedPlaceholder)
		}
	}
}

func TestSecretString_MarshalJSON_InStruct(t *testing.T) {
	type storeConfig struct {
		URL     SecretString `json:"url"`
		Backend string       `json:"backend"`
	}

	data, err := json.Marshal(storeConfig{URL: SecretString(testSecret), Backend: "redis"})
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}

	result := string(data)
	if strings.Contains(result, testSecret) {
		t.Errorf("json.Marshal leaked the raw secret: %s", result)
	}
	if !strings.Contains(result, redactedPlaceholder) {
		t.Errorf("json.Marshal did not contain redacted placeholder: %s", result)
	}
}

func TestSecretString_SlogIsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("store configured", slog.Any("url", SecretString(testSecret)))

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("slog output leaked the raw secret: %s", buf.String())
	}
}

func TestSecretString_UnmaskAndIsSet(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want %q", s.Unmask(), testSecret)
	}
	if !s.IsSet() {
		t.Error("IsSet() should be true for a non-empty secret")
	}
	if SecretString("").IsSet() {
		t.Error("IsSet() should be false for an empty secret")
	}
}
