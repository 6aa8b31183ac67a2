package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"POS_FIRESTORE_PROJECT_ID": "barbery-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Messaging.ProjectID != "barbery-dev" {
		t.Errorf("expected messaging project to default to firestore project, got %s", cfg.Messaging.ProjectID)
	}
	if cfg.Messaging.Topic != defaultMessagingTopic {
		t.Errorf("unexpected default messaging topic: %s", cfg.Messaging.Topic)
	}
	if cfg.Polling.Interval != defaultPollInterval {
		t.Errorf("unexpected default poll interval: %s", cfg.Polling.Interval)
	}
	if cfg.Polling.Ceiling != defaultPollCeiling {
		t.Errorf("unexpected default poll ceiling: %s", cfg.Polling.Ceiling)
	}
	if cfg.PaymentLink.BaseURL != defaultPaymentLinkBase {
		t.Errorf("unexpected default payment link base: %s", cfg.PaymentLink.BaseURL)
	}
	if !cfg.Invoicing.Enabled {
		t.Error("expected invoicing enabled by default")
	}
	if cfg.Invoicing.CounterID != defaultInvoiceCounter {
		t.Errorf("unexpected default invoice counter: %s", cfg.Invoicing.CounterID)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"POS_SERVER_PORT":                "9090",
		"POS_SERVER_READ_TIMEOUT":        "20s",
		"POS_SERVER_IDLE_TIMEOUT":        "2m",
		"POS_FIRESTORE_PROJECT_ID":       "barbery-prod",
		"POS_GATEWAY_STRIPE_API_KEY":     "secret://stripe/api",
		"POS_GATEWAY_HOSTED_SUCCESS_URL": "https://pos.example.com/checkout/success",
		"POS_MESSAGING_PROJECT_ID":       "barbery-msg",
		"POS_MESSAGING_TOPIC":            "pay-requests",
		"POS_PAYMENT_LINK_BASE_URL":      "https://pay.example.com/c",
		"POS_POLL_INTERVAL":              "2s",
		"POS_POLL_CEILING":               "90s",
		"POS_INVOICING_ENABLED":          "false",
	}

	secrets := map[string]string{
		"secret://stripe/api": "stripe-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Gateway.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Gateway.StripeAPIKey)
	}
	if cfg.Gateway.HostedSuccessURL != "https://pos.example.com/checkout/success" {
		t.Errorf("unexpected hosted success url %s", cfg.Gateway.HostedSuccessURL)
	}
	if cfg.Messaging.ProjectID != "barbery-msg" {
		t.Errorf("unexpected messaging project %s", cfg.Messaging.ProjectID)
	}
	if cfg.Messaging.Topic != "pay-requests" {
		t.Errorf("unexpected messaging topic %s", cfg.Messaging.Topic)
	}
	if cfg.PaymentLink.BaseURL != "https://pay.example.com/c" {
		t.Errorf("unexpected payment link base %s", cfg.PaymentLink.BaseURL)
	}
	if cfg.Polling.Interval != 2*time.Second {
		t.Errorf("unexpected poll interval %s", cfg.Polling.Interval)
	}
	if cfg.Polling.Ceiling != 90*time.Second {
		t.Errorf("unexpected poll ceiling %s", cfg.Polling.Ceiling)
	}
	if cfg.Invoicing.Enabled {
		t.Error("expected invoicing disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "POS_SERVER_PORT=7070\nPOS_FIRESTORE_PROJECT_ID=barbery-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "barbery-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"POS_FIRESTORE_PROJECT_ID":   "barbery-dev",
		"POS_GATEWAY_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "POS_FIRESTORE_PROJECT_ID=dot-project\nPOS_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("POS_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("POS_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"POS_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["POS_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["POS_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["POS_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"POS_FIRESTORE_PROJECT_ID": "barbery-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Gateway.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Gateway.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"POS_FIRESTORE_PROJECT_ID":   "barbery-dev",
		"POS_GATEWAY_STRIPE_API_KEY": "sm://stripe/api",
	}

	secrets := map[string]string{
		"secret://stripe/api": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.StripeAPIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Gateway.StripeAPIKey)
	}
}
