package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contains the static runtime settings for the connection gateway.
// LiveKit credentials are deliberately not part of this struct: they are
// re-read per request through a LiveKitSource so that fixing a broken
// environment does not require a restart.
type Config struct {
	BindAddr              string        `envconfig:"APP_BIND_ADDR" default:":8080"`
	ShutdownTimeout       time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	ProvisionTimeout      time.Duration `envconfig:"APP_PROVISION_TIMEOUT" default:"5s"`
	RegistrySweepInterval time.Duration `envconfig:"APP_REGISTRY_SWEEP_INTERVAL" default:"30s"`
	MetricsNamespace      string        `envconfig:"APP_METRICS_NAMESPACE" default:"kairos"`
	LogLevel              string        `envconfig:"APP_LOG_LEVEL" default:"info"`
	LogPretty             bool          `envconfig:"APP_LOG_PRETTY" default:"false"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.ProvisionTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_PROVISION_TIMEOUT must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.RegistrySweepInterval < time.Second {
		return Config{}, fmt.Errorf("APP_REGISTRY_SWEEP_INTERVAL must be at least 1s")
	}
	return cfg, nil
}

// LiveKit is the credential triple used to sign every token and to
// authenticate room provisioning calls.
type LiveKit struct {
	APIKey    string
	APISecret string
	URL       string
}

// Validate reports whether the triple is complete. Any missing value is a
// fatal configuration error for the request being served.
func (l LiveKit) Validate() error {
	var missing []string
	if l.APIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if l.APISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if l.URL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// LiveKitSource supplies the credential triple for a single request.
type LiveKitSource func() LiveKit

// LiveKitFromEnv reads the triple from the process environment. It is
// called once per request, not cached, so the gateway recovers as soon as
// the environment is corrected.
func LiveKitFromEnv() LiveKit {
	return LiveKit{
		APIKey:    strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("LIVEKIT_API_SECRET")),
		URL:       strings.TrimSpace(os.Getenv("LIVEKIT_URL")),
	}
}
