package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Settings holds all corral configuration. The option set is closed: unknown
// keys in config.yaml fail loading instead of being silently ignored.
type Settings struct {
	Claim      ClaimSettings      `mapstructure:"claim"`
	Validation ValidationSettings `mapstructure:"validation"`
	Audit      AuditSettings      `mapstructure:"audit"`
}

// ClaimSettings controls the claim coordinator.
type ClaimSettings struct {
	// StaleAfter is how long a claim may go without a heartbeat before it
	// is eligible for forced release.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// MaxRetries bounds the read-verify-write retry cycle on conflict.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the delay between conflict retries.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ValidationSettings controls the validation pipeline.
type ValidationSettings struct {
	// Timeout is the per-task budget for running all configured validators.
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditSettings controls the audit trail.
type AuditSettings struct {
	// Enabled toggles recording to the audit database.
	Enabled bool `mapstructure:"enabled"`
	// Retain is how long audit events are kept before pruning.
	Retain time.Duration `mapstructure:"retain"`
}

// Load reads settings from the resolved directory's config.yaml, layered over
// built-in defaults and CORRAL_* environment overrides. A missing file is
// fine; an unknown key is not.
func Load(dir *Dir) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(dir.SettingsPath())
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading %s: %w", dir.SettingsPath(), err)
			}
		}
	}

	v.SetEnvPrefix("CORRAL")
	v.AutomaticEnv()
	v.BindEnv("claim.stale_after", "CORRAL_STALE_AFTER")
	v.BindEnv("claim.max_retries", "CORRAL_MAX_RETRIES")

	s := &Settings{}
	strict := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}
	if err := v.Unmarshal(s, strict); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Default returns Settings with built-in defaults.
func Default() *Settings {
	return &Settings{
		Claim: ClaimSettings{
			StaleAfter:   15 * time.Minute,
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Validation: ValidationSettings{
			Timeout: 5 * time.Minute,
		},
		Audit: AuditSettings{
			Enabled: true,
			Retain:  30 * 24 * time.Hour,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("claim.stale_after", d.Claim.StaleAfter.String())
	v.SetDefault("claim.max_retries", d.Claim.MaxRetries)
	v.SetDefault("claim.retry_backoff", d.Claim.RetryBackoff.String())
	v.SetDefault("validation.timeout", d.Validation.Timeout.String())
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.retain", d.Audit.Retain.String())
}

func (s *Settings) validate() error {
	if s.Claim.StaleAfter <= 0 {
		return fmt.Errorf("claim.stale_after must be positive, got %s", s.Claim.StaleAfter)
	}
	if s.Claim.MaxRetries < 1 {
		return fmt.Errorf("claim.max_retries must be at least 1, got %d", s.Claim.MaxRetries)
	}
	if s.Claim.RetryBackoff < 0 {
		return fmt.Errorf("claim.retry_backoff must not be negative, got %s", s.Claim.RetryBackoff)
	}
	if s.Validation.Timeout <= 0 {
		return fmt.Errorf("validation.timeout must be positive, got %s", s.Validation.Timeout)
	}
	return nil
}
