// -----------------------------------------------------------------------
// Service Settings - process-wide operator settings persisted as YAML
// -----------------------------------------------------------------------

package models

import "fmt"

// VerificationMode selects how backups are verified.
type VerificationMode string

const (
	VerificationFast        VerificationMode = "fast"
	VerificationChecksum    VerificationMode = "checksum"
	VerificationVerifyAfter VerificationMode = "verify_after"
)

func (m VerificationMode) Valid() bool {
	return m == VerificationFast || m == VerificationChecksum || m == VerificationVerifyAfter
}

// Settings are the process-wide operator settings stored in
// settings.yaml. Unknown keys in the file are rejected on load.
type Settings struct {
	// DefaultBandwidthLimit in KB/s applied to new jobs. Zero means unlimited.
	DefaultBandwidthLimit int `yaml:"default_bandwidth_limit" json:"default_bandwidth_limit"`
	// AutoStartOnLaunch launches pending jobs when the service starts.
	AutoStartOnLaunch bool `yaml:"auto_start_on_launch" json:"auto_start_on_launch"`
	// NetworkCheckInterval in seconds between connectivity probes.
	NetworkCheckInterval int `yaml:"network_check_interval" json:"network_check_interval"`
	// MaxRetryAttempts bounds the engine-internal transient retry loop.
	MaxRetryAttempts int `yaml:"max_retry_attempts" json:"max_retry_attempts"`
	// AutoRefreshInterval in seconds for client-side refresh hints.
	AutoRefreshInterval int `yaml:"auto_refresh_interval" json:"auto_refresh_interval"`
	// VerificationMode selects the default verify strategy.
	VerificationMode VerificationMode `yaml:"verification_mode" json:"verification_mode"`
}

// DefaultSettings returns the built-in settings values.
func DefaultSettings() Settings {
	return Settings{
		DefaultBandwidthLimit: 0,
		AutoStartOnLaunch:     false,
		NetworkCheckInterval:  30,
		MaxRetryAttempts:      10,
		AutoRefreshInterval:   2,
		VerificationMode:      VerificationFast,
	}
}

// Validate checks enum fields and numeric ranges.
func (s *Settings) Validate() error {
	if !s.VerificationMode.Valid() {
		return fmt.Errorf("unknown verification mode %q", s.VerificationMode)
	}
	if s.DefaultBandwidthLimit < 0 {
		return fmt.Errorf("default_bandwidth_limit must not be negative")
	}
	if s.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must not be negative")
	}
	return nil
}
