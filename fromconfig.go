package tuyalan

import (
	"fmt"

	"github.com/nexus-edge/tuyalan/config"
)

// DeviceIdentity is the per-device information config.Config doesn't
// carry (it's deployment-wide, not per-device): address, credentials, and
// wire version.
type DeviceIdentity struct {
	Host     string
	Port     int
	DeviceID string
	LocalKey []byte
	Version  Version
}

// NewDeviceFromConfig builds a Device from a typed configuration struct
// plus one device's identity, per SPEC_FULL.md §4.7's config-driven
// construction addition.
func NewDeviceFromConfig(cfg config.Config, identity DeviceIdentity) (*Device, error) {
	policy, err := retryPolicyFromConfig(cfg.Retry)
	if err != nil {
		return nil, err
	}
	dc := DeviceConfig{
		Host:              identity.Host,
		Port:              identity.Port,
		DeviceID:          identity.DeviceID,
		LocalKey:          identity.LocalKey,
		Version:           identity.Version,
		ConnectTimeout:    cfg.Connection.ConnectionTimeout,
		ResponseTimeout:   cfg.Connection.ResponseTimeout,
		HeartbeatInterval: cfg.Connection.HeartbeatInterval,
		AutoReconnect:     cfg.Connection.AutoReconnect,
		ReconnectDelay:    cfg.Connection.ReconnectDelay,
		RetryPolicy:       policy,
		Breaker: BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
		},
	}
	return NewDevice(dc), nil
}

// NewScannerFromConfig builds a Scanner from the scanner section of a
// typed configuration struct.
func NewScannerFromConfig(cfg config.Config) *Scanner {
	return NewScanner(ScannerConfig{
		Ports:    cfg.Scanner.Ports,
		BindAddr: cfg.Scanner.BindAddr,
		Timeout:  cfg.Scanner.Timeout,
	})
}

func retryPolicyFromConfig(rc config.RetryConfig) (RetryPolicy, error) {
	switch rc.Preset {
	case "none":
		return RetryNone, nil
	case "quick":
		return RetryQuick, nil
	case "standard", "":
		return RetryStandard, nil
	case "aggressive":
		return RetryAggressive, nil
	case "custom":
		return RetryPolicy{
			MaxAttempts:     rc.MaxAttempts,
			InitialDelay:    rc.InitialDelay,
			MaxDelay:        rc.MaxDelay,
			Factor:          rc.Factor,
			RetryableErrors: RetryableErrors,
		}, nil
	default:
		return RetryPolicy{}, fmt.Errorf("tuyalan: unknown retry preset %q", rc.Preset)
	}
}
