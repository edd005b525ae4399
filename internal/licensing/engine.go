package licensing

import (
	"context"
	"errors"
	"time"
)

// Decision describes how a license request was resolved.
type Decision string

const (
	// DecisionExisting means an active, unexpired license was returned unchanged.
	DecisionExisting Decision = "existing"
	// DecisionRenewed means a known device received a new license.
	DecisionRenewed Decision = "renewed"
	// DecisionAdmitted means a new device was admitted and licensed.
	DecisionAdmitted Decision = "admitted"
)

// Issuance is the result of a license request.
type Issuance struct {
	License  *License
	Device   *Device
	Channel  *Channel
	Decision Decision
}

// Engine resolves (device, channel) pairs to licenses. It holds no storage
// handle of its own; every call works against the Repository of the caller's
// unit of work and never commits.
type Engine struct {
	now     func() time.Time
	makeKey KeyGenerator
	version string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the time source used for expiry checks and new expiries.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithKeyGenerator replaces the placeholder key scheme.
func WithKeyGenerator(gen KeyGenerator) EngineOption {
	return func(e *Engine) {
		e.makeKey = gen
	}
}

// NewEngine creates a new licensing engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now:     time.Now,
		makeKey: PlaceholderKey,
		version: CurrentLicenseVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestLicense returns the license for deviceIDStr, minting one when the
// device has no active, unexpired license.
//
// A device seen for the first time is admitted into channelName if that
// channel exists and holds fewer than MaxDevices devices. A known device is
// always relicensed on its own channel; channelName is ignored for it and the
// quota is not re-checked.
func (e *Engine) RequestLicense(ctx context.Context, repo Repository, deviceIDStr, channelName, requestIP string) (*License, error) {
	issuance, err := e.Resolve(ctx, repo, deviceIDStr, channelName, requestIP)
	if err != nil {
		return nil, err
	}
	return issuance.License, nil
}

// Resolve is RequestLicense with the full decision attached.
func (e *Engine) Resolve(ctx context.Context, repo Repository, deviceIDStr, channelName, requestIP string) (*Issuance, error) {
	now := e.now()

	device, err := repo.GetDeviceByIDStr(ctx, deviceIDStr)
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	var (
		channel  *Channel
		decision Decision
	)

	if device != nil {
		current, err := repo.LatestActiveLicense(ctx, device.ID, now)
		switch {
		case err == nil:
			return &Issuance{License: current, Device: device, Decision: DecisionExisting}, nil
		case !errors.Is(err, ErrLicenseNotFound):
			return nil, err
		}

		channel, err = repo.GetChannel(ctx, device.ChannelID)
		if err != nil {
			return nil, err
		}
		decision = DecisionRenewed
	} else {
		channel, err = repo.GetChannelByName(ctx, channelName)
		if err != nil {
			if errors.Is(err, ErrChannelNotFound) {
				return nil, &ChannelNotFoundError{Channel: channelName}
			}
			return nil, err
		}

		// Counted before the insert so membership never exceeds MaxDevices.
		count, err := repo.CountDevicesInChannel(ctx, channel.ID)
		if err != nil {
			return nil, err
		}
		if count >= channel.MaxDevices {
			return nil, &DeviceLimitExceededError{Channel: channel.Name, MaxDevices: channel.MaxDevices}
		}

		device = &Device{
			DeviceIDStr: deviceIDStr,
			ChannelID:   channel.ID,
			CreatedAt:   now,
		}
		if err := repo.CreateDevice(ctx, device); err != nil {
			return nil, err
		}
		decision = DecisionAdmitted
	}

	expiresAt := now.Add(time.Duration(channel.LicenseDurationDays) * 24 * time.Hour)

	var ip *string
	if requestIP != "" {
		ip = &requestIP
	}

	license := &License{
		LicenseKey: e.makeKey(deviceIDStr, expiresAt),
		Version:    e.version,
		RequestIP:  ip,
		Status:     StatusActive,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		DeviceID:   device.ID,
	}
	if err := repo.CreateLicense(ctx, license); err != nil {
		return nil, err
	}

	return &Issuance{License: license, Device: device, Channel: channel, Decision: decision}, nil
}
