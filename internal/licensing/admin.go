package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reason classifies a failed administrative operation.
type Reason string

// Failure reasons.
const (
	ReasonNotFound      Reason = "not_found"
	ReasonAlreadyExists Reason = "already_exists"
	ReasonHasDependents Reason = "has_dependents"
	ReasonInvalid       Reason = "invalid"
)

// Failure describes why an administrative operation did not happen.
type Failure struct {
	Reason  Reason
	Message string
}

// Outcome is the result of an administrative operation: either a value or
// a failure. Storage errors are reported separately as error.
type Outcome[T any] struct {
	Value   T
	Failure *Failure
}

// OK reports whether the operation succeeded.
func (o Outcome[T]) OK() bool {
	return o.Failure == nil
}

func succeed[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func fail[T any](reason Reason, format string, args ...any) Outcome[T] {
	return Outcome[T]{Failure: &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}}
}

// AdminServiceConfig holds configuration for the admin service.
type AdminServiceConfig struct {
	// Store opens units of work.
	Store Store

	// Logger for admin operations.
	Logger zerolog.Logger

	// Now is the time source for creation stamps and expiry filters.
	Now func() time.Time
}

// AdminService manages channels, devices and licenses. Each method runs in
// its own unit of work.
type AdminService struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewAdminService creates a new admin service.
func NewAdminService(cfg AdminServiceConfig) *AdminService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AdminService{
		store:  cfg.Store,
		logger: cfg.Logger,
		now:    now,
	}
}

// AddChannel creates a channel. Zero MaxDevices or LicenseDurationDays take
// the package defaults.
func (s *AdminService) AddChannel(ctx context.Context, in ChannelInput) (Outcome[*Channel], error) {
	if in.MaxDevices == 0 {
		in.MaxDevices = DefaultMaxDevices
	}
	if in.LicenseDurationDays == 0 {
		in.LicenseDurationDays = DefaultLicenseDurationDays
	}
	if msg := validateChannel(in.Name, in.MaxDevices, in.LicenseDurationDays); msg != "" {
		return fail[*Channel](ReasonInvalid, "%s", msg), nil
	}

	var out Outcome[*Channel]
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		_, err := repo.GetChannelByName(ctx, in.Name)
		switch {
		case err == nil:
			out = fail[*Channel](ReasonAlreadyExists, "channel already exists: %s", in.Name)
			return nil
		case !errors.Is(err, ErrChannelNotFound):
			return err
		}

		channel := &Channel{
			Name:                in.Name,
			MaxDevices:          in.MaxDevices,
			LicenseDurationDays: in.LicenseDurationDays,
			Description:         in.Description,
			CreatedAt:           s.now(),
		}
		if err := repo.CreateChannel(ctx, channel); err != nil {
			if errors.Is(err, ErrDuplicate) {
				out = fail[*Channel](ReasonAlreadyExists, "channel already exists: %s", in.Name)
				return nil
			}
			return err
		}
		out = succeed(channel)
		return nil
	})
	if err != nil {
		return Outcome[*Channel]{}, err
	}

	if out.OK() {
		s.logger.Info().Int64("channel_id", out.Value.ID).Str("channel", out.Value.Name).Msg("channel added")
	}
	return out, nil
}

// EditChannel applies the non-nil fields of patch to the referenced channel.
func (s *AdminService) EditChannel(ctx context.Context, ref ChannelRef, patch ChannelPatch) (Outcome[*Channel], error) {
	if ref.IsZero() {
		return fail[*Channel](ReasonInvalid, "channel id or name required"), nil
	}

	var out Outcome[*Channel]
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		channel, err := findChannel(ctx, repo, ref)
		if err != nil {
			if errors.Is(err, ErrChannelNotFound) {
				out = fail[*Channel](ReasonNotFound, "channel not found")
				return nil
			}
			return err
		}

		if patch.Name != nil && *patch.Name != channel.Name {
			other, err := repo.GetChannelByName(ctx, *patch.Name)
			switch {
			case err == nil && other.ID != channel.ID:
				out = fail[*Channel](ReasonAlreadyExists, "channel already exists: %s", *patch.Name)
				return nil
			case err != nil && !errors.Is(err, ErrChannelNotFound):
				return err
			}
			channel.Name = *patch.Name
		}
		if patch.MaxDevices != nil {
			channel.MaxDevices = *patch.MaxDevices
		}
		if patch.LicenseDurationDays != nil {
			channel.LicenseDurationDays = *patch.LicenseDurationDays
		}
		if patch.Description != nil {
			description := *patch.Description
			channel.Description = &description
		}

		if msg := validateChannel(channel.Name, channel.MaxDevices, channel.LicenseDurationDays); msg != "" {
			out = fail[*Channel](ReasonInvalid, "%s", msg)
			return nil
		}

		if err := repo.UpdateChannel(ctx, channel); err != nil {
			if errors.Is(err, ErrDuplicate) {
				out = fail[*Channel](ReasonAlreadyExists, "channel already exists: %s", channel.Name)
				return nil
			}
			return err
		}
		out = succeed(channel)
		return nil
	})
	if err != nil {
		return Outcome[*Channel]{}, err
	}

	if out.OK() {
		s.logger.Info().Int64("channel_id", out.Value.ID).Str("channel", out.Value.Name).Msg("channel updated")
	}
	return out, nil
}

// DeleteChannel removes the referenced channel. A channel that still has
// devices is kept.
func (s *AdminService) DeleteChannel(ctx context.Context, ref ChannelRef) (Outcome[struct{}], error) {
	if ref.IsZero() {
		return fail[struct{}](ReasonInvalid, "channel id or name required"), nil
	}

	var out Outcome[struct{}]
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		channel, err := findChannel(ctx, repo, ref)
		if err != nil {
			if errors.Is(err, ErrChannelNotFound) {
				out = fail[struct{}](ReasonNotFound, "channel not found")
				return nil
			}
			return err
		}

		count, err := repo.CountDevicesInChannel(ctx, channel.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			out = fail[struct{}](ReasonHasDependents, "channel has devices and cannot be deleted")
			return nil
		}

		if err := repo.DeleteChannel(ctx, channel.ID); err != nil {
			if errors.Is(err, ErrRestricted) {
				out = fail[struct{}](ReasonHasDependents, "channel has devices and cannot be deleted")
				return nil
			}
			return err
		}

		s.logger.Info().Int64("channel_id", channel.ID).Str("channel", channel.Name).Msg("channel deleted")
		return nil
	})
	if err != nil {
		return Outcome[struct{}]{}, err
	}
	return out, nil
}

// ListChannels returns every channel ordered by ascending ID.
func (s *AdminService) ListChannels(ctx context.Context) ([]*Channel, error) {
	var channels []*Channel
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		var err error
		channels, err = repo.ListChannels(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// ListDevicesWithLicenses returns every device with its channel and at most
// one license. Without includeExpired the license is the latest active,
// unexpired one; with it, the license with the greatest expiry of any status.
func (s *AdminService) ListDevicesWithLicenses(ctx context.Context, includeExpired bool) ([]*DeviceWithLicense, error) {
	now := s.now()

	var items []*DeviceWithLicense
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		devices, err := repo.ListDevices(ctx)
		if err != nil {
			return err
		}

		channels := make(map[int64]*Channel)
		items = make([]*DeviceWithLicense, 0, len(devices))
		for _, device := range devices {
			channel, ok := channels[device.ChannelID]
			if !ok {
				channel, err = repo.GetChannel(ctx, device.ChannelID)
				if err != nil {
					return err
				}
				channels[device.ChannelID] = channel
			}

			var license *License
			if includeExpired {
				license, err = repo.LatestLicense(ctx, device.ID)
			} else {
				license, err = repo.LatestActiveLicense(ctx, device.ID, now)
			}
			if err != nil && !errors.Is(err, ErrLicenseNotFound) {
				return err
			}

			items = append(items, &DeviceWithLicense{
				Device:  device,
				Channel: channel,
				License: license,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// EditLicenseStatus stores status on the license verbatim.
func (s *AdminService) EditLicenseStatus(ctx context.Context, licenseID int64, status string) (Outcome[*License], error) {
	if status == "" {
		return fail[*License](ReasonInvalid, "status required"), nil
	}

	var out Outcome[*License]
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		if err := repo.UpdateLicenseStatus(ctx, licenseID, status); err != nil {
			if errors.Is(err, ErrLicenseNotFound) {
				out = fail[*License](ReasonNotFound, "license not found")
				return nil
			}
			return err
		}

		license, err := repo.GetLicense(ctx, licenseID)
		if err != nil {
			return err
		}
		out = succeed(license)
		return nil
	})
	if err != nil {
		return Outcome[*License]{}, err
	}

	if out.OK() {
		s.logger.Info().Int64("license_id", licenseID).Str("status", status).Msg("license status updated")
	}
	return out, nil
}

// DeleteDevice removes the referenced device. A device that has licenses is
// kept unless force is set, in which case its licenses are deleted first.
func (s *AdminService) DeleteDevice(ctx context.Context, ref DeviceRef, force bool) (Outcome[struct{}], error) {
	if ref.IsZero() {
		return fail[struct{}](ReasonInvalid, "device id or device_id required"), nil
	}

	var out Outcome[struct{}]
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		device, err := findDevice(ctx, repo, ref)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				out = fail[struct{}](ReasonNotFound, "device not found")
				return nil
			}
			return err
		}

		count, err := repo.CountLicensesForDevice(ctx, device.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			if !force {
				out = fail[struct{}](ReasonHasDependents, "device has licenses and cannot be deleted")
				return nil
			}
			if err := repo.DeleteLicensesForDevice(ctx, device.ID); err != nil {
				return err
			}
		}

		if err := repo.DeleteDevice(ctx, device.ID); err != nil {
			if errors.Is(err, ErrRestricted) {
				out = fail[struct{}](ReasonHasDependents, "device has licenses and cannot be deleted")
				return nil
			}
			return err
		}

		s.logger.Info().
			Int64("device_id", device.ID).
			Str("device", device.DeviceIDStr).
			Int("licenses_deleted", count).
			Msg("device deleted")
		return nil
	})
	if err != nil {
		return Outcome[struct{}]{}, err
	}
	return out, nil
}

func findChannel(ctx context.Context, repo Repository, ref ChannelRef) (*Channel, error) {
	if ref.ID != 0 {
		return repo.GetChannel(ctx, ref.ID)
	}
	return repo.GetChannelByName(ctx, ref.Name)
}

func findDevice(ctx context.Context, repo Repository, ref DeviceRef) (*Device, error) {
	if ref.ID != 0 {
		return repo.GetDevice(ctx, ref.ID)
	}
	return repo.GetDeviceByIDStr(ctx, ref.DeviceIDStr)
}

func validateChannel(name string, maxDevices, durationDays int) string {
	switch {
	case name == "":
		return "channel name required"
	case maxDevices <= 0:
		return "max_devices must be positive"
	case durationDays <= 0:
		return "license_duration_days must be positive"
	}
	return ""
}
