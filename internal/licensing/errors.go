package licensing

import (
	"errors"
	"fmt"
)

// Repository errors.
var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrLicenseNotFound = errors.New("license not found")

	// ErrDuplicate is returned when an insert or update would break a
	// uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")

	// ErrRestricted is returned when a write would orphan child rows or
	// reference a missing parent.
	ErrRestricted = errors.New("row is still referenced")
)

// ErrDeviceLimitExceeded matches any *DeviceLimitExceededError.
var ErrDeviceLimitExceeded = errors.New("device limit exceeded")

// ChannelNotFoundError rejects a request for a new device against an unknown channel.
type ChannelNotFoundError struct {
	Channel string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel not found: %s", e.Channel)
}

// Unwrap lets errors.Is match ErrChannelNotFound.
func (e *ChannelNotFoundError) Unwrap() error {
	return ErrChannelNotFound
}

// DeviceLimitExceededError rejects a new device when its channel is full.
type DeviceLimitExceededError struct {
	Channel    string
	MaxDevices int
}

func (e *DeviceLimitExceededError) Error() string {
	return fmt.Sprintf("channel %s has reached its device limit of %d", e.Channel, e.MaxDevices)
}

// Unwrap lets errors.Is match ErrDeviceLimitExceeded.
func (e *DeviceLimitExceededError) Unwrap() error {
	return ErrDeviceLimitExceeded
}

// IsRejection reports whether err is one of the two business rejections the
// engine raises, as opposed to a storage failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrDeviceLimitExceeded)
}
