package licensing

import (
	"context"
	"time"
)

// Repository defines the persistence operations over channels, devices and
// licenses. Implementations are bound to one unit of work and never commit.
type Repository interface {
	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, id int64) (*Channel, error)

	// GetChannelByName retrieves a channel by its unique name.
	GetChannelByName(ctx context.Context, name string) (*Channel, error)

	// ListChannels retrieves all channels ordered by ascending ID.
	ListChannels(ctx context.Context) ([]*Channel, error)

	// CreateChannel inserts a channel and sets its ID.
	CreateChannel(ctx context.Context, channel *Channel) error

	// UpdateChannel overwrites the mutable fields of an existing channel.
	UpdateChannel(ctx context.Context, channel *Channel) error

	// DeleteChannel deletes a channel by ID.
	DeleteChannel(ctx context.Context, id int64) error

	// GetDevice retrieves a device by ID.
	GetDevice(ctx context.Context, id int64) (*Device, error)

	// GetDeviceByIDStr retrieves a device by its external identifier.
	GetDeviceByIDStr(ctx context.Context, deviceIDStr string) (*Device, error)

	// ListDevices retrieves all devices ordered by ascending ID.
	ListDevices(ctx context.Context) ([]*Device, error)

	// CountDevicesInChannel counts the devices that reference a channel.
	CountDevicesInChannel(ctx context.Context, channelID int64) (int, error)

	// CreateDevice inserts a device and sets its ID.
	CreateDevice(ctx context.Context, device *Device) error

	// DeleteDevice deletes a device by ID.
	DeleteDevice(ctx context.Context, id int64) error

	// GetLicense retrieves a license by ID.
	GetLicense(ctx context.Context, id int64) (*License, error)

	// LatestActiveLicense returns the license of a device with status "active"
	// and ExpiresAt after now that has the greatest ExpiresAt.
	// Returns ErrLicenseNotFound when none qualifies.
	LatestActiveLicense(ctx context.Context, deviceID int64, now time.Time) (*License, error)

	// LatestLicense returns the license of a device with the greatest
	// ExpiresAt regardless of status. Returns ErrLicenseNotFound when the
	// device has no licenses.
	LatestLicense(ctx context.Context, deviceID int64) (*License, error)

	// CountLicensesForDevice counts the licenses of a device.
	CountLicensesForDevice(ctx context.Context, deviceID int64) (int, error)

	// CreateLicense inserts a license and sets its ID.
	CreateLicense(ctx context.Context, license *License) error

	// UpdateLicenseStatus overwrites the status of a license.
	UpdateLicenseStatus(ctx context.Context, id int64, status string) error

	// DeleteLicensesForDevice deletes every license of a device.
	DeleteLicensesForDevice(ctx context.Context, deviceID int64) error
}

// Store opens units of work. The Repository handed to fn is only valid for
// the duration of the call; the work is committed when fn returns nil and
// rolled back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
}
