// Package licensing issues and tracks per-device licenses grouped by channel.
package licensing

import (
	"time"
)

// CurrentLicenseVersion is the format tag stamped on every newly issued license.
const CurrentLicenseVersion = "1.0"

// Channel defaults applied when an administrator omits a value.
const (
	DefaultMaxDevices          = 1000
	DefaultLicenseDurationDays = 30
)

// License status values assigned by the service. Administrators may store
// any other string through EditLicenseStatus.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

// Channel is a named quota and policy bucket for devices.
type Channel struct {
	ID                  int64
	Name                string
	MaxDevices          int
	LicenseDurationDays int
	Description         *string
	CreatedAt           time.Time
}

// Device is one installation, bound to the channel it was first admitted into.
type Device struct {
	ID          int64
	DeviceIDStr string
	ChannelID   int64
	CreatedAt   time.Time
}

// License is one issued credential for a device. ExpiresAt is fixed at issuance.
type License struct {
	ID         int64
	LicenseKey string
	Version    string
	RequestIP  *string
	Status     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	DeviceID   int64
}

// IsActiveAt reports whether the license is active and unexpired at t.
func (l *License) IsActiveAt(t time.Time) bool {
	return l.Status == StatusActive && l.ExpiresAt.After(t)
}

// DeviceWithLicense pairs a device with its channel and at most one license.
type DeviceWithLicense struct {
	Device  *Device
	Channel *Channel
	License *License
}

// ChannelRef locates a channel by ID or, when ID is zero, by name.
type ChannelRef struct {
	ID   int64
	Name string
}

// IsZero reports whether neither key is set.
func (r ChannelRef) IsZero() bool {
	return r.ID == 0 && r.Name == ""
}

// DeviceRef locates a device by ID or, when ID is zero, by its external identifier.
type DeviceRef struct {
	ID          int64
	DeviceIDStr string
}

// IsZero reports whether neither key is set.
func (r DeviceRef) IsZero() bool {
	return r.ID == 0 && r.DeviceIDStr == ""
}

// ChannelInput holds the fields for creating a channel.
type ChannelInput struct {
	Name                string
	MaxDevices          int
	LicenseDurationDays int
	Description         *string
}

// ChannelPatch holds a partial channel update. Nil fields are left untouched.
type ChannelPatch struct {
	Name                *string
	MaxDevices          *int
	LicenseDurationDays *int
	Description         *string
}

func copyChannel(c *Channel) *Channel {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.Description != nil {
		val := *c.Description
		cpy.Description = &val
	}
	return &cpy
}

func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

func copyLicense(l *License) *License {
	if l == nil {
		return nil
	}
	cpy := *l
	if l.RequestIP != nil {
		val := *l.RequestIP
		cpy.RequestIP = &val
	}
	return &cpy
}
