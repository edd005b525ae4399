package handler

import (
	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/licensing"
)

func toChannel(c *licensing.Channel) models.Channel {
	return models.Channel{
		ID:                  c.ID,
		Name:                c.Name,
		MaxDevices:          c.MaxDevices,
		LicenseDurationDays: c.LicenseDurationDays,
		Description:         c.Description,
		CreatedAt:           models.Timestamp(c.CreatedAt),
	}
}

func toDevice(d *licensing.Device) models.Device {
	return models.Device{
		ID:        d.ID,
		DeviceID:  d.DeviceIDStr,
		ChannelID: d.ChannelID,
		CreatedAt: models.Timestamp(d.CreatedAt),
	}
}

func toLicense(l *licensing.License) models.License {
	return models.License{
		ID:         l.ID,
		LicenseKey: l.LicenseKey,
		Version:    l.Version,
		Status:     l.Status,
		RequestIP:  l.RequestIP,
		CreatedAt:  models.Timestamp(l.CreatedAt),
		ExpiresAt:  models.Timestamp(l.ExpiresAt),
	}
}

func toGrant(iss *licensing.Issuance) models.LicenseGrant {
	grant := models.LicenseGrant{
		License:  toLicense(iss.License),
		Decision: string(iss.Decision),
	}
	if iss.Device != nil {
		grant.DeviceID = iss.Device.DeviceIDStr
	}
	if iss.Channel != nil {
		grant.Channel = iss.Channel.Name
	}
	return grant
}

func toDeviceLicense(d *licensing.DeviceWithLicense) models.DeviceLicense {
	out := models.DeviceLicense{
		Device:  toDevice(d.Device),
		Channel: toChannel(d.Channel),
	}
	if d.License != nil {
		l := toLicense(d.License)
		out.License = &l
	}
	return out
}
