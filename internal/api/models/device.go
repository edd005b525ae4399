package models

// Device is a licensed installation.
type Device struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	ChannelID int64     `json:"channelId"`
	CreatedAt Timestamp `json:"createdAt"`
}

// DeviceLicense is a device with its channel and at most one license.
type DeviceLicense struct {
	Device  Device   `json:"device"`
	Channel Channel  `json:"channel"`
	License *License `json:"license"`
}
