package models

// Channel is a named device quota with its license policy.
type Channel struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	MaxDevices          int       `json:"maxDevices"`
	LicenseDurationDays int       `json:"licenseDurationDays"`
	Description         *string   `json:"description,omitempty"`
	CreatedAt           Timestamp `json:"createdAt"`
}

// ChannelCreateRequest is the request body for creating a channel.
// Omitted numbers take the server defaults.
type ChannelCreateRequest struct {
	Name                string  `json:"name" validate:"required,max=255"`
	MaxDevices          *int    `json:"maxDevices,omitempty" validate:"omitempty,gt=0"`
	LicenseDurationDays *int    `json:"licenseDurationDays,omitempty" validate:"omitempty,gt=0"`
	Description         *string `json:"description,omitempty"`
}

// ChannelUpdateRequest is the request body for a partial channel update.
type ChannelUpdateRequest struct {
	Name                *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	MaxDevices          *int    `json:"maxDevices,omitempty" validate:"omitempty,gt=0"`
	LicenseDurationDays *int    `json:"licenseDurationDays,omitempty" validate:"omitempty,gt=0"`
	Description         *string `json:"description,omitempty"`
}
