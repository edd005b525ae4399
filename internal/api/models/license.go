package models

// LicenseRequest is the request body for POST /v1/licenses/request.
type LicenseRequest struct {
	DeviceID string `json:"deviceId" validate:"required,max=255"`
	Channel  string `json:"channel" validate:"required,max=255"`
}

// License is an issued license.
type License struct {
	ID         int64     `json:"id"`
	LicenseKey string    `json:"licenseKey"`
	Version    string    `json:"version"`
	Status     string    `json:"status"`
	RequestIP  *string   `json:"requestIp,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"`
	ExpiresAt  Timestamp `json:"expiresAt"`
}

// LicenseGrant is the response body of a successful license request.
type LicenseGrant struct {
	License
	DeviceID string `json:"deviceId"`
	Channel  string `json:"channel,omitempty"`

	// Decision is one of existing, renewed or admitted.
	Decision string `json:"decision"`
}

// LicenseStatusUpdateRequest is the request body for PATCH /v1/admin/licenses/{licenseId}/status.
type LicenseStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}
