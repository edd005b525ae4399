package handler

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/api/response"
	"github.com/channellicense/channellicense/internal/database"
	"github.com/channellicense/channellicense/internal/licensing"
)

// LicenseRequester issues licenses.
type LicenseRequester interface {
	RequestLicense(ctx context.Context, req licensing.LicenseRequest) (*licensing.Issuance, error)
}

// LicenseHandler handles the public license endpoint.
type LicenseHandler struct {
	service LicenseRequester
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(service LicenseRequester) *LicenseHandler {
	return &LicenseHandler{service: service}
}

// RequestLicense handles POST /v1/licenses/request.
func (h *LicenseHandler) RequestLicense(w http.ResponseWriter, r *http.Request) {
	var req models.LicenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issuance, err := h.service.RequestLicense(r.Context(), licensing.LicenseRequest{
		DeviceID:  req.DeviceID,
		Channel:   req.Channel,
		RequestIP: clientIP(r),
	})
	if err != nil {
		var (
			notFound *licensing.ChannelNotFoundError
			full     *licensing.DeviceLimitExceededError
		)
		switch {
		case errors.As(err, &notFound):
			response.Problem(w, r, models.KindChannelNotFound, notFound.Error())
		case errors.As(err, &full):
			response.Problem(w, r, models.KindDeviceLimitExceeded, full.Error())
		case errors.Is(err, licensing.ErrDuplicate) || database.IsConflict(err):
			response.Conflict(w, r, "concurrent request for this device, retry")
		default:
			response.InternalError(w, r, "license request failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, toGrant(issuance))
}

// clientIP returns the caller's address without port. chi's RealIP
// middleware has already replaced RemoteAddr from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
