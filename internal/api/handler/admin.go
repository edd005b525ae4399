package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/api/response"
	"github.com/channellicense/channellicense/internal/licensing"
)

// Administrator manages channels, devices and licenses.
type Administrator interface {
	AddChannel(ctx context.Context, in licensing.ChannelInput) (licensing.Outcome[*licensing.Channel], error)
	EditChannel(ctx context.Context, ref licensing.ChannelRef, patch licensing.ChannelPatch) (licensing.Outcome[*licensing.Channel], error)
	DeleteChannel(ctx context.Context, ref licensing.ChannelRef) (licensing.Outcome[struct{}], error)
	ListChannels(ctx context.Context) ([]*licensing.Channel, error)
	ListDevicesWithLicenses(ctx context.Context, includeExpired bool) ([]*licensing.DeviceWithLicense, error)
	EditLicenseStatus(ctx context.Context, licenseID int64, status string) (licensing.Outcome[*licensing.License], error)
	DeleteDevice(ctx context.Context, ref licensing.DeviceRef, force bool) (licensing.Outcome[struct{}], error)
}

// AdminHandler handles the administrative endpoints.
type AdminHandler struct {
	admin Administrator
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin Administrator) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListChannels handles GET /v1/admin/channels.
func (h *AdminHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.admin.ListChannels(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list channels")
		return
	}

	items := make([]models.Channel, len(channels))
	for i, c := range channels {
		items[i] = toChannel(c)
	}
	response.JSON(w, r, http.StatusOK, models.NewListResponse(items))
}

// CreateChannel handles POST /v1/admin/channels.
func (h *AdminHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req models.ChannelCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := licensing.ChannelInput{Name: req.Name, Description: req.Description}
	if req.MaxDevices != nil {
		in.MaxDevices = *req.MaxDevices
	}
	if req.LicenseDurationDays != nil {
		in.LicenseDurationDays = *req.LicenseDurationDays
	}

	outcome, err := h.admin.AddChannel(r.Context(), in)
	if err != nil {
		response.InternalError(w, r, "failed to create channel")
		return
	}
	if !outcome.OK() {
		response.Failure(w, r, outcome.Failure)
		return
	}

	location := fmt.Sprintf("/v1/admin/channels/%d", outcome.Value.ID)
	response.Created(w, r, location, toChannel(outcome.Value))
}

// UpdateChannel handles PUT /v1/admin/channels/{channelId}. A non-numeric
// path segment is taken as the channel name.
func (h *AdminHandler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	ref := channelRefFromPath(chi.URLParam(r, "channelId"))

	var req models.ChannelUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.admin.EditChannel(r.Context(), ref, licensing.ChannelPatch{
		Name:                req.Name,
		MaxDevices:          req.MaxDevices,
		LicenseDurationDays: req.LicenseDurationDays,
		Description:         req.Description,
	})
	if err != nil {
		response.InternalError(w, r, "failed to update channel")
		return
	}
	if !outcome.OK() {
		response.Failure(w, r, outcome.Failure)
		return
	}

	response.JSON(w, r, http.StatusOK, toChannel(outcome.Value))
}

// DeleteChannel handles DELETE /v1/admin/channels?id=&name=.
func (h *AdminHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, ok := parseOptionalID(w, r, "id", q.Get("id"))
	if !ok {
		return
	}

	outcome, err := h.admin.DeleteChannel(r.Context(), licensing.ChannelRef{ID: id, Name: q.Get("name")})
	if err != nil {
		response.InternalError(w, r, "failed to delete channel")
		return
	}
	if !outcome.OK() {
		response.Failure(w, r, outcome.Failure)
		return
	}

	response.NoContent(w, r)
}

// ListDevices handles GET /v1/admin/devices?includeExpired=.
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	includeExpired := false
	if raw := r.URL.Query().Get("includeExpired"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "includeExpired must be a boolean", []models.FieldError{
				{Field: "includeExpired", Message: "must be true or false", Code: "boolean"},
			})
			return
		}
		includeExpired = v
	}

	devices, err := h.admin.ListDevicesWithLicenses(r.Context(), includeExpired)
	if err != nil {
		response.InternalError(w, r, "failed to list devices")
		return
	}

	items := make([]models.DeviceLicense, len(devices))
	for i, d := range devices {
		items[i] = toDeviceLicense(d)
	}
	response.JSON(w, r, http.StatusOK, models.NewListResponse(items))
}

// DeleteDevice handles DELETE /v1/admin/devices?id=&deviceId=&force=.
func (h *AdminHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, ok := parseOptionalID(w, r, "id", q.Get("id"))
	if !ok {
		return
	}

	force := false
	if raw := q.Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "force must be a boolean", []models.FieldError{
				{Field: "force", Message: "must be true or false", Code: "boolean"},
			})
			return
		}
		force = v
	}

	outcome, err := h.admin.DeleteDevice(r.Context(), licensing.DeviceRef{ID: id, DeviceIDStr: q.Get("deviceId")}, force)
	if err != nil {
		response.InternalError(w, r, "failed to delete device")
		return
	}
	if !outcome.OK() {
		response.Failure(w, r, outcome.Failure)
		return
	}

	response.NoContent(w, r)
}

// UpdateLicenseStatus handles PATCH /v1/admin/licenses/{licenseId}/status.
func (h *AdminHandler) UpdateLicenseStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "licenseId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, r, "licenseId must be a positive integer", nil)
		return
	}

	var req models.LicenseStatusUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.admin.EditLicenseStatus(r.Context(), id, req.Status)
	if err != nil {
		response.InternalError(w, r, "failed to update license status")
		return
	}
	if !outcome.OK() {
		response.Failure(w, r, outcome.Failure)
		return
	}

	response.JSON(w, r, http.StatusOK, toLicense(outcome.Value))
}

func channelRefFromPath(raw string) licensing.ChannelRef {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return licensing.ChannelRef{ID: id}
	}
	return licensing.ChannelRef{Name: raw}
}

// parseOptionalID parses an optional positive integer query parameter.
// Empty means zero.
func parseOptionalID(w http.ResponseWriter, r *http.Request, name, raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, r, name+" must be a positive integer", []models.FieldError{
			{Field: name, Message: "must be a positive integer", Code: "gt"},
		})
		return 0, false
	}
	return id, true
}
