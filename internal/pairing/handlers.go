// Package pairing — HTTP-слой поверх реестра: валидация входа и маппинг
// исходов реестра в коды ответа. Собственного состояния не держит.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"nura/internal/middleware"
	"nura/internal/models"
	"nura/internal/registry"
)

const maxBodyBytes = 1 << 16

const noDeviceDetail = "No device connected to this user."

// Registry — то, что нужно обработчикам от реестра устройств.
type Registry interface {
	Claim(ctx context.Context, deviceID, code, user string) (models.ClaimOutcome, error)
	StatusForUser(ctx context.Context, user string) (models.StatusView, error)
	Provision(ctx context.Context, code string) (*models.Device, error)
	SetStatus(ctx context.Context, deviceID string, st models.Status) (*models.Device, error)
}

type Handler struct {
	reg Registry
}

func NewHandler(reg Registry) *Handler { return &Handler{reg: reg} }

// decode читает JSON-тело. allowEmpty — пустое тело не ошибка.
func decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body", nil)
	return false
}

func invalid(w http.ResponseWriter, fields map[string]string) {
	models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid input", fields)
}

func identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required", nil)
	}
	return id, ok
}

func contention(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	models.WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable",
		registry.ErrContention.Error(), nil)
}

func serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	middleware.Log(r).WithError(err).Error(msg)
	models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error",
		"unexpected server error (see logs by reqid)", map[string]any{"reqid": middleware.GetRequestID(r)})
}

// POST /api/device/connect/
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req ClaimRequest
	if !decode(w, r, &req, false) {
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.ActivationCode = strings.TrimSpace(req.ActivationCode)
	if errs := fieldErrors(req); errs != nil {
		invalid(w, errs)
		return
	}

	out, err := h.reg.Claim(r.Context(), req.DeviceID, req.ActivationCode, id.UserID)
	switch {
	case err == nil:
		models.WriteJSON(w, http.StatusOK, ClaimResponse{Detail: string(out.Status), DeviceID: out.DeviceID})
	case errors.Is(err, registry.ErrNotFound):
		// один и тот же ответ для чужого id и неверного кода
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", registry.ErrNotFound.Error(), nil)
	case errors.Is(err, registry.ErrOwnershipConflict):
		models.WriteProblem(w, http.StatusConflict, "Conflict", registry.ErrOwnershipConflict.Error(), nil)
	case errors.Is(err, registry.ErrInvalidInput):
		invalid(w, nil)
	case errors.Is(err, registry.ErrContention):
		contention(w)
	default:
		serverError(w, r, err, "claim failed")
	}
}

// GET /api/device/status/
// "Нет подключённого устройства" — это 200 с status=disconnected, а не ошибка.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	v, err := h.reg.StatusForUser(r.Context(), id.UserID)
	if err != nil {
		serverError(w, r, err, "status query failed")
		return
	}
	if v.Status != models.StatusConnected {
		models.WriteJSON(w, http.StatusOK, StatusResponse{Status: models.StatusDisconnected, Detail: noDeviceDetail})
		return
	}
	models.WriteJSON(w, http.StatusOK, StatusResponse{Status: v.Status, DeviceID: v.DeviceID})
}

// POST /api/device/create_test_device/ (только admin)
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}
	var req ProvisionRequest
	if !decode(w, r, &req, true) {
		return
	}
	req.ActivationCode = strings.TrimSpace(req.ActivationCode)
	if errs := fieldErrors(req); errs != nil {
		invalid(w, errs)
		return
	}

	d, err := h.reg.Provision(r.Context(), req.ActivationCode)
	switch {
	case err == nil:
		middleware.Log(r).WithField("device_id", d.DeviceID).Info("test device created")
		models.WriteJSON(w, http.StatusCreated, ProvisionResponse{
			DeviceID:       d.DeviceID,
			ActivationCode: d.ActivationCode,
			Status:         d.Status,
			CreatedAt:      d.CreatedAt,
		})
	case errors.Is(err, registry.ErrDuplicateCode):
		invalid(w, map[string]string{"activation_code": "device with this activation code already exists"})
	case errors.Is(err, registry.ErrInvalidInput):
		invalid(w, nil)
	default:
		serverError(w, r, err, "provision failed")
	}
}

// PUT /api/device/{device_id}/liveness/ (сервисный секрет)
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]
	var req LivenessRequest
	if !decode(w, r, &req, false) {
		return
	}
	if errs := fieldErrors(req); errs != nil {
		invalid(w, errs)
		return
	}
	st, err := models.ParseStatus(req.Status)
	if err != nil {
		invalid(w, map[string]string{"status": err.Error()})
		return
	}

	d, err := h.reg.SetStatus(r.Context(), deviceID, st)
	switch {
	case err == nil:
		models.WriteJSON(w, http.StatusOK, LivenessResponse{DeviceID: d.DeviceID, Status: d.Status, LastSeen: d.LastSeen})
	case errors.Is(err, registry.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "device not found", nil)
	case errors.Is(err, registry.ErrUnowned):
		models.WriteProblem(w, http.StatusConflict, "Conflict", "device has no owner and cannot be connected", nil)
	case errors.Is(err, registry.ErrInvalidInput):
		invalid(w, nil)
	case errors.Is(err, registry.ErrContention):
		contention(w)
	default:
		serverError(w, r, err, "liveness report failed")
	}
}
