package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/devicehub/internal/model"
)

// DeviceServiceInterface はデバイスハンドラーが必要とするサービスインターフェース。
type DeviceServiceInterface interface {
	RegisterDevice(ctx context.Context, userID, name, deviceID, deviceType string) (*model.Device, error)
	ListDevices(ctx context.Context, userID string) ([]*model.Device, error)
	ControlDevice(ctx context.Context, userID, deviceID, command string) (string, error)
	DeleteDevice(ctx context.Context, userID, deviceID string) error
}

// DeviceHandler はデバイス管理のHTTPハンドラー。
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler はDeviceHandlerを生成する。
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{service: service}
}

type registerDeviceRequest struct {
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
	Type     string `json:"type"`
}

type controlDeviceRequest struct {
	DeviceID string `json:"deviceId"`
	Command  string `json:"command"`
}

// deviceResponse はデバイス情報のAPIレスポンス。
// 既存のモバイルクライアントに合わせてcamelCaseで返す。
type deviceResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	DeviceID  string    `json:"deviceId"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
}

type controlDeviceResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// Register はデバイス登録を処理する。
// POST /api/iot/register
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req registerDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	device, err := h.service.RegisterDevice(r.Context(), userID, req.Name, req.DeviceID, req.Type)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(device))
}

// MyDevices はユーザーのデバイス一覧を返す。
// GET /api/iot/my-devices
func (h *DeviceHandler) MyDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	devices, err := h.service.ListDevices(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]deviceResponse, len(devices))
	for i, d := range devices {
		resp[i] = toDeviceResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Control はデバイスへの制御コマンドを処理する。
// POST /api/iot/control
func (h *DeviceHandler) Control(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req controlDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := h.service.ControlDevice(r.Context(), userID, req.DeviceID, req.Command)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, controlDeviceResponse{Success: true, Status: status})
}

// Delete はデバイスを削除する。
// DELETE /api/iot/devices/{deviceId}
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteDevice(r.Context(), userID, chi.URLParam(r, "deviceId")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toDeviceResponse(d *model.Device) deviceResponse {
	return deviceResponse{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		DeviceID:  d.DeviceID,
		Type:      string(d.Type),
		Status:    d.Status,
		LastSeen:  d.LastSeen,
		CreatedAt: d.CreatedAt,
	}
}
