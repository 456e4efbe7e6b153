package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/device"
)

// adminNoticeTimeout bounds the best-effort registration notice.
const adminNoticeTimeout = 5 * time.Second

// RegisterRequest is the POST /register body. Both fields are optional.
type RegisterRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// RegisterResponse is returned with 201 on successful registration.
type RegisterResponse struct {
	Success  bool           `json:"success"`
	DeviceID string         `json:"device_id"`
	Device   *device.Device `json:"device"`
	Token    string         `json:"token,omitempty"`
}

// HeartbeatRequest is the POST /heartbeat body. A missing online_status
// means online.
type HeartbeatRequest struct {
	DeviceID     string `json:"device_id"`
	OnlineStatus *bool  `json:"online_status"`
}

// HeartbeatResponse tells the device how many commands are waiting.
type HeartbeatResponse struct {
	Success         bool `json:"success"`
	PendingCommands int  `json:"pending_commands"`
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// handleListDevices returns every registered device keyed by id. Only an
// active admin named in X-User-ID may read it.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !s.requestingAdmin(r) {
		writeForbidden(w, "admin access required")
		return
	}
	writeJSON(w, http.StatusOK, s.devices.GetAllDevices())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}
	if !s.mayRegister(w, r, req.DeviceID) {
		return
	}

	d, err := s.devices.RegisterDevice(req.DeviceID, req.DeviceName)
	switch {
	case errors.Is(err, device.ErrInvalidDeviceID), errors.Is(err, device.ErrInvalidName):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case err != nil:
		s.logger.Error("registering device failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to register device")
		return
	}

	resp := RegisterResponse{Success: true, DeviceID: d.ID, Device: d}
	if s.jwtEnabled() {
		ttl := time.Duration(s.secCfg.JWT.DeviceTokenTTL) * time.Hour
		token, tokErr := auth.GenerateDeviceToken(d.ID, s.secCfg.JWT.Secret, ttl)
		if tokErr != nil {
			s.logger.Error("issuing device token failed", "device_id", d.ID, "error", tokErr)
			writeInternalError(w, "failed to issue device token")
			return
		}
		resp.Token = token
	}

	s.notifyAdmin(r.Context(), fmt.Sprintf("New device registered:\nName: %s\nID: %s", d.Name, d.ID))
	writeJSON(w, http.StatusCreated, resp)
}

// mayRegister guards re-registration when JWTs are enabled: an id that is
// already registered can only be re-registered with that device's own
// token. It writes the error response and returns false when refused.
func (s *Server) mayRegister(w http.ResponseWriter, r *http.Request, deviceID string) bool {
	if !s.jwtEnabled() || !s.devices.IsRegistered(deviceID) {
		return true
	}

	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device already registered")
		return false
	}
	claims, err := auth.ParseDeviceToken(raw, s.secCfg.JWT.Secret)
	if err != nil || claims.DeviceID() != deviceID {
		s.logger.Warn("re-registration refused", "device_id", deviceID, "request_id", r.Context().Value(ctxKeyRequestID))
		writeForbidden(w, "token does not match device")
		return false
	}
	return true
}

// notifyAdmin sends text to the configured admin. Failures are logged only.
func (s *Server) notifyAdmin(ctx context.Context, text string) {
	if s.notifier == nil || s.botCfg.AdminID == "" {
		return
	}
	chatID, err := strconv.ParseInt(s.botCfg.AdminID, 10, 64)
	if err != nil {
		s.logger.Warn("admin id is not numeric, skipping notice", "admin_id", s.botCfg.AdminID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, adminNoticeTimeout)
	defer cancel()
	if err := s.notifier.SendText(ctx, chatID, text); err != nil {
		s.logger.Warn("admin notice failed", "error", err)
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}
	if !s.authorizeDevice(r, req.DeviceID) {
		writeForbidden(w, "token does not match device")
		return
	}

	online := true
	if req.OnlineStatus != nil {
		online = *req.OnlineStatus
	}

	if err := s.devices.UpdateDeviceStatus(req.DeviceID, online); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		s.logger.Error("heartbeat update failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to record heartbeat")
		return
	}

	pending := s.devices.PendingCount(req.DeviceID)
	if s.metrics != nil {
		s.metrics.WriteHeartbeat(req.DeviceID, online, pending)
	}
	writeJSON(w, http.StatusOK, HeartbeatResponse{Success: true, PendingCommands: pending})
}

// handleNextCommand pops the oldest queued command: 200 with the command,
// 204 when the queue is empty.
func (s *Server) handleNextCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeDevice(r, id) {
		writeForbidden(w, "token does not match device")
		return
	}
	if !s.devices.IsRegistered(id) {
		writeNotFound(w, "device not registered")
		return
	}

	cmd, ok := s.devices.GetNextCommand(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}
