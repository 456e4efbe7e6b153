package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/fleet-relay/internal/audit"
)

// CommandRequest is the POST /command body.
type CommandRequest struct {
	DeviceID string         `json:"device_id"`
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
}

// CommandResponse carries the outcome of a device command. Success is false
// when the command ran but its target was rejected (missing path, outside
// root).
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

var errAdminRequired = errors.New("admin access required")

// paramError marks a request the caller must fix; it maps to 400.
type paramError string

func (e paramError) Error() string { return string(e) }

// commandFunc runs one device command and returns a message and result.
type commandFunc func(s *Server, r *http.Request, params map[string]any) (string, any, error)

// deviceCommands is the set of commands a registered device may issue.
var deviceCommands = map[string]commandFunc{
	"list":    (*Server).commandList,
	"search":  (*Server).commandSearch,
	"status":  (*Server).commandStatus,
	"devices": (*Server).commandDevices,
	"users":   (*Server).commandUsers,
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || !s.devices.IsRegistered(req.DeviceID) {
		writeForbidden(w, "device not registered")
		return
	}
	if !s.authorizeDevice(r, req.DeviceID) {
		writeForbidden(w, "token does not match device")
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Command))
	fn, ok := deviceCommands[name]
	if !ok {
		writeBadRequest(w, fmt.Sprintf("unknown command: %q", req.Command))
		return
	}

	started := time.Now()
	msg, result, err := fn(s, r, req.Params)
	outcome := audit.OutcomeOK
	var perr paramError
	switch {
	case errors.Is(err, errAdminRequired):
		outcome = audit.OutcomeDenied
		writeForbidden(w, err.Error())
	case errors.As(err, &perr):
		outcome = audit.OutcomeInvalid
		writeBadRequest(w, perr.Error())
	case err != nil:
		outcome = audit.OutcomeFailed
		writeJSON(w, http.StatusOK, CommandResponse{Success: false, Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, CommandResponse{Success: true, Message: msg, Result: result})
	}

	s.logger.Info("device command",
		"device_id", req.DeviceID,
		"command", name,
		"outcome", outcome,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	s.audit.Record(r.Context(), audit.Entry{
		Action:     "api.command." + name,
		EntityType: "device",
		EntityID:   req.DeviceID,
		UserID:     r.Header.Get(headerUserID),
		Source:     audit.SourceAPI,
		Outcome:    outcome,
		Details:    req.Params,
	})
}

func (s *Server) commandList(_ *http.Request, params map[string]any) (string, any, error) {
	path := stringParam(params, "path")
	entries, err := s.files.ListDirectory(path)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d entries", len(entries)), entries, nil
}

func (s *Server) commandSearch(_ *http.Request, params map[string]any) (string, any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return "", nil, paramError("params.query is required")
	}
	results, err := s.files.SearchFiles(query, stringParam(params, "path"))
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d results", len(results)), results, nil
}

func (s *Server) commandStatus(_ *http.Request, _ map[string]any) (string, any, error) {
	st := s.devices.Stats()
	return "relay running", map[string]any{
		"version":          s.version,
		"bot_token_set":    s.botCfg.Token != "",
		"devices_total":    st.Total,
		"devices_online":   st.Online,
		"pending_commands": st.PendingCommands,
		"uptime_seconds":   int64(time.Since(s.startTime).Seconds()),
	}, nil
}

func (s *Server) commandDevices(r *http.Request, _ map[string]any) (string, any, error) {
	if !s.requestingAdmin(r) {
		return "", nil, errAdminRequired
	}
	all := s.devices.GetAllDevices()
	return fmt.Sprintf("%d devices", len(all)), all, nil
}

// userView is a user record with its id, which the stored form omits.
type userView struct {
	ID         string `json:"user_id"`
	Role       string `json:"role"`
	Active     bool   `json:"active"`
	LastActive string `json:"last_active,omitempty"`
}

func (s *Server) commandUsers(r *http.Request, _ map[string]any) (string, any, error) {
	if !s.requestingAdmin(r) {
		return "", nil, errAdminRequired
	}
	all := s.users.GetAllUsers()
	views := make([]userView, 0, len(all))
	for id, u := range all {
		v := userView{ID: id, Role: string(u.Role), Active: u.Active}
		if !u.LastActive.IsZero() {
			v.LastActive = u.LastActive.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return fmt.Sprintf("%d users", len(views)), views, nil
}

// stringParam returns params[key] when it is a string, else "".
func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string) //nolint:errcheck // non-string values are treated as absent
	return strings.TrimSpace(v)
}
