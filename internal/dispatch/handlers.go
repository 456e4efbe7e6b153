package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/files"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
	"github.com/nerrad567/fleet-relay/internal/relay"
	"github.com/nerrad567/fleet-relay/internal/telegram"
)

const displayTimeLayout = "2006-01-02 15:04:05"

func (d *Dispatcher) handleStart(ctx context.Context, req request) (string, error) {
	d.sendMessage(ctx, telegram.OutgoingMessage{
		ChatID:      req.chatID,
		Text:        menuText,
		ReplyMarkup: menuKeyboard(),
	})
	return "", nil
}

func (d *Dispatcher) handleStatus(_ context.Context, _ request) (string, error) {
	st := d.devices.Stats()
	return fmt.Sprintf("%s\nDevices: %d online / %d total\nPending commands: %d",
		MsgStatus, st.Online, st.Total, st.PendingCommands), nil
}

func (d *Dispatcher) handleList(_ context.Context, req request) (string, error) {
	path := "."
	if len(req.args) > 0 {
		path = req.args[0]
	}

	entries, err := d.files.ListDirectory(path)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No files found in " + path, nil
	}
	return formatEntries("Files in "+path+":", entries, maxListEntries), nil
}

func (d *Dispatcher) handleSearch(_ context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("Please provide a search query.\nUsage: /search <query>")
	}
	query := strings.Join(req.args, " ")

	results, err := d.files.SearchFiles(query, ".")
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No files found matching: " + query, nil
	}
	return formatEntries(fmt.Sprintf("Search results for '%s':", query), results, maxSearchEntries), nil
}

func (d *Dispatcher) handleDownload(ctx context.Context, req request) (string, error) {
	if !d.opts.EnableDownload {
		return "File download is disabled.", nil
	}
	if len(req.args) == 0 {
		return "", usageError("Please provide a file path.\nUsage: /download <file_path>")
	}
	path := req.args[0]

	f, size, err := d.files.Open(path)
	if errors.Is(err, files.ErrNotFound) {
		return "File not found: " + path, nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	caption := fmt.Sprintf("%s (%s)", path, files.FormatSize(size))
	if err := d.msgr.SendDocument(ctx, req.chatID, filepath.Base(path), f, caption); err != nil {
		return "", fmt.Errorf("sending %s: %w", path, err)
	}
	d.logger.Info("file downloaded", "user_id", req.userID, "path", path, "size", size)
	return "", nil
}

func (d *Dispatcher) handleDelete(_ context.Context, req request) (string, error) {
	if !d.opts.EnableDelete {
		return "File deletion is disabled.", nil
	}
	if len(req.args) == 0 {
		return "", usageError("Please provide a file path.\nUsage: /delete <file_path>")
	}
	path := req.args[0]

	deleted, err := d.files.DeleteFile(path)
	if err != nil {
		return "", err
	}
	if !deleted {
		return "File not found: " + path, nil
	}
	d.logger.Info("file deleted", "user_id", req.userID, "path", path)
	return "File deleted: " + path, nil
}

func (d *Dispatcher) handleSend(ctx context.Context, req request) (string, error) {
	if len(req.args) < 2 {
		return "", usageError("Please provide a device and a command.\nUsage: /send <device_id> <command> [args...]")
	}
	deviceID, command := req.args[0], req.args[1]

	var params map[string]any
	if rest := req.args[2:]; len(rest) > 0 {
		params = map[string]any{"args": rest}
	}

	queued, err := d.devices.QueueCommand(deviceID, command, params)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return "Device not registered: " + deviceID, nil
	}
	if err != nil {
		return "", err
	}

	reply := fmt.Sprintf("Command %s queued for %s (id %s).", command, deviceID, queued.ID)
	if d.relay == nil {
		return reply, nil
	}

	res, err := d.relay.Send(ctx, relay.Command{
		DeviceID:  deviceID,
		Command:   command,
		Params:    params,
		CommandID: queued.ID,
	})
	if err != nil {
		d.logger.Warn("relay failed", "device_id", deviceID, "command_id", queued.ID, "error", err)
		return reply + "\nRelay failed: " + err.Error(), nil
	}
	if res.Message != "" {
		return reply + "\nRelay: " + res.Message, nil
	}
	return reply + "\nRelay: ok", nil
}

func (d *Dispatcher) handleDevices(_ context.Context, _ request) (string, error) {
	all := d.devices.GetAllDevices()
	if len(all) == 0 {
		return "No devices registered.", nil
	}

	var b strings.Builder
	b.WriteString("Registered devices:\n")
	for _, id := range sortedKeys(all) {
		dev := all[id]
		status := "🔴 Offline"
		if dev.Online {
			status = "🟢 Online"
		}
		fmt.Fprintf(&b, "\n%s (%s) - %s - Last seen: %s", id, dev.Name, status, formatTime(dev.LastSeen))
		if n := d.devices.PendingCount(id); n > 0 {
			fmt.Fprintf(&b, " - %d pending", n)
		}
	}
	return b.String(), nil
}

func (d *Dispatcher) handleUsers(_ context.Context, _ request) (string, error) {
	all := d.users.GetAllUsers()
	if len(all) == 0 {
		return "No users registered.", nil
	}

	var b strings.Builder
	b.WriteString("Authorized users:\n")
	for _, id := range sortedKeys(all) {
		u := all[id]
		fmt.Fprintf(&b, "\n%s - %s - Last active: %s", id, u.Role, formatTime(u.LastActive))
		if !u.Active {
			b.WriteString(" (inactive)")
		}
	}
	return b.String(), nil
}

func (d *Dispatcher) handleAddUser(_ context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("Please provide a user ID to add.\nUsage: /adduser <user_id> [role]")
	}
	id := req.args[0]
	role := auth.RoleUser
	if len(req.args) > 1 {
		role = auth.Role(strings.ToLower(req.args[1]))
	}

	if err := d.users.AddUser(id, role); err != nil {
		return "", fmt.Errorf("adding user %s: %w", id, err)
	}
	return fmt.Sprintf("User %s added successfully as %s.", id, role), nil
}

func (d *Dispatcher) handleRemoveUser(_ context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("Please provide a user ID to remove.\nUsage: /removeuser <user_id>")
	}
	id := req.args[0]
	if id == req.userID {
		return "You cannot remove yourself.", nil
	}

	err := d.users.RemoveUser(id)
	if errors.Is(err, auth.ErrUserNotFound) {
		return "User " + id + " not found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("removing user %s: %w", id, err)
	}
	return "User " + id + " removed successfully.", nil
}

func (d *Dispatcher) handleDeactivate(_ context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("Please provide a user ID to deactivate.\nUsage: /deactivate <user_id>")
	}
	id := req.args[0]
	if id == req.userID {
		return "You cannot deactivate yourself.", nil
	}

	err := d.users.DeactivateUser(id)
	if errors.Is(err, auth.ErrUserNotFound) {
		return "User " + id + " not found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("deactivating user %s: %w", id, err)
	}
	return "User " + id + " deactivated.", nil
}

func (d *Dispatcher) handleUnregister(_ context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("Please provide a device ID.\nUsage: /unregister <device_id>")
	}
	id := req.args[0]

	err := d.devices.UnregisterDevice(id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return "Device not registered: " + id, nil
	}
	if err != nil {
		return "", fmt.Errorf("unregistering device %s: %w", id, err)
	}
	return "Device " + id + " unregistered.", nil
}

func (d *Dispatcher) handleAudit(ctx context.Context, req request) (string, error) {
	if !d.audit.Enabled() {
		return "Audit log is disabled.", nil
	}

	n := defaultAuditRows
	if len(req.args) > 0 {
		v, err := strconv.Atoi(req.args[0])
		if err != nil || v <= 0 {
			return "", usageError("Usage: /audit [n]")
		}
		n = min(v, maxAuditRows)
	}

	entries, err := d.audit.Recent(ctx, n)
	if err != nil {
		return "", fmt.Errorf("reading audit log: %w", err)
	}
	if len(entries) == 0 {
		return "Audit log is empty.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d audit entries:\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s", e.CreatedAt.Local().Format(displayTimeLayout), e.Action)
		if e.EntityID != "" {
			fmt.Fprintf(&b, " %s", e.EntityID)
		}
		if e.UserID != "" {
			fmt.Fprintf(&b, " by %s", e.UserID)
		}
		fmt.Fprintf(&b, " [%s]", e.Outcome)
	}
	return b.String(), nil
}

func formatEntries(header string, entries []files.Entry, limit int) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, e := range entries[:min(len(entries), limit)] {
		b.WriteString("\n")
		b.WriteString(e.String())
	}
	if len(entries) > limit {
		fmt.Fprintf(&b, "\n... and %d more files", len(entries)-limit)
	}
	return b.String()
}

func formatTime(ts jsonstore.Timestamp) string {
	if ts.IsZero() {
		return "Never"
	}
	return ts.Local().Format(displayTimeLayout)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
