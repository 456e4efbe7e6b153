package dispatch

import (
	"strings"

	"github.com/nerrad567/fleet-relay/internal/auth"
)

// Command identifies a bot command. The zero value is CmdStart.
type Command int

// Bot commands, in menu order.
const (
	CmdStart Command = iota
	CmdHelp
	CmdStatus
	CmdList
	CmdSearch
	CmdDownload
	CmdDelete
	CmdSend
	CmdDevices
	CmdUsers
	CmdAddUser
	CmdRemoveUser
	CmdDeactivate
	CmdUnregister
	CmdAudit

	numCommands
)

// CommandPrefix starts every command message.
const CommandPrefix = "/"

var commandNames = [numCommands]string{
	CmdStart:      "start",
	CmdHelp:       "help",
	CmdStatus:     "status",
	CmdList:       "list",
	CmdSearch:     "search",
	CmdDownload:   "download",
	CmdDelete:     "delete",
	CmdSend:       "send",
	CmdDevices:    "devices",
	CmdUsers:      "users",
	CmdAddUser:    "adduser",
	CmdRemoveUser: "removeuser",
	CmdDeactivate: "deactivate",
	CmdUnregister: "unregister",
	CmdAudit:      "audit",
}

// commandPerms lists the permission each command needs beyond being an
// authorized user. Empty means none.
var commandPerms = [numCommands]auth.Permission{
	CmdList:       auth.PermFileRead,
	CmdSearch:     auth.PermFileRead,
	CmdDownload:   auth.PermFileDownload,
	CmdDelete:     auth.PermFileDelete,
	CmdSend:       auth.PermDeviceCommand,
	CmdDevices:    auth.PermDeviceManage,
	CmdUsers:      auth.PermUserManage,
	CmdAddUser:    auth.PermUserManage,
	CmdRemoveUser: auth.PermUserManage,
	CmdDeactivate: auth.PermUserManage,
	CmdUnregister: auth.PermDeviceManage,
	CmdAudit:      auth.PermAuditRead,
}

var deniedText = [numCommands]string{
	CmdDevices:    "Only admin can list devices.",
	CmdUsers:      "Only admin can list users.",
	CmdAddUser:    "Only admin can add users.",
	CmdRemoveUser: "Only admin can remove users.",
	CmdDeactivate: "Only admin can deactivate users.",
	CmdUnregister: "Only admin can unregister devices.",
	CmdAudit:      "Only admin can read the audit log.",
}

var commandsByName = func() map[string]Command {
	m := make(map[string]Command, numCommands)
	for c := Command(0); c < numCommands; c++ {
		m[commandNames[c]] = c
	}
	return m
}()

// String returns the command name without the prefix.
func (c Command) String() string {
	if c < 0 || c >= numCommands {
		return "unknown"
	}
	return commandNames[c]
}

// Permission returns what a user needs to run c, or "" when any
// authorized user may.
func (c Command) Permission() auth.Permission {
	return commandPerms[c]
}

// AdminOnly reports whether only admins may run c.
func (c Command) AdminOnly() bool {
	p := c.Permission()
	return p != "" && auth.IsAdminOnly(p)
}

func (c Command) denied() string {
	if t := deniedText[c]; t != "" {
		return t
	}
	return "You do not have permission to use " + CommandPrefix + c.String() + "."
}

// ParseCommand maps a command token such as "/List@fleet_bot" to its
// Command. Matching is case-insensitive and ignores a bot-name suffix.
func ParseCommand(token string) (Command, bool) {
	name, ok := strings.CutPrefix(token, CommandPrefix)
	if !ok {
		return 0, false
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	c, ok := commandsByName[strings.ToLower(name)]
	return c, ok
}
