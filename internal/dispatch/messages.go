package dispatch

import "github.com/nerrad567/fleet-relay/internal/telegram"

// Fixed replies.
const (
	MsgUnauthorized   = "You are not authorized to use this bot. Please contact the administrator."
	MsgUnknownCommand = "Unknown command. Type /help for available commands."
	MsgCommandsOnly   = "I only respond to commands. Type /help for available commands."
	MsgSlowDown       = "Too many requests. Please wait a moment and try again."
	MsgStatus         = "Bot is running and operational."
)

const menuText = `Welcome to Fleet Relay!

Available commands:
/list <path> - List directory contents
/download <file_path> - Download a file
/delete <file_path> - Delete a file
/search <query> - Search for files
/send <device_id> <command> [args] - Queue a command for a device
/status - Show bot and fleet status
/help - Show this help message

Admin commands:
/devices - List all registered devices
/unregister <device_id> - Remove a device
/users - List all authorized users
/adduser <user_id> [role] - Add an authorized user
/removeuser <user_id> - Remove a user
/deactivate <user_id> - Deactivate a user
/audit [n] - Show recent activity`

// Listing limits keep replies under the message size limit.
const (
	maxListEntries   = 50
	maxSearchEntries = 20
	defaultAuditRows = 10
	maxAuditRows     = 50
)

func menuKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "📁 List files", CallbackData: "/list"},
				{Text: "📊 Status", CallbackData: "/status"},
			},
			{
				{Text: "📱 Devices", CallbackData: "/devices"},
				{Text: "❓ Help", CallbackData: "/help"},
			},
		},
	}
}
