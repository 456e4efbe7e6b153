package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nerrad567/fleet-relay/internal/audit"
	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/files"
	"github.com/nerrad567/fleet-relay/internal/relay"
	"github.com/nerrad567/fleet-relay/internal/telegram"
)

// maxInputLength bounds incoming text, in characters.
const maxInputLength = 1000

// ErrPanic wraps a panic recovered while processing an update.
var ErrPanic = errors.New("dispatch: panic while processing update")

// Messenger sends replies. *telegram.Client satisfies it.
type Messenger interface {
	SendMessage(ctx context.Context, msg telegram.OutgoingMessage) error
	SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Relay forwards device commands to the companion server. *relay.Client
// satisfies it.
type Relay interface {
	Send(ctx context.Context, cmd relay.Command) (*relay.Result, error)
}

// Metrics records command outcomes. *influxdb.Client satisfies it.
type Metrics interface {
	WriteCommand(command, source, outcome string, elapsed time.Duration)
}

// Logger is the logging surface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options are the feature switches read from config.
type Options struct {
	EnableDownload bool
	EnableDelete   bool
	// RateLimit is messages per minute per user. Zero disables limiting.
	RateLimit int
}

// Deps holds everything the dispatcher talks to. Users, Devices, Files and
// Messenger are required; the rest are optional.
type Deps struct {
	Users     *auth.Registry
	Devices   *device.Registry
	Files     *files.Service
	Messenger Messenger
	Relay     Relay
	Audit     *audit.Trail
	Metrics   Metrics
	Logger    Logger
	Options   Options
}

// Dispatcher turns chat updates into command handler calls and replies.
// It is safe for concurrent use; each webhook call runs Process on its
// own goroutine.
type Dispatcher struct {
	users   *auth.Registry
	devices *device.Registry
	files   *files.Service
	msgr    Messenger
	relay   Relay
	audit   *audit.Trail
	metrics Metrics
	logger  Logger
	opts    Options
	limiter *userLimiter
	now     func() time.Time
}

// New validates deps and builds a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("dispatch: user registry is required")
	case deps.Devices == nil:
		return nil, errors.New("dispatch: device registry is required")
	case deps.Files == nil:
		return nil, errors.New("dispatch: file service is required")
	case deps.Messenger == nil:
		return nil, errors.New("dispatch: messenger is required")
	}

	d := &Dispatcher{
		users:   deps.Users,
		devices: deps.Devices,
		files:   deps.Files,
		msgr:    deps.Messenger,
		relay:   deps.Relay,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		opts:    deps.Options,
		limiter: newUserLimiter(deps.Options.RateLimit, time.Minute),
		now:     time.Now,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d, nil
}

// request is one parsed command invocation.
type request struct {
	cmd    Command
	userID string
	chatID int64
	args   []string
}

// usageError carries a usage hint back to the sender.
type usageError string

func (e usageError) Error() string { return string(e) }

type handlerFunc func(d *Dispatcher, ctx context.Context, req request) (string, error)

// handlers is indexed by Command. A handler returns the reply text, or ""
// when it has already replied itself.
var handlers = [numCommands]handlerFunc{
	CmdStart:      (*Dispatcher).handleStart,
	CmdHelp:       (*Dispatcher).handleStart,
	CmdStatus:     (*Dispatcher).handleStatus,
	CmdList:       (*Dispatcher).handleList,
	CmdSearch:     (*Dispatcher).handleSearch,
	CmdDownload:   (*Dispatcher).handleDownload,
	CmdDelete:     (*Dispatcher).handleDelete,
	CmdSend:       (*Dispatcher).handleSend,
	CmdDevices:    (*Dispatcher).handleDevices,
	CmdUsers:      (*Dispatcher).handleUsers,
	CmdAddUser:    (*Dispatcher).handleAddUser,
	CmdRemoveUser: (*Dispatcher).handleRemoveUser,
	CmdDeactivate: (*Dispatcher).handleDeactivate,
	CmdUnregister: (*Dispatcher).handleUnregister,
	CmdAudit:      (*Dispatcher).handleAudit,
}

// Process handles one update end to end. Failures talking to the chat
// platform are logged, not returned; the only error is a recovered panic,
// wrapped in ErrPanic.
func (d *Dispatcher) Process(ctx context.Context, upd *telegram.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while processing update", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	in, ok := telegram.InboundFrom(upd)
	if !ok {
		d.logger.Debug("ignoring update", "update_id", upd.ID)
		return nil
	}

	text := Sanitize(in.Text)
	d.logger.Info("received message", "user_id", in.UserID, "text", text)

	// Unauthorized senders get the notice and nothing else.
	if !d.users.IsAuthorized(in.UserID) {
		d.logger.Info("unauthorized sender", "user_id", in.UserID)
		d.send(ctx, in.ChatID, MsgUnauthorized)
		return nil
	}

	if in.CallbackID != "" {
		if err := d.msgr.AnswerCallbackQuery(ctx, in.CallbackID, ""); err != nil {
			d.logger.Warn("answering callback failed", "user_id", in.UserID, "error", err)
		}
	}

	if err := d.users.UpdateLastActive(in.UserID); err != nil {
		d.logger.Warn("updating last active failed", "user_id", in.UserID, "error", err)
	}

	if !d.limiter.Allow(in.UserID) {
		d.logger.Warn("rate limit exceeded", "user_id", in.UserID)
		d.send(ctx, in.ChatID, MsgSlowDown)
		return nil
	}

	if !strings.HasPrefix(text, CommandPrefix) {
		d.send(ctx, in.ChatID, MsgCommandsOnly)
		return nil
	}

	fields := strings.Fields(text)
	cmd, ok := ParseCommand(fields[0])
	if !ok {
		d.send(ctx, in.ChatID, MsgUnknownCommand)
		return nil
	}

	d.run(ctx, request{cmd: cmd, userID: in.UserID, chatID: in.ChatID, args: fields[1:]})
	return nil
}

// run checks permissions, calls the handler and records the outcome.
func (d *Dispatcher) run(ctx context.Context, req request) {
	start := d.now()
	outcome := audit.OutcomeOK
	var reply string

	if perm := req.cmd.Permission(); perm != "" && !d.users.Can(req.userID, perm) {
		outcome = audit.OutcomeDenied
		reply = req.cmd.denied()
	} else {
		var err error
		reply, err = handlers[req.cmd](d, ctx, req)
		var usage usageError
		switch {
		case errors.As(err, &usage):
			outcome = audit.OutcomeInvalid
			reply = usage.Error()
		case err != nil:
			outcome = audit.OutcomeFailed
			d.logger.Error("command failed", "command", req.cmd.String(), "user_id", req.userID, "error", err)
			reply = "error: " + err.Error()
		}
	}

	if reply != "" {
		d.send(ctx, req.chatID, reply)
	}

	elapsed := d.now().Sub(start)
	d.logger.Debug("command handled", "command", req.cmd.String(), "user_id", req.userID,
		"outcome", outcome, "duration", elapsed)

	d.audit.Record(ctx, audit.Entry{
		Action:     "command." + req.cmd.String(),
		EntityType: "bot_command",
		UserID:     req.userID,
		Source:     audit.SourceBot,
		Outcome:    outcome,
		Details:    argDetails(req.args),
	})
	if d.metrics != nil {
		d.metrics.WriteCommand(req.cmd.String(), audit.SourceBot, outcome, elapsed)
	}
}

func argDetails(args []string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	return map[string]any{"args": args}
}

// send delivers a plain text reply.
func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	d.sendMessage(ctx, telegram.OutgoingMessage{ChatID: chatID, Text: text})
}

func (d *Dispatcher) sendMessage(ctx context.Context, msg telegram.OutgoingMessage) {
	if err := d.msgr.SendMessage(ctx, msg); err != nil {
		d.logger.Warn("sending reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

// Sanitize removes NUL bytes and cuts text to 1000 characters.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	if len(text) <= maxInputLength {
		return text
	}
	runes := []rune(text)
	if len(runes) > maxInputLength {
		runes = runes[:maxInputLength]
	}
	return string(runes)
}
