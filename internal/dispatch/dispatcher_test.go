package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/fleet-relay/internal/audit"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/database"
	"github.com/nerrad567/fleet-relay/internal/telegram"
	"github.com/nerrad567/fleet-relay/migrations"
)

func TestHandlerTableComplete(t *testing.T) {
	for c := Command(0); c < numCommands; c++ {
		if handlers[c] == nil {
			t.Errorf("command %d has no handler", c)
		}
		if commandNames[c] == "" {
			t.Errorf("command %d has no name", c)
		}
		if got, ok := ParseCommand("/" + c.String()); !ok || got != c {
			t.Errorf("ParseCommand(/%s) = %v, %v", c, got, ok)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		token string
		want  Command
		ok    bool
	}{
		{"/list", CmdList, true},
		{"/LIST", CmdList, true},
		{"/list@fleet_relay_bot", CmdList, true},
		{"/AddUser", CmdAddUser, true},
		{"list", 0, false},
		{"/", 0, false},
		{"/nope", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.token)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = %v, %v; want %v, %v", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAdminOnly(t *testing.T) {
	admin := map[Command]bool{
		CmdDevices: true, CmdUsers: true, CmdAddUser: true, CmdRemoveUser: true,
		CmdDeactivate: true, CmdUnregister: true, CmdAudit: true,
	}
	for c := Command(0); c < numCommands; c++ {
		if c.AdminOnly() != admin[c] {
			t.Errorf("%s.AdminOnly() = %v, want %v", c, c.AdminOnly(), admin[c])
		}
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) expected error")
	}
}

func TestProcess_Gate(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		from string
		text string
		want string
	}{
		{"unauthorized", "999", "/list", MsgUnauthorized},
		{"unknown command", userID, "/frobnicate", MsgUnknownCommand},
		{"plain text", userID, "hello there", MsgCommandsOnly},
		{"empty text", userID, "", MsgCommandsOnly},
		{"admin command as user", userID, "/devices", "Only admin can list devices."},
		{"admin user management as user", userID, "/adduser 5", "Only admin can add users."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.say(t, tt.from, tt.text); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}

	if env.users.IsAuthorized("5") {
		t.Error("denied /adduser still added the user")
	}
}

func TestProcess_DeactivatedUserIsRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	if err := env.users.DeactivateUser(userID); err != nil {
		t.Fatal(err)
	}
	if got := env.say(t, userID, "/status"); got != MsgUnauthorized {
		t.Errorf("reply = %q", got)
	}
}

func TestProcess_UpdatesLastActive(t *testing.T) {
	env := newTestEnv(t, Options{})
	before, _ := env.users.GetUser(userID)

	env.say(t, userID, "/status")

	after, _ := env.users.GetUser(userID)
	if after.LastActive.Before(before.LastActive.Time) {
		t.Errorf("LastActive went backwards: %v -> %v", before.LastActive, after.LastActive)
	}
}

func TestProcess_Callback(t *testing.T) {
	env := newTestEnv(t, Options{})
	upd := &telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb-1",
			From:    telegram.User{ID: 2000},
			Message: telegram.MaybeInaccessibleMessage{Message: &telegram.Message{Chat: telegram.Chat{ID: chatID}}},
			Data:    "/status",
		},
	}

	if err := env.d.Process(context.Background(), upd); err != nil {
		t.Fatal(err)
	}
	if len(env.msgr.answered) != 1 || env.msgr.answered[0] != "cb-1" {
		t.Errorf("answered = %v", env.msgr.answered)
	}
	assertContains(t, env.msgr.last(t), MsgStatus)
}

func TestProcess_UnauthorizedCallbackOnlyGetsNotice(t *testing.T) {
	env := newTestEnv(t, Options{})
	upd := &telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb-x",
			From:    telegram.User{ID: 999},
			Message: telegram.MaybeInaccessibleMessage{Message: &telegram.Message{Chat: telegram.Chat{ID: chatID}}},
			Data:    "/status",
		},
	}

	if err := env.d.Process(context.Background(), upd); err != nil {
		t.Fatal(err)
	}
	if len(env.msgr.answered) != 0 {
		t.Errorf("answered = %v, want no callback answer", env.msgr.answered)
	}
	if len(env.msgr.messages) != 1 || env.msgr.last(t) != MsgUnauthorized {
		t.Errorf("messages = %+v, want only the unauthorized notice", env.msgr.messages)
	}
}

func TestProcess_IgnoresUnknownUpdates(t *testing.T) {
	env := newTestEnv(t, Options{})
	if err := env.d.Process(context.Background(), &telegram.Update{ID: 9}); err != nil {
		t.Fatal(err)
	}
	if len(env.msgr.messages) != 0 {
		t.Errorf("sent %d messages for an empty update", len(env.msgr.messages))
	}
}

func TestProcess_SendFailureIsNotAnError(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.msgr.sendErr = errBoom
	if err := env.d.Process(context.Background(), textUpdate(userID, "/status")); err != nil {
		t.Errorf("Process() error = %v", err)
	}
}

type panickingMessenger struct{ fakeMessenger }

func (p *panickingMessenger) SendMessage(context.Context, telegram.OutgoingMessage) error {
	panic("messenger exploded")
}

func TestProcess_RecoversPanic(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.d.msgr = &panickingMessenger{}

	err := env.d.Process(context.Background(), textUpdate(userID, "/status"))
	if !errors.Is(err, ErrPanic) {
		t.Errorf("Process() error = %v, want ErrPanic", err)
	}
}

func TestProcess_RateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 2})

	env.say(t, userID, "/status")
	env.say(t, userID, "/status")
	if got := env.say(t, userID, "/status"); got != MsgSlowDown {
		t.Errorf("third message reply = %q, want slow down", got)
	}
	// Other users have their own bucket.
	if got := env.say(t, adminID, "/status"); got == MsgSlowDown {
		t.Error("admin limited by another user's traffic")
	}
}

func TestProcess_AuditAndMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "a.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatal(err)
	}
	env.d.audit = audit.NewTrail(audit.NewSQLiteRepository(db.DB))
	metrics := &fakeMetrics{}
	env.d.metrics = metrics

	env.say(t, userID, "/list")
	env.say(t, userID, "/users")
	env.say(t, userID, "/search")
	env.say(t, "31337", "/list")

	if len(metrics.samples) != 3 {
		t.Fatalf("metrics samples = %+v", metrics.samples)
	}
	want := []commandSample{
		{"list", "bot", audit.OutcomeOK},
		{"users", "bot", audit.OutcomeDenied},
		{"search", "bot", audit.OutcomeInvalid},
	}
	for i, w := range want {
		if metrics.samples[i] != w {
			t.Errorf("sample %d = %+v, want %+v", i, metrics.samples[i], w)
		}
	}

	reply := env.say(t, adminID, "/audit 10")
	assertContains(t, reply, "command.list by 2000 [ok]", "command.users by 2000 [denied]", "[invalid]")
	if strings.Contains(reply, "31337") {
		t.Errorf("unauthorized sender left an audit row: %q", reply)
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("/li\x00st"); got != "/list" {
		t.Errorf("Sanitize() = %q", got)
	}
	long := strings.Repeat("é", 1500)
	if got := Sanitize(long); len([]rune(got)) != 1000 {
		t.Errorf("Sanitize() kept %d runes, want 1000", len([]rune(got)))
	}
	if got := Sanitize("short"); got != "short" {
		t.Errorf("Sanitize() = %q", got)
	}
}
