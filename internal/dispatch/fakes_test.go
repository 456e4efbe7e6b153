package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/files"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
	"github.com/nerrad567/fleet-relay/internal/relay"
	"github.com/nerrad567/fleet-relay/internal/telegram"
)

const (
	adminID = "1000"
	userID  = "2000"
	chatID  = int64(555)
)

type sentDocument struct {
	chatID   int64
	filename string
	content  string
	caption  string
}

// fakeMessenger records everything the dispatcher sends.
type fakeMessenger struct {
	mu        sync.Mutex
	messages  []telegram.OutgoingMessage
	documents []sentDocument
	answered  []string
	sendErr   error
}

func (m *fakeMessenger) SendMessage(_ context.Context, msg telegram.OutgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.sendErr
}

func (m *fakeMessenger) SendDocument(_ context.Context, chatID int64, filename string, r io.Reader, caption string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, sentDocument{chatID, filename, string(b), caption})
	return nil
}

func (m *fakeMessenger) AnswerCallbackQuery(_ context.Context, callbackID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

// last returns the text of the most recent message.
func (m *fakeMessenger) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("no message sent")
	}
	return m.messages[len(m.messages)-1].Text
}

type fakeRelay struct {
	got    []relay.Command
	result *relay.Result
	err    error
}

func (r *fakeRelay) Send(_ context.Context, cmd relay.Command) (*relay.Result, error) {
	r.got = append(r.got, cmd)
	return r.result, r.err
}

type commandSample struct {
	command, source, outcome string
}

type fakeMetrics struct {
	mu      sync.Mutex
	samples []commandSample
}

func (m *fakeMetrics) WriteCommand(command, source, outcome string, _ time.Duration) {
	m.mu.Lock()
	m.samples = append(m.samples, commandSample{command, source, outcome})
	m.mu.Unlock()
}

type testEnv struct {
	d       *Dispatcher
	msgr    *fakeMessenger
	users   *auth.Registry
	devices *device.Registry
	root    string
}

// newTestEnv builds a dispatcher over registries persisted in a temp dir,
// with an admin and a plain user, and a file root holding a few files.
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()

	users := auth.NewRegistry(jsonstore.New[auth.User](filepath.Join(dir, "users.json")))
	if err := users.AddUser(adminID, auth.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if err := users.AddUser(userID, auth.RoleUser); err != nil {
		t.Fatal(err)
	}
	devices := device.NewRegistry(jsonstore.New[device.Device](filepath.Join(dir, "devices.json")))

	root := filepath.Join(dir, "files")
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "ab.txt", "alphabet")
	writeFile(t, root, "b.txt", "beta")
	if err := os.Mkdir(filepath.Join(root, "docs"), 0o750); err != nil {
		t.Fatal(err)
	}
	svc, err := files.NewService(root, files.Options{})
	if err != nil {
		t.Fatal(err)
	}

	msgr := &fakeMessenger{}
	d, err := New(Deps{
		Users:     users,
		Devices:   devices,
		Files:     svc,
		Messenger: msgr,
		Options:   opts,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{d: d, msgr: msgr, users: users, devices: devices, root: root}
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func textUpdate(from string, text string) *telegram.Update {
	id := int64(0)
	for _, c := range from {
		id = id*10 + int64(c-'0')
	}
	return &telegram.Update{
		ID:      1,
		Message: &telegram.Message{
			From: &telegram.User{ID: id},
			Chat: telegram.Chat{ID: chatID},
			Text: text,
		},
	}
}

// say sends text as from and returns the last reply.
func (e *testEnv) say(t *testing.T, from, text string) string {
	t.Helper()
	if err := e.d.Process(context.Background(), textUpdate(from, text)); err != nil {
		t.Fatalf("Process(%q) error = %v", text, err)
	}
	return e.msgr.last(t)
}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("reply %q does not contain %q", got, w)
		}
	}
}

var errBoom = errors.New("boom")
