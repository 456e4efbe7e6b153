package telegram

import (
	"errors"
	"strings"
)

// ErrNoToken is returned by every call when the client has no bot token.
var ErrNoToken = errors.New("telegram: bot token not configured")

// callError wraps a library error with the method name and the token
// removed from its text. Transport errors carry the request URL, which
// embeds the token.
type callError struct {
	method string
	msg    string
	err    error
}

func (e *callError) Error() string {
	return "telegram: " + e.method + ": " + e.msg
}

func (e *callError) Unwrap() error {
	return e.err
}

func wrapError(method, token string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if token != "" {
		msg = strings.ReplaceAll(msg, token, "<redacted>")
	}
	return &callError{method: method, msg: msg, err: err}
}
