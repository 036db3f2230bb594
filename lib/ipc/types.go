// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ActionCreate asks the daemon to provision a sandbox.
const ActionCreate = "create"

// Error messages returned to callers.
const (
	ErrInvalidJSON      = "invalid json"
	ErrUnknownAction    = "unknown action"
	ErrMissingFields    = "missing sandboxId or hostPath"
	ErrInvalidSandboxID = "invalid sandboxId after sanitization"
	ErrHostPathDenied   = "hostPath not permitted"
	ErrNotAuthorized    = "not authorized"
	ErrLaunchFailed     = "failed to launch provisioning script"
	ErrInternal         = "internal error"
)

// Field is one raw JSON value from a request. The zero Field means the
// key was absent.
type Field json.RawMessage

// Present reports whether the field exists and is truthy: not absent,
// null, false, zero, "", [] or {}.
func (f Field) Present() bool {
	if len(f) == 0 {
		return false
	}
	var value any
	if err := json.Unmarshal(f, &value); err != nil {
		return false
	}
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	}
	return true
}

// Text returns the field as a string. ok is false when the field is
// absent or not a JSON string.
func (f Field) Text() (text string, ok bool) {
	if len(f) == 0 {
		return "", false
	}
	if err := json.Unmarshal(f, &text); err != nil {
		return "", false
	}
	return text, true
}

// Request is a decoded request document.
type Request struct {
	Action    Field
	SandboxID Field
	HostPath  Field
}

// ActionName returns the action, or "" when it is absent or not a string.
func (r Request) ActionName() string {
	action, _ := r.Action.Text()
	return action
}

// DecodeRequest parses one JSON object. Any syntax error, any trailing
// non-whitespace content, and any top-level value other than an object
// or null is an error. Unrecognized keys are ignored.
func DecodeRequest(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, fmt.Errorf("decoding request: %w", err)
	}
	return Request{
		Action:    Field(fields["action"]),
		SandboxID: Field(fields["sandboxId"]),
		HostPath:  Field(fields["hostPath"]),
	}, nil
}

// CreateRequest is the document a client sends for ActionCreate.
// OriginalSandboxID is informational; the daemon ignores it.
type CreateRequest struct {
	Action            string `json:"action"`
	SandboxID         string `json:"sandboxId"`
	OriginalSandboxID string `json:"originalSandboxId,omitempty"`
	HostPath          string `json:"hostPath"`
}

// Response is the single line the daemon writes back. On failure only
// OK and Error are set.
type Response struct {
	OK                bool   `json:"ok"`
	Error             string `json:"error,omitempty"`
	PID               int    `json:"pid,omitempty"`
	SandboxID         string `json:"sandboxId,omitempty"`
	OriginalSandboxID string `json:"originalSandboxId,omitempty"`
	Log               string `json:"log,omitempty"`
}

// Failure returns an error response carrying message.
func Failure(message string) Response {
	return Response{OK: false, Error: message}
}

// WriteResponse encodes response as one JSON line on w. The line is
// assembled in memory first so it reaches w in a single Write.
func WriteResponse(w io.Writer, response Response) error {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(response); err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	_, err := w.Write(buffer.Bytes())
	return err
}

// ReadResponse decodes the first line of r as a Response.
func ReadResponse(r io.Reader) (Response, error) {
	var response Response
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return response, nil
}
