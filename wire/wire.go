// Package wire implements the line-delimited JSON protocol spoken between
// the host and the tiling worker: one compact JSON object per line in each
// direction, newline-terminated, UTF-8.
//
// The host encodes Requests and decodes Responses; a worker (such as
// cmd/stubworker) uses the mirror pair. There is no request identifier on
// the wire — correlation relies on the strict single-flight discipline
// enforced by the bridge package.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one command sent to the worker: a name plus an arbitrary
// parameter payload. Created fresh per call and serialized to exactly one
// line; params is required on the wire and may be JSON null.
type Request struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// Response is the worker's answer to one Request. Success gates which of
// Data/Error is meaningful. It is a pointer so that a line missing the
// field entirely is rejected as malformed instead of read as false.
type Response struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *string         `json:"error,omitempty"`
}

// Null is the JSON null value, the result of a successful response that
// carries no data.
var Null = json.RawMessage("null")

// EncodeRequest serializes a command and its parameter value to one
// newline-terminated JSON line. A nil params encodes as "params":null.
// JSON string escaping guarantees the payload itself contains no raw
// newline, so the line framing holds for arbitrary parameter content.
func EncodeRequest(command string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("wire: encode params for %q: %w", command, err)
	}
	line, err := json.Marshal(Request{Command: command, Params: raw})
	if err != nil {
		return nil, fmt.Errorf("wire: encode request %q: %w", command, err)
	}
	return append(line, '\n'), nil
}

// DecodeRequest parses one line as a Request, leaving Params as raw JSON
// for per-command unmarshaling. Used by workers.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("wire: decode request: %v (raw line: %s)", err, trimEOL(line))
	}
	if req.Command == "" {
		return nil, fmt.Errorf("wire: decode request: missing command (raw line: %s)", trimEOL(line))
	}
	return &req, nil
}

// DecodeResponse parses one line as a Response. The line must be a JSON
// object with a boolean success field; anything else fails, and the
// failure message carries the raw line verbatim so a desynchronized
// stream can be diagnosed from logs alone.
func DecodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("wire: decode response: %v (raw line: %s)", err, trimEOL(line))
	}
	if resp.Success == nil {
		return nil, fmt.Errorf("wire: decode response: missing success field (raw line: %s)", trimEOL(line))
	}
	return &resp, nil
}

// trimEOL strips the framing terminator before a line is embedded in an
// error message, keeping the message itself one line.
func trimEOL(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}

// Ok reports whether the response indicates success. Meaningful only
// after a successful decode, which guarantees Success is non-nil.
func (r *Response) Ok() bool {
	return r.Success != nil && *r.Success
}

// Result returns the response data, or JSON null when the worker
// answered success without a data field.
func (r *Response) Result() json.RawMessage {
	if len(r.Data) == 0 {
		return Null
	}
	return r.Data
}

// ErrorMessage returns the worker's error string, or "Unknown error"
// when the worker reported failure without a message.
func (r *Response) ErrorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return "Unknown error"
}

// EncodeResult serializes a success Response carrying data to one
// newline-terminated line. Used by workers.
func EncodeResult(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode result: %w", err)
	}
	ok := true
	line, _ := json.Marshal(Response{Success: &ok, Data: raw})
	return append(line, '\n'), nil
}

// EncodeFailure serializes a failure Response carrying an error message
// to one newline-terminated line. Used by workers.
func EncodeFailure(msg string) []byte {
	ok := false
	line, _ := json.Marshal(Response{Success: &ok, Error: &msg})
	return append(line, '\n')
}
