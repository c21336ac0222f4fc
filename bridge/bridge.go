// Package bridge drives the long-lived tiling worker over line-delimited
// JSON on its stdin/stdout. One command goes down, one response line comes
// back; there are no request identifiers, so the package enforces a strict
// single-flight discipline: Call serializes whole exchanges behind one
// lock, and the Holder orders all callers above it.
package bridge

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/spatialkit/tessera/wire"
)

var log = commonlog.GetLogger("tessera.bridge")

// Bridge composes the wire codec and a Channel into the single blocking
// Call operation. It owns the worker process exclusively; the pipes are
// never handed to callers.
type Bridge struct {
	cmd *exec.Cmd // nil when attached to pipes without a process
	ch  *Channel

	// callMu covers the write AND the read of one exchange. Without a
	// correlation identifier on the wire, a write for call N+1 must never
	// start before the read for call N completes.
	callMu sync.Mutex
}

// New creates a Bridge over an existing channel with no worker process
// attached. Tests and in-process fakes use this; production bridges come
// from Spawner.
func New(ch *Channel) *Bridge {
	return &Bridge{ch: ch}
}

// Call sends one command and blocks until its response line arrives —
// through the worker's full processing time, however long that is. On
// success it returns the worker's data value, or JSON null when the
// response carried none. Every failure is an *Error with its Kind set.
//
// There is no retry, no timeout and no resynchronization: an I/O or
// protocol failure leaves the stream in an unknown framing state, and
// recovery means discarding the Bridge via Holder.Reset.
func (b *Bridge) Call(command string, params any) (json.RawMessage, error) {
	line, err := wire.EncodeRequest(command, params)
	if err != nil {
		// No I/O was attempted; the stream is still clean.
		return nil, &Error{Kind: KindEncoding, Err: err}
	}

	b.callMu.Lock()
	defer b.callMu.Unlock()

	log.Debugf("send: %s", bytes.TrimSuffix(line, []byte("\n")))
	if err := b.ch.WriteLine(line); err != nil {
		return nil, &Error{Kind: KindIO, Message: "writing request", Err: err}
	}

	raw, err := b.ch.ReadLine()
	if err != nil {
		return nil, &Error{Kind: KindIO, Message: "reading response", Err: err}
	}
	log.Debugf("recv: %s", bytes.TrimSpace(raw))

	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Err: err}
	}
	if !resp.Ok() {
		return nil, &Error{Kind: KindApplication, Message: resp.ErrorMessage()}
	}
	return resp.Result(), nil
}

// Close shuts down the worker by closing its stdin — the worker's read
// loop sees EOF and exits — then waits for the process. Safe on bridges
// without a process attached.
func (b *Bridge) Close() error {
	b.callMu.Lock()
	defer b.callMu.Unlock()

	b.ch.Close()
	if b.cmd != nil {
		b.cmd.Wait()
		b.cmd = nil
	}
	return nil
}
