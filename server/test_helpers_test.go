package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spatialkit/tessera/bridge"
	"github.com/spatialkit/tessera/config"
	"github.com/spatialkit/tessera/wire"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// A scripted in-process worker stands in for the python tiling process:
// the injected spawner builds a Bridge over pipe ends, and a handle
// function maps each decoded command to a data value or an application
// error. The worker loop exits when the bridge closes its input.
// ---------------------------------------------------------------------------

// errKillWorker makes the scripted worker close its output without
// answering, which the bridge sees as the worker dying.
var errKillWorker = errors.New("kill worker")

type handleFunc func(command string, params json.RawMessage) (any, error)

type workerCall struct {
	Command string
	Params  json.RawMessage
}

// callLog records what a scripted worker saw across its lifetimes.
type callLog struct {
	mu     sync.Mutex
	calls  []workerCall
	spawns int
}

func (l *callLog) add(c workerCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) all() []workerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]workerCall(nil), l.calls...)
}

func (l *callLog) spawnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spawns
}

func (l *callLog) addSpawn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spawns++
}

// scriptedSpawner returns a SpawnFunc whose worker answers through
// handle.
func scriptedSpawner(rec *callLog, handle handleFunc) bridge.SpawnFunc {
	return func() (*bridge.Bridge, error) {
		rec.addSpawn()

		workerIn, hostOut := io.Pipe()
		hostIn, workerOut := io.Pipe()

		go func() {
			defer workerOut.Close()
			sc := bufio.NewScanner(workerIn)
			for sc.Scan() {
				req, err := wire.DecodeRequest(sc.Bytes())
				if err != nil {
					workerOut.Write(wire.EncodeFailure(err.Error()))
					continue
				}
				rec.add(workerCall{Command: req.Command, Params: append(json.RawMessage(nil), req.Params...)})

				data, err := handle(req.Command, req.Params)
				if err != nil {
					if errors.Is(err, errKillWorker) {
						return
					}
					workerOut.Write(wire.EncodeFailure(err.Error()))
					continue
				}
				line, err := wire.EncodeResult(data)
				if err != nil {
					workerOut.Write(wire.EncodeFailure(err.Error()))
					continue
				}
				workerOut.Write(line)
			}
		}()

		return bridge.New(bridge.NewChannel(hostOut, hostIn)), nil
	}
}

// newTestServer builds a Server over a scripted worker and a throwaway
// catalog database.
func newTestServer(t *testing.T, handle handleFunc) (*Server, *callLog) {
	t.Helper()

	rec := &callLog{}
	cfg := config.Default()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "catalog.db")

	srv, err := New(cfg, WithSpawner(scriptedSpawner(rec, handle)), WithVersion("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, rec
}

// ---------------------------------------------------------------------------
// Request helpers — reduce boilerplate in tests.
// ---------------------------------------------------------------------------

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// decodeErrorBody extracts the error string from an API error response.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (body: %s)", err, w.Body.String())
	}
	return body.Error
}
