package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// tileBytes is a tiny stand-in JPEG payload (just the SOI marker plus
// padding; the handlers never parse it).
var tileBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46}

// tilingHandle mimics the python worker's render and tile commands.
func tilingHandle(command string, params json.RawMessage) (any, error) {
	switch command {
	case "plot_tissue_overlay":
		var p struct {
			DatasetID string `json:"dataset_id"`
			ImgID     string `json:"img_id"`
			SegID     string `json:"seg_id"`
			FillKey   string `json:"fill_key"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]any{
			"overlay_id": p.DatasetID + ":" + p.ImgID + ":" + p.SegID + ":" + p.FillKey,
			"width":      4096,
			"height":     4096,
			"tile_size":  256,
			"max_zoom":   4,
			"fill_key":   p.FillKey,
			"is_gene":    false,
		}, nil
	case "get_tissue_overlay_tile":
		return map[string]string{
			"tile":   base64.StdEncoding.EncodeToString(tileBytes),
			"format": "jpeg",
		}, nil
	default:
		return nil, fmt.Errorf("Unknown command: %s", command)
	}
}

func TestRenderOverlay(t *testing.T) {
	srv, rec := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	var meta struct {
		OverlayID string `json:"overlay_id"`
		TileSize  int    `json:"tile_size"`
		MaxZoom   int    `json:"max_zoom"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &meta); err != nil {
		t.Fatalf("response body: %v", err)
	}
	if meta.OverlayID != "ds1:img1:seg1:leiden" {
		t.Errorf("overlay_id = %q, want ds1:img1:seg1:leiden", meta.OverlayID)
	}
	if meta.TileSize != 256 || meta.MaxZoom != 4 {
		t.Errorf("geometry = %d/%d, want 256/4", meta.TileSize, meta.MaxZoom)
	}

	calls := rec.all()
	if len(calls) != 1 || calls[0].Command != "plot_tissue_overlay" {
		t.Fatalf("worker calls = %+v, want one plot_tissue_overlay", calls)
	}
	if !strings.Contains(string(calls[0].Params), `"border_key":null`) {
		t.Errorf("params = %s, want border_key null when the request omits it", calls[0].Params)
	}

	// The render is now in the catalog.
	w = doRequest(t, srv.Handler(), "GET", "/api/overlays", "")
	if w.Code != 200 {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var list struct {
		Overlays []Overlay `json:"overlays"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if len(list.Overlays) != 1 || list.Overlays[0].ID != "ds1:img1:seg1:leiden" {
		t.Errorf("catalog list = %+v, want the rendered overlay", list.Overlays)
	}
}

func TestRenderOverlayRejectsBadBodies(t *testing.T) {
	srv, rec := newTestServer(t, tilingHandle)

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"dataset_id":"ds1","img_id":"img1"}`,
	} {
		w := doRequest(t, srv.Handler(), "POST", "/api/overlays", body)
		if w.Code != 400 {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("worker saw %d calls, want 0", n)
	}
}

func TestRenderOverlayWorkerError(t *testing.T) {
	srv, _ := newTestServer(t, func(string, json.RawMessage) (any, error) {
		return nil, errors.New("Image img1 not found. Please load TIFF file first.")
	})

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decodeErrorBody(t, w); got != "Image img1 not found. Please load TIFF file first." {
		t.Errorf("error = %q, want the worker message verbatim", got)
	}
}

func TestRenderOverlayWorkerDied(t *testing.T) {
	srv, _ := newTestServer(t, func(string, json.RawMessage) (any, error) {
		return nil, errKillWorker
	})

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 502 {
		t.Errorf("status = %d, want 502 when the worker dies mid-call", w.Code)
	}
}

func TestRenderOverlaySkipsCatalogOnOpaqueResult(t *testing.T) {
	srv, _ := newTestServer(t, func(string, json.RawMessage) (any, error) {
		return "rendered", nil
	})

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `"rendered"` {
		t.Errorf("body = %s, want the worker result untouched", got)
	}

	w = doRequest(t, srv.Handler(), "GET", "/api/overlays", "")
	if !strings.Contains(w.Body.String(), `"overlays":[]`) {
		t.Errorf("list = %s, want no catalog entry for an opaque result", w.Body.String())
	}
}

func TestListOverlaysEmpty(t *testing.T) {
	srv, _ := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "GET", "/api/overlays", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"overlays":[]`) {
		t.Errorf("body = %s, want an empty overlays array", w.Body.String())
	}
}

func TestGetOverlayByID(t *testing.T) {
	srv, _ := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 200 {
		t.Fatalf("render status = %d, want 200", w.Code)
	}

	w = doRequest(t, srv.Handler(), "GET", "/api/overlays/ds1:img1:seg1:leiden", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var got Overlay
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got.DatasetID != "ds1" || got.MaxZoom != 4 {
		t.Errorf("overlay = %+v, want the recorded entry", got)
	}

	w = doRequest(t, srv.Handler(), "GET", "/api/overlays/unknown", "")
	if w.Code != 404 {
		t.Errorf("unknown overlay status = %d, want 404", w.Code)
	}
}

func TestDeleteOverlay(t *testing.T) {
	srv, _ := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays",
		`{"dataset_id":"ds1","img_id":"img1","seg_id":"seg1","fill_key":"leiden"}`)
	if w.Code != 200 {
		t.Fatalf("render status = %d, want 200", w.Code)
	}

	w = doRequest(t, srv.Handler(), "DELETE", "/api/overlays/ds1:img1:seg1:leiden", "")
	if w.Code != 200 {
		t.Fatalf("delete status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	w = doRequest(t, srv.Handler(), "GET", "/api/overlays", "")
	if !strings.Contains(w.Body.String(), `"overlays":[]`) {
		t.Errorf("list after delete = %s, want it empty", w.Body.String())
	}

	w = doRequest(t, srv.Handler(), "DELETE", "/api/overlays/ds1:img1:seg1:leiden", "")
	if w.Code != 404 {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestGetTile(t *testing.T) {
	srv, rec := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "GET", "/api/overlays/ds1:img1:seg1:leiden/tiles/2/3/4", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), tileBytes) {
		t.Errorf("body = %x, want the decoded tile bytes", w.Body.Bytes())
	}

	calls := rec.all()
	if len(calls) != 1 || calls[0].Command != "get_tissue_overlay_tile" {
		t.Fatalf("worker calls = %+v, want one get_tissue_overlay_tile", calls)
	}
	want := `{"overlay_id":"ds1:img1:seg1:leiden","zoom":2,"x":3,"y":4}`
	if string(calls[0].Params) != want {
		t.Errorf("params = %s, want %s", calls[0].Params, want)
	}
}

func TestGetTileNotFound(t *testing.T) {
	srv, _ := newTestServer(t, func(string, json.RawMessage) (any, error) {
		return nil, errors.New("Zoom level 9 not found")
	})

	w := doRequest(t, srv.Handler(), "GET", "/api/overlays/ov1/tiles/9/0/0", "")
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := decodeErrorBody(t, w); got != "Zoom level 9 not found" {
		t.Errorf("error = %q, want the worker message verbatim", got)
	}
}

func TestGetTileRejectsBadCoordinates(t *testing.T) {
	srv, rec := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "GET", "/api/overlays/ov1/tiles/high/0/0", "")
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("worker saw %d calls, want 0", n)
	}
}

func TestTileMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "POST", "/api/overlays/ov1/tiles/0/0/0", "")
	if w.Code != 405 {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, rec := newTestServer(t, tilingHandle)

	w := doRequest(t, srv.Handler(), "OPTIONS", "/api/overlays", "")
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("preflight reached the worker (%d calls)", n)
	}
}
