package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spatialkit/tessera/bridge"
)

// OverlayService serves overlay rendering, the catalog listing and tile
// fetches.
type OverlayService struct {
	holder  *bridge.Holder
	catalog *Catalog
}

// NewOverlayService creates the overlay service.
func NewOverlayService(holder *bridge.Holder, catalog *Catalog) *OverlayService {
	return &OverlayService{holder: holder, catalog: catalog}
}

type renderRequest struct {
	DatasetID string  `json:"dataset_id"`
	ImgID     string  `json:"img_id"`
	SegID     string  `json:"seg_id"`
	FillKey   string  `json:"fill_key"`
	BorderKey *string `json:"border_key"`
}

// overlayMeta is the slice of the worker's render result the catalog
// records.
type overlayMeta struct {
	OverlayID string `json:"overlay_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	TileSize  int    `json:"tile_size"`
	MaxZoom   int    `json:"max_zoom"`
	FillKey   string `json:"fill_key"`
	IsGene    bool   `json:"is_gene"`
}

func (s *OverlayService) handleOverlays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		s.render(w, r)
	case "GET":
		s.list(w)
	default:
		http.Error(w, "Method not allowed", 405)
	}
}

func (s *OverlayService) render(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
	if err != nil {
		writeError(w, 400, "failed to read body")
		return
	}
	defer r.Body.Close()

	var req renderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, 400, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.DatasetID == "" || req.ImgID == "" || req.SegID == "" || req.FillKey == "" {
		writeError(w, 400, "dataset_id, img_id, seg_id and fill_key are required")
		return
	}

	var meta json.RawMessage
	err = s.holder.Do(func(b *bridge.Bridge) error {
		data, err := b.RenderOverlay(req.DatasetID, req.ImgID, req.SegID, req.FillKey, req.BorderKey)
		if err != nil {
			return err
		}
		meta = data
		return nil
	})
	if err != nil {
		writeError(w, bridgeStatus(err), err.Error())
		return
	}

	var m overlayMeta
	if err := json.Unmarshal(meta, &m); err != nil || m.OverlayID == "" {
		// Still answer the caller; the catalog just cannot record it.
		log.Warningf("render result missing overlay metadata: %v", err)
	} else {
		entry := &Overlay{
			ID:         m.OverlayID,
			DatasetID:  req.DatasetID,
			ImgID:      req.ImgID,
			SegID:      req.SegID,
			FillKey:    m.FillKey,
			BorderKey:  req.BorderKey,
			Width:      m.Width,
			Height:     m.Height,
			TileSize:   m.TileSize,
			MaxZoom:    m.MaxZoom,
			IsGene:     m.IsGene,
			RenderedAt: time.Now().UTC(),
		}
		if err := s.catalog.Put(entry); err != nil {
			log.Errorf("recording overlay %s: %v", m.OverlayID, err)
		}
	}

	writeJSON(w, 200, meta)
}

func (s *OverlayService) list(w http.ResponseWriter) {
	overlays := s.catalog.List()
	if overlays == nil {
		overlays = []*Overlay{}
	}
	writeJSON(w, 200, map[string]any{"overlays": overlays})
}

func (s *OverlayService) handleOverlayByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case "GET":
		o, err := s.catalog.Get(id)
		if errors.Is(err, ErrOverlayNotFound) {
			writeError(w, 404, err.Error())
			return
		}
		writeJSON(w, 200, o)
	case "DELETE":
		// Dropping a catalog entry does not free the worker's in-memory
		// tiles; the protocol has no unload command.
		if _, err := s.catalog.Get(id); errors.Is(err, ErrOverlayNotFound) {
			writeError(w, 404, err.Error())
			return
		}
		if err := s.catalog.Delete(id); err != nil {
			writeError(w, 500, err.Error())
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "Method not allowed", 405)
	}
}

// tileResult is the worker's get_tissue_overlay_tile payload.
type tileResult struct {
	Tile   string `json:"tile"`
	Format string `json:"format"`
}

func (s *OverlayService) handleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	id := r.PathValue("id")
	zoom, err := strconv.Atoi(r.PathValue("zoom"))
	if err != nil {
		writeError(w, 400, "invalid zoom")
		return
	}
	x, err := strconv.Atoi(r.PathValue("x"))
	if err != nil {
		writeError(w, 400, "invalid x")
		return
	}
	y, err := strconv.Atoi(r.PathValue("y"))
	if err != nil {
		writeError(w, 400, "invalid y")
		return
	}

	var data json.RawMessage
	err = s.holder.Do(func(b *bridge.Bridge) error {
		raw, err := b.GetTile(id, zoom, x, y)
		if err != nil {
			return err
		}
		data = raw
		return nil
	})
	if err != nil {
		status := bridgeStatus(err)
		if bridge.KindOf(err) == bridge.KindApplication {
			// The worker's tile failures are all not-found variants:
			// unknown overlay, zoom level out of range, tile out of range.
			status = 404
		}
		writeError(w, status, err.Error())
		return
	}

	var tr tileResult
	if err := json.Unmarshal(data, &tr); err != nil {
		writeError(w, 502, fmt.Sprintf("decoding tile payload: %v", err))
		return
	}
	img, err := base64.StdEncoding.DecodeString(tr.Tile)
	if err != nil {
		writeError(w, 502, fmt.Sprintf("decoding tile image: %v", err))
		return
	}

	format := tr.Format
	if format == "" {
		format = "jpeg"
	}
	w.Header().Set("Content-Type", "image/"+format)
	w.WriteHeader(200)
	w.Write(img)
}
