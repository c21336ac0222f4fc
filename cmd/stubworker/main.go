// Package main implements a stand-in tiling worker for development and
// integration testing. It speaks the same line-delimited JSON protocol
// as the python worker and mimics its command set, pyramid geometry and
// error strings, but renders flat synthetic JPEG tiles instead of real
// tissue overlays.
package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"unicode"

	"github.com/spatialkit/tessera/wire"
)

const (
	tileSize = 256
	maxZoom  = 4
)

type imageInfo struct {
	Width  int
	Height int
}

// pyramid holds the tiles generated for one overlay, keyed by zoom and
// then tile coordinate.
type pyramid struct {
	meta  renderResult
	zooms map[int]map[[2]int][]byte
}

type renderResult struct {
	OverlayID string `json:"overlay_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	TileSize  int    `json:"tile_size"`
	MaxZoom   int    `json:"max_zoom"`
	FillKey   string `json:"fill_key"`
	IsGene    bool   `json:"is_gene"`
}

type worker struct {
	width  int
	height int

	datasets      map[string]string
	images        map[string]imageInfo
	segmentations map[string]string
	overlays      map[string]*pyramid
}

func newWorker(width, height int) *worker {
	return &worker{
		width:         width,
		height:        height,
		datasets:      make(map[string]string),
		images:        make(map[string]imageInfo),
		segmentations: make(map[string]string),
		overlays:      make(map[string]*pyramid),
	}
}

func main() {
	width := flag.Int("width", 1024, "synthetic tissue image width")
	height := flag.Int("height", 1024, "synthetic tissue image height")
	flag.Parse()

	w := newWorker(*width, *height)
	fmt.Fprintf(os.Stderr, "stubworker ready (%dx%d image)\n", *width, *height)

	// stdout carries protocol lines only; everything else goes to stderr.
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)

	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out.Write(w.handle(line))
		out.Flush()
	}
}

// handle maps one request line to one response line.
func (w *worker) handle(line []byte) []byte {
	req, err := wire.DecodeRequest(line)
	if err != nil {
		return wire.EncodeFailure(err.Error())
	}

	data, err := w.dispatch(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", req.Command, err)
		return wire.EncodeFailure(err.Error())
	}

	resp, err := wire.EncodeResult(data)
	if err != nil {
		return wire.EncodeFailure(err.Error())
	}
	return resp
}

func (w *worker) dispatch(req *wire.Request) (any, error) {
	switch req.Command {
	case "load_dataset":
		return w.loadDataset(req.Params)
	case "load_tiff":
		return w.loadTIFF(req.Params)
	case "load_npz":
		return w.loadNPZ(req.Params)
	case "plot_tissue_overlay":
		return w.plotTissueOverlay(req.Params)
	case "get_tissue_overlay_tile":
		return w.getTissueOverlayTile(req.Params)
	default:
		return nil, fmt.Errorf("Unknown command: %s", req.Command)
	}
}

// ---------------------------------------------------------------------------
// Loaders — record IDs so the render command can validate against them
// ---------------------------------------------------------------------------

func (w *worker) loadDataset(params json.RawMessage) (any, error) {
	var p struct {
		DatasetID string `json:"dataset_id"`
		Path      string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params for load_dataset: %v", err)
	}
	w.datasets[p.DatasetID] = p.Path
	fmt.Fprintf(os.Stderr, "Loaded dataset %s from %s\n", p.DatasetID, p.Path)
	return map[string]any{"dataset_id": p.DatasetID, "cells": 4182, "genes": 18085}, nil
}

func (w *worker) loadTIFF(params json.RawMessage) (any, error) {
	var p struct {
		ImgID string `json:"img_id"`
		Path  string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params for load_tiff: %v", err)
	}
	w.images[p.ImgID] = imageInfo{Width: w.width, Height: w.height}
	fmt.Fprintf(os.Stderr, "Loaded image %s from %s\n", p.ImgID, p.Path)
	return map[string]any{"img_id": p.ImgID, "width": w.width, "height": w.height}, nil
}

func (w *worker) loadNPZ(params json.RawMessage) (any, error) {
	var p struct {
		SegID string `json:"seg_id"`
		Path  string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params for load_npz: %v", err)
	}
	w.segmentations[p.SegID] = p.Path
	fmt.Fprintf(os.Stderr, "Loaded segmentation %s from %s\n", p.SegID, p.Path)
	return map[string]any{"seg_id": p.SegID, "cells": 4182}, nil
}

// ---------------------------------------------------------------------------
// Render and tile commands
// ---------------------------------------------------------------------------

func (w *worker) plotTissueOverlay(params json.RawMessage) (any, error) {
	var p struct {
		DatasetID string  `json:"dataset_id"`
		ImgID     string  `json:"img_id"`
		SegID     string  `json:"seg_id"`
		FillKey   string  `json:"fill_key"`
		BorderKey *string `json:"border_key"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params for plot_tissue_overlay: %v", err)
	}

	if _, ok := w.datasets[p.DatasetID]; !ok {
		return nil, fmt.Errorf("Failed to generate tissue overlay: Dataset %s not found", p.DatasetID)
	}
	img, ok := w.images[p.ImgID]
	if !ok {
		return nil, fmt.Errorf("Failed to generate tissue overlay: Image %s not found. Please load TIFF file first.", p.ImgID)
	}
	if _, ok := w.segmentations[p.SegID]; !ok {
		return nil, fmt.Errorf("Failed to generate tissue overlay: Segmentation %s not found. Please load NPZ file first.", p.SegID)
	}

	overlayID := fmt.Sprintf("%s:%s:%s:%s", p.DatasetID, p.ImgID, p.SegID, p.FillKey)
	fmt.Fprintf(os.Stderr, "Rendering overlay %s\n", overlayID)

	meta := renderResult{
		OverlayID: overlayID,
		Width:     img.Width,
		Height:    img.Height,
		TileSize:  tileSize,
		MaxZoom:   maxZoom,
		FillKey:   p.FillKey,
		IsGene:    looksLikeGene(p.FillKey),
	}
	w.overlays[overlayID] = &pyramid{
		meta:  meta,
		zooms: buildPyramid(img.Width, img.Height, p.FillKey),
	}
	fmt.Fprintf(os.Stderr, "Stored tiles for overlay_id: %s\n", overlayID)

	return meta, nil
}

func (w *worker) getTissueOverlayTile(params json.RawMessage) (any, error) {
	var p struct {
		OverlayID string `json:"overlay_id"`
		Zoom      int    `json:"zoom"`
		X         int    `json:"x"`
		Y         int    `json:"y"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params for get_tissue_overlay_tile: %v", err)
	}

	ov, ok := w.overlays[p.OverlayID]
	if !ok {
		return nil, fmt.Errorf("Failed to get tile: Overlay %s not found. Please generate overlay first.", p.OverlayID)
	}
	grid, ok := ov.zooms[p.Zoom]
	if !ok {
		return nil, fmt.Errorf("Failed to get tile: Zoom level %d not found", p.Zoom)
	}
	tile, ok := grid[[2]int{p.X, p.Y}]
	if !ok {
		return nil, fmt.Errorf("Failed to get tile: Tile (%d, %d) not found at zoom %d", p.X, p.Y, p.Zoom)
	}

	return map[string]string{
		"tile":   base64.StdEncoding.EncodeToString(tile),
		"format": "jpeg",
	}, nil
}

// looksLikeGene decides the is_gene flag the way annotated expression
// data usually splits: gene symbols are upper-case ("CD3E"), cluster
// and observation columns are lower-case labels ("leiden").
func looksLikeGene(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if unicode.IsLower(r) {
			return false
		}
	}
	return true
}

// buildPyramid generates the tile grid for every zoom level. Zoom 0 is
// the most zoomed out; each level doubles the resolution until the full
// image size at maxZoom. Edge tiles are clipped to the scaled image
// bounds rather than padded.
func buildPyramid(width, height int, fillKey string) map[int]map[[2]int][]byte {
	zooms := make(map[int]map[[2]int][]byte)
	for zoom := 0; zoom <= maxZoom; zoom++ {
		scale := 1 << (maxZoom - zoom)
		sw, sh := width/scale, height/scale

		grid := make(map[[2]int][]byte)
		for y := 0; y < sh; y += tileSize {
			for x := 0; x < sw; x += tileSize {
				tw := min(tileSize, sw-x)
				th := min(tileSize, sh-y)
				grid[[2]int{x / tileSize, y / tileSize}] = encodeTile(tw, th, zoom, x, y, fillKey)
			}
		}
		zooms[zoom] = grid
		fmt.Fprintf(os.Stderr, "  Zoom %d: %dx%d, %d tiles\n", zoom, sw, sh, len(grid))
	}
	return zooms
}

// encodeTile renders one flat-colored JPEG tile. The color is a stable
// hash of the fill key and tile address, so repeated renders produce
// identical bytes.
func encodeTile(w, h, zoom, px, py int, fillKey string) []byte {
	hs := fnv.New32a()
	fmt.Fprintf(hs, "%s/%d/%d/%d", fillKey, zoom, px, py)
	sum := hs.Sum32()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	col := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, col)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		// A flat RGBA image never fails to encode; keep the protocol
		// alive anyway.
		fmt.Fprintf(os.Stderr, "encoding tile: %v\n", err)
		return nil
	}
	return buf.Bytes()
}
