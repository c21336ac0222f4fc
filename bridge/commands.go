package bridge

import "encoding/json"

// Typed wrappers for the worker's commands. Each shapes a parameter
// payload with the wire's fixed field names, delegates to Call, and
// returns the worker's result unchanged — no validation beyond the type
// system, no state, no retries.

type renderParams struct {
	DatasetID string  `json:"dataset_id"`
	ImgID     string  `json:"img_id"`
	SegID     string  `json:"seg_id"`
	FillKey   string  `json:"fill_key"`
	BorderKey *string `json:"border_key"`
}

type tileParams struct {
	OverlayID string `json:"overlay_id"`
	Zoom      int    `json:"zoom"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

type loadDatasetParams struct {
	DatasetID string `json:"dataset_id"`
	Path      string `json:"path"`
}

type loadTIFFParams struct {
	ImgID string `json:"img_id"`
	Path  string `json:"path"`
}

type loadNPZParams struct {
	SegID string `json:"seg_id"`
	Path  string `json:"path"`
}

// RenderOverlay renders fill (and optionally border) attributes onto the
// tissue image and builds the tile pyramid for it. The result carries the
// overlay metadata: overlay_id, width, height, tile_size, max_zoom,
// fill_key, is_gene. A nil borderKey goes out as JSON null, matching what
// the worker expects for "no border".
func (b *Bridge) RenderOverlay(datasetID, imgID, segID, fillKey string, borderKey *string) (json.RawMessage, error) {
	return b.Call("plot_tissue_overlay", renderParams{
		DatasetID: datasetID,
		ImgID:     imgID,
		SegID:     segID,
		FillKey:   fillKey,
		BorderKey: borderKey,
	})
}

// GetTile fetches one tile of a rendered overlay. The result is
// {tile: <base64 JPEG>, format: "jpeg"}. Called frequently while the user
// pans and zooms.
func (b *Bridge) GetTile(overlayID string, zoom, x, y int) (json.RawMessage, error) {
	return b.Call("get_tissue_overlay_tile", tileParams{
		OverlayID: overlayID,
		Zoom:      zoom,
		X:         x,
		Y:         y,
	})
}

// LoadDataset loads an AnnData dataset into the worker under datasetID.
func (b *Bridge) LoadDataset(datasetID, path string) (json.RawMessage, error) {
	return b.Call("load_dataset", loadDatasetParams{DatasetID: datasetID, Path: path})
}

// LoadTIFF loads a tissue TIFF image into the worker under imgID.
func (b *Bridge) LoadTIFF(imgID, path string) (json.RawMessage, error) {
	return b.Call("load_tiff", loadTIFFParams{ImgID: imgID, Path: path})
}

// LoadNPZ loads a segmentation NPZ into the worker under segID.
func (b *Bridge) LoadNPZ(segID, path string) (json.RawMessage, error) {
	return b.Call("load_npz", loadNPZParams{SegID: segID, Path: path})
}
