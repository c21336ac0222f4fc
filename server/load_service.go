package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spatialkit/tessera/bridge"
)

// LoadService serves the three asset-loading routes. Each hands the
// worker a path on the shared filesystem; the worker reads the file
// itself and answers with a load summary.
type LoadService struct {
	holder *bridge.Holder
}

// NewLoadService creates the load service.
func NewLoadService(holder *bridge.Holder) *LoadService {
	return &LoadService{holder: holder}
}

type loadDatasetRequest struct {
	DatasetID string `json:"dataset_id"`
	Path      string `json:"path"`
}

type loadImageRequest struct {
	ImgID string `json:"img_id"`
	Path  string `json:"path"`
}

type loadSegmentationRequest struct {
	SegID string `json:"seg_id"`
	Path  string `json:"path"`
}

func (s *LoadService) handleDatasets(w http.ResponseWriter, r *http.Request) {
	var req loadDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DatasetID == "" || req.Path == "" {
		writeError(w, 400, "dataset_id and path are required")
		return
	}
	s.dispatch(w, func(b *bridge.Bridge) (json.RawMessage, error) {
		return b.LoadDataset(req.DatasetID, req.Path)
	})
}

func (s *LoadService) handleImages(w http.ResponseWriter, r *http.Request) {
	var req loadImageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ImgID == "" || req.Path == "" {
		writeError(w, 400, "img_id and path are required")
		return
	}
	s.dispatch(w, func(b *bridge.Bridge) (json.RawMessage, error) {
		return b.LoadTIFF(req.ImgID, req.Path)
	})
}

func (s *LoadService) handleSegmentations(w http.ResponseWriter, r *http.Request) {
	var req loadSegmentationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SegID == "" || req.Path == "" {
		writeError(w, 400, "seg_id and path are required")
		return
	}
	s.dispatch(w, func(b *bridge.Bridge) (json.RawMessage, error) {
		return b.LoadNPZ(req.SegID, req.Path)
	})
}

// dispatch runs one load command through the holder and writes the
// worker's summary back unchanged.
func (s *LoadService) dispatch(w http.ResponseWriter, call func(*bridge.Bridge) (json.RawMessage, error)) {
	var data json.RawMessage
	err := s.holder.Do(func(b *bridge.Bridge) error {
		raw, err := call(b)
		if err != nil {
			return err
		}
		data = raw
		return nil
	})
	if err != nil {
		writeError(w, bridgeStatus(err), err.Error())
		return
	}
	writeJSON(w, 200, data)
}

// decodeBody handles the method check and JSON parsing shared by the
// POST routes. It reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
	if err != nil {
		writeError(w, 400, "failed to read body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, 400, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}
