package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/imaging"
	"github.com/cwbudde/grayscalebench/internal/store"
)

type devicesResponse struct {
	Devices    []compute.Device `json:"devices"`
	Selected   *int             `json:"selected"`
	Reason     string           `json:"reason,omitempty"`
	ReasonKind string           `json:"reasonKind,omitempty"`
}

type selectRequest struct {
	Index *int `json:"index"`
}

type imageRequest struct {
	Path string `json:"path"`
}

type runResponse struct {
	bench.Run
	Score *bench.Result `json:"score,omitempty"`
}

// handleDevices handles GET /api/v1/devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices, reason := s.bench.ListDevices()
	resp := devicesResponse{Devices: devices}
	if reason != nil {
		resp.Reason = reason.Error()
		resp.ReasonKind = compute.Kind(reason)
	}
	if dev, ok := s.bench.SelectedDevice(); ok {
		idx := dev.Index
		resp.Selected = &idx
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSelectDevice handles POST /api/v1/devices/select
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.Index == nil {
		writeBadRequest(w, "index is required")
		return
	}

	dev, err := s.bench.SelectDevice(*req.Index)
	if err != nil {
		s.events.Broadcast(errorEvent(err))
		writeError(w, err)
		return
	}

	s.events.Broadcast(Event{Type: EventDevice, Device: dev.Name, Timestamp: time.Now()})
	writeJSON(w, http.StatusOK, dev)
}

// handleImage handles POST /api/v1/image. The body is either an encoded
// image or a JSON object naming a file relative to the image directory.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, fmt.Sprintf("Invalid JSON: %v", err))
			return
		}
		if req.Path == "" {
			writeBadRequest(w, "path is required")
			return
		}
		err = s.loadImagePath(req.Path)
	} else {
		body := http.MaxBytesReader(w, r.Body, maxImageBytes)
		img, derr := imaging.Decode(body)
		if derr != nil {
			writeError(w, derr)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		err = s.bench.LoadImage(img, name)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	info, _ := s.bench.Image()
	s.events.Broadcast(Event{Type: EventImage, Image: info.Name, Timestamp: time.Now()})
	writeJSON(w, http.StatusOK, info)
}

// loadImagePath decodes name from inside the image directory. Names that
// leave it, including through symlinks, are rejected without touching the
// file.
func (s *Server) loadImagePath(name string) error {
	if s.imageDir == "" {
		return errPathLoadingDisabled
	}
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", errPathOutsideImageDir, name)
	}

	root, err := os.OpenRoot(s.imageDir)
	if err != nil {
		return fmt.Errorf("failed to open image directory: %w", err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return fmt.Errorf("%w: %v", errPathOutsideImageDir, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return s.bench.LoadImage(img, name)
}

// handleRun handles POST /api/v1/runs/{cpu,gpu}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := bench.Path(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"))
	if path != bench.PathCPU && path != bench.PathGPU {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		run bench.Run
		err error
	)
	if path == bench.PathCPU {
		run, err = s.bench.RunCPU()
	} else {
		run, err = s.bench.RunGPU()
	}
	if err != nil {
		ev := errorEvent(err)
		ev.Path = path
		s.events.Broadcast(ev)
		writeError(w, err)
		return
	}

	resp := runResponse{Run: run}
	s.events.Broadcast(Event{Type: EventRun, Path: run.Path, Millis: run.Millis, Device: run.Device, Timestamp: time.Now()})
	if res, ok := s.bench.Score(); ok {
		resp.Score = &res
		s.events.Broadcast(Event{Type: EventScore, Score: &res, Timestamp: time.Now()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScore handles GET /api/v1/score
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, ok := s.bench.Score()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Kind:  "NoScore",
			Error: "both paths must run on the current image",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleResultImage handles GET /api/v1/result.png
func (s *Server) handleResultImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img := s.bench.LastImage()
	if img == nil {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleRecords handles GET /api/v1/records
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.records == nil {
		writeJSON(w, http.StatusOK, []store.Record{})
		return
	}
	records, err := s.records.ListRecords()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
