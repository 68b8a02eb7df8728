package server

import (
	"encoding/json"
	"errors"
	"image"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/imaging"
)

var (
	errPathLoadingDisabled = errors.New("loading images by path is disabled")
	errPathOutsideImageDir = errors.New("path is outside the image directory")
)

// errorResponse is the body of every failed request. Log holds the raw
// compiler output of a kernel build failure.
type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
	Log   string `json:"log,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Kind: errorKind(err), Error: err.Error()}
	if log, ok := compute.IsBuildError(err); ok {
		resp.Log = log
	}
	writeJSON(w, statusFor(err), resp)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "BadRequest", Error: msg})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, bench.ErrNoImage):
		return "NoImage"
	case errors.Is(err, bench.ErrDeviceIndex):
		return "InvalidDeviceIndex"
	case errors.Is(err, imaging.ErrEmptyImage),
		errors.Is(err, imaging.ErrShortBuffer),
		errors.Is(err, image.ErrFormat):
		return "InvalidImage"
	case errors.Is(err, errPathLoadingDisabled), errors.Is(err, errPathOutsideImageDir):
		return "Forbidden"
	case errors.Is(err, fs.ErrNotExist):
		return "NotFound"
	}
	return compute.Kind(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bench.ErrNoImage), errors.Is(err, compute.ErrNotBound):
		return http.StatusConflict
	case errors.Is(err, bench.ErrDeviceIndex),
		errors.Is(err, imaging.ErrEmptyImage),
		errors.Is(err, imaging.ErrShortBuffer),
		errors.Is(err, image.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, compute.ErrNoPlatformsFound), errors.Is(err, compute.ErrNoDevicesFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, compute.ErrKernelBuild), errors.Is(err, compute.ErrKernelLink):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errPathLoadingDisabled), errors.Is(err, errPathOutsideImageDir):
		return http.StatusForbidden
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
