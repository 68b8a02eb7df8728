package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/compute/computetest"
	"github.com/cwbudde/grayscalebench/internal/store"
)

type testEnv struct {
	server   *Server
	handler  http.Handler
	records  *store.FSStore
	driver   *computetest.Driver
	imageDir string
}

func newTestEnv(t *testing.T, drv *computetest.Driver, kernelSource string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	kernelPath := filepath.Join(dir, "grayscale.cl")
	if err := os.WriteFile(kernelPath, []byte(kernelSource), 0644); err != nil {
		t.Fatal(err)
	}
	records, err := store.NewFSStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	imageDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		t.Fatal(err)
	}

	b := bench.New(drv, bench.Options{KernelPath: kernelPath, Store: records})
	t.Cleanup(b.Close)

	s := NewServer(":0", b, records, imageDir)
	return &testEnv{server: s, handler: s.Handler(), records: records, driver: drv, imageDir: imageDir}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

func encodeTestImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 30), uint8(y * 30), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestServer_ListDevices(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	w := env.do(t, http.MethodGet, "/api/v1/devices", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp devicesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Devices) != 1 || resp.Devices[0].Name != "Fake GPU" {
		t.Errorf("Unexpected devices %+v", resp.Devices)
	}
	if resp.Selected != nil {
		t.Errorf("No device should be selected, got %d", *resp.Selected)
	}
}

func TestServer_ListDevices_EmptyCatalog(t *testing.T) {
	env := newTestEnv(t, computetest.New(), computetest.Source)

	w := env.do(t, http.MethodGet, "/api/v1/devices", "", nil)

	var resp devicesResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ReasonKind != "NoPlatformsFound" {
		t.Errorf("Expected NoPlatformsFound, got %q", resp.ReasonKind)
	}

	w = env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(`{"index":0}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestServer_SelectDevice(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	w := env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(`{"index":0}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/devices", "", nil)
	var resp devicesResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Selected == nil || *resp.Selected != 0 {
		t.Errorf("Expected device 0 selected, got %v", resp.Selected)
	}
}

func TestServer_SelectDevice_BadRequests(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	tests := []struct {
		body string
		kind string
	}{
		{`{"index":`, "BadRequest"},
		{`{}`, "BadRequest"},
		{`{"index":4}`, "InvalidDeviceIndex"},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(tt.body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", tt.body, w.Code)
		}
		if resp := decodeError(t, w); resp.Kind != tt.kind {
			t.Errorf("%s: expected kind %s, got %s", tt.body, tt.kind, resp.Kind)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/devices/select", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_RunGPU_NotBound(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)
	env.do(t, http.MethodPost, "/api/v1/image", "image/png", encodeTestImage(t, 4, 4))

	w := env.do(t, http.MethodPost, "/api/v1/runs/gpu", "", nil)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Kind != "SessionBindFailure" {
		t.Errorf("Expected SessionBindFailure, got %s", resp.Kind)
	}
}

func TestServer_RunCPU_NoImage(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	w := env.do(t, http.MethodPost, "/api/v1/runs/cpu", "", nil)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Kind != "NoImage" {
		t.Errorf("Expected NoImage, got %s", resp.Kind)
	}
}

func TestServer_RunRoutes(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	if w := env.do(t, http.MethodPost, "/api/v1/runs/tpu", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/runs/cpu", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_LoadImage(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	w := env.do(t, http.MethodPost, "/api/v1/image?name=lena.png", "image/png", encodeTestImage(t, 6, 5))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var info bench.ImageInfo
	json.NewDecoder(w.Body).Decode(&info)
	if info != (bench.ImageInfo{Name: "lena.png", Width: 6, Height: 5}) {
		t.Errorf("Unexpected image info %+v", info)
	}

	w = env.do(t, http.MethodPost, "/api/v1/image", "image/png", []byte("not a png"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Kind != "InvalidImage" {
		t.Errorf("Expected InvalidImage, got %s", resp.Kind)
	}
}

func TestServer_LoadImageFromPath(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)
	os.WriteFile(filepath.Join(env.imageDir, "in.png"), encodeTestImage(t, 3, 2), 0644)

	body, _ := json.Marshal(imageRequest{Path: "in.png"})
	w := env.do(t, http.MethodPost, "/api/v1/image", "application/json", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(imageRequest{Path: "missing.png"})
	w = env.do(t, http.MethodPost, "/api/v1/image", "application/json", body)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/image", "application/json", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServer_LoadImageFromPath_OutsideImageDir(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)
	outside := filepath.Join(t.TempDir(), "secret.png")
	os.WriteFile(outside, encodeTestImage(t, 3, 2), 0644)

	paths := []string{outside, "../secret.png", filepath.Join("..", "..", "etc", "passwd")}
	if err := os.Symlink(outside, filepath.Join(env.imageDir, "link.png")); err == nil {
		paths = append(paths, "link.png")
	}

	for _, p := range paths {
		body, _ := json.Marshal(imageRequest{Path: p})
		w := env.do(t, http.MethodPost, "/api/v1/image", "application/json", body)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: expected status 403, got %d", p, w.Code)
			continue
		}
		if resp := decodeError(t, w); resp.Kind != "Forbidden" {
			t.Errorf("%s: expected Forbidden, got %s", p, resp.Kind)
		}
	}

	if _, loaded := env.server.bench.Image(); loaded {
		t.Error("No image should be loaded from outside the image directory")
	}
}

func TestServer_LoadImageFromPath_Disabled(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "in.png"), encodeTestImage(t, 3, 2), 0644)
	s := NewServer(":0", bench.New(nil, bench.Options{}), nil, "")

	body, _ := json.Marshal(imageRequest{Path: filepath.Join(dir, "in.png")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/image", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestServer_FullBenchmark(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	if w := env.do(t, http.MethodGet, "/api/v1/score", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected no score yet, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/result.png", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected no result yet, got %d", w.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(`{"index":0}`))
	env.do(t, http.MethodPost, "/api/v1/image", "image/png", encodeTestImage(t, 8, 8))

	w := env.do(t, http.MethodPost, "/api/v1/runs/cpu", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("CPU run failed: %d %s", w.Code, w.Body.String())
	}
	var cpu runResponse
	json.NewDecoder(w.Body).Decode(&cpu)
	if cpu.Path != bench.PathCPU || cpu.Score != nil {
		t.Errorf("Unexpected CPU response %+v", cpu)
	}

	w = env.do(t, http.MethodPost, "/api/v1/runs/gpu", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GPU run failed: %d %s", w.Code, w.Body.String())
	}
	var gpu runResponse
	json.NewDecoder(w.Body).Decode(&gpu)
	if gpu.Device != "Fake GPU" || gpu.Score == nil {
		t.Errorf("Unexpected GPU response %+v", gpu)
	}

	w = env.do(t, http.MethodGet, "/api/v1/score", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var res bench.Result
	json.NewDecoder(w.Body).Decode(&res)
	if res.Rank != bench.RankFor(bench.RawScore(res.CPUMillis, res.GPUMillis)) {
		t.Errorf("Rank %q does not match score %d", res.Rank, res.Score)
	}

	w = env.do(t, http.MethodGet, "/api/v1/result.png", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	out, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if out.Bounds().Dx() != 8 {
		t.Errorf("Expected width 8, got %d", out.Bounds().Dx())
	}
	r, g, b, _ := out.At(3, 3).RGBA()
	if r != g || g != b {
		t.Errorf("Result pixel is not gray: %d %d %d", r, g, b)
	}

	w = env.do(t, http.MethodGet, "/api/v1/records", "", nil)
	var records []store.Record
	json.NewDecoder(w.Body).Decode(&records)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Device != "Fake GPU" {
		t.Errorf("Unexpected record device %q", records[0].Device)
	}
}

func TestServer_BuildFailureReturnsLog(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), "__kernel void ToGrayscale(__global uchar4 *a, __global uchar4 *b) {")
	env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(`{"index":0}`))
	env.do(t, http.MethodPost, "/api/v1/image", "image/png", encodeTestImage(t, 4, 4))

	w := env.do(t, http.MethodPost, "/api/v1/runs/gpu", "", nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Kind != "KernelBuildFailure" {
		t.Errorf("Expected KernelBuildFailure, got %s", resp.Kind)
	}
	if resp.Log != "<source>: error: expected '}'" {
		t.Errorf("Unexpected build log %q", resp.Log)
	}
	if env.driver.Live(computetest.KindBuffer) != 0 {
		t.Error("Buffers leaked after build failure")
	}
}

func TestServer_RecordsWithoutStore(t *testing.T) {
	s := NewServer(":0", bench.New(nil, bench.Options{}), nil, "")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/records", nil))

	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %d %q", w.Code, w.Body.String())
	}
}

func TestServer_CORS(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)

	w := env.do(t, http.MethodOptions, "/api/v1/devices", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe()
	eb.Broadcast(Event{Type: EventRun, Path: bench.PathCPU, Millis: 12})

	select {
	case ev := <-ch:
		if ev.Type != EventRun || ev.Millis != 12 {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}

	late := eb.Subscribe()
	select {
	case ev := <-late:
		if ev.Type != EventRun {
			t.Errorf("Expected replay of last event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Late subscriber did not get the last event")
	}

	eb.Unsubscribe(ch)
	eb.Close()
	if _, ok := <-late; ok {
		t.Error("Channel should be closed after Close")
	}
	eb.Unsubscribe(late)

	if _, ok := <-eb.Subscribe(); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestServer_EventStream(t *testing.T) {
	env := newTestEnv(t, computetest.SingleGPU(), computetest.Source)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("Expected connect comment, got %q", line)
	}

	env.do(t, http.MethodPost, "/api/v1/devices/select", "application/json", []byte(`{"index":0}`))

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Stream ended before device event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			var ev Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("Bad event payload: %v", err)
			}
			if ev.Type != EventDevice || ev.Device != "Fake GPU" {
				t.Errorf("Unexpected event %+v", ev)
			}
			break
		}
	}

	if err := env.server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
