package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

func pngFrame(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return types.EncodeDataURI("image/png", buf.Bytes())
}

func renderRequestBody(t *testing.T, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, "/v1/overlay/render", bytes.NewReader(data))
}

func TestRenderHandler_ReturnsPNGAtRequestedSize(t *testing.T) {
	req := renderRequestBody(t, map[string]any{
		"image":  pngFrame(t, 64, 48),
		"width":  128,
		"height": 96,
		"overlay": []map[string]any{
			{"type": "highlight", "x": 10, "y": 10, "width": 30, "height": 40, "color": "#ff0000"},
			{"type": "label", "x": 50, "y": 50, "label": "Chair"},
		},
	})
	rr := httptest.NewRecorder()
	RenderHandler{}.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type=%q", ct)
	}
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 96 {
		t.Fatalf("size=%v", b)
	}
}

func TestRenderHandler_NativeSizeWhenOmitted(t *testing.T) {
	req := renderRequestBody(t, map[string]any{"image": pngFrame(t, 40, 30), "overlay": []any{}})
	rr := httptest.NewRecorder()
	RenderHandler{}.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Fatalf("size=%v", b)
	}
}

func TestRenderHandler_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
		param  string
	}{
		{name: "method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, body: "{", status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, body: `{"image":"x","zoom":2}`, status: http.StatusBadRequest},
		{name: "not a data uri", method: http.MethodPost, body: `{"image":"http://example.com/a.png"}`, status: http.StatusBadRequest, param: "image"},
		{name: "undecodable frame", method: http.MethodPost, body: `{"image":"data:image/png;base64,aGVsbG8="}`, status: http.StatusBadRequest, param: "image"},
		{name: "negative width", method: http.MethodPost, body: `{"image":"x","width":-1}`, status: http.StatusBadRequest, param: "width"},
		{name: "bad overlay type", method: http.MethodPost, body: `{"image":"data:image/png;base64,aGVsbG8=","overlay":[{"type":"sparkle"}]}`, status: http.StatusBadRequest, param: "overlay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/overlay/render", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			RenderHandler{}.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d body=%q", rr.Code, tt.status, rr.Body.String())
			}
			if tt.param == "" {
				return
			}
			errObj, _ := decodeBody(t, rr)["error"].(map[string]any)
			if errObj["param"] != tt.param {
				t.Fatalf("param=%v, want %q", errObj["param"], tt.param)
			}
		})
	}
}

func TestRenderHandler_BodyTooLarge(t *testing.T) {
	req := renderRequestBody(t, map[string]any{"image": pngFrame(t, 32, 32)})
	rr := httptest.NewRecorder()
	RenderHandler{MaxBodyBytes: 16}.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
