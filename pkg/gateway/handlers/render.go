package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/overlay"
)

const maxRenderDimension = 4096

// RenderHandler burns an overlay into a frame and returns the PNG.
type RenderHandler struct {
	MaxBodyBytes  int64
	MaxImageBytes int
}

type renderRequest struct {
	Image   string                     `json:"image"`
	Overlay []types.OverlayInstruction `json:"overlay"`
	Width   int                        `json:"width,omitempty"`
	Height  int                        `json:"height,omitempty"`
}

func (h RenderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	body := io.Reader(r.Body)
	if h.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}
	var req renderRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeCoreErrorJSON(w, reqID, &core.Error{
				Type:    core.ErrInvalidRequest,
				Message: "request body too large",
				Code:    "body_too_large",
			}, http.StatusRequestEntityTooLarge)
			return
		}
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}

	if req.Width < 0 || req.Height < 0 || req.Width > maxRenderDimension || req.Height > maxRenderDimension {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("width and height must be between 0 and 4096", "width"), http.StatusBadRequest)
		return
	}
	if h.MaxImageBytes > 0 && types.DecodedLen(req.Image) > h.MaxImageBytes {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("image is too large", "image"), http.StatusBadRequest)
		return
	}
	frame, err := types.ParseDataURI(req.Image)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam(err.Error(), "image"), http.StatusBadRequest)
		return
	}
	for _, o := range req.Overlay {
		if err := o.Validate(); err != nil {
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam(err.Error(), "overlay"), http.StatusBadRequest)
			return
		}
	}

	png, err := overlay.SnapshotPNG(frame.Data, req.Width, req.Height, req.Overlay)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam(err.Error(), "image"), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
