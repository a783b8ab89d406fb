package mw

import (
	"net/http"
	"strings"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
)

const (
	apiVersionHeader    = "X-OmniGuide-Version"
	apiVersionQuery     = "v"
	supportedAPIVersion = "1"
)

// APIVersion pins /v1 routes to protocol version 1. Clients may state the
// version in the X-OmniGuide-Version header or, since browsers cannot set
// headers on a WebSocket handshake, in the "v" query parameter of /v1/live.
// "1" and "v1" are accepted; no version means 1. Every /v1 response carries
// the served version.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isV1Path(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(apiVersionHeader, supportedAPIVersion)

		requested, param := requestedVersions(r)
		for _, v := range requested {
			if normalizeVersion(v) == supportedAPIVersion {
				continue
			}
			reqID, _ := RequestIDFrom(r.Context())
			writeJSONError(w, http.StatusBadRequest, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   "unsupported OmniGuide protocol version " + quoteVersion(v) + "; this server speaks version " + supportedAPIVersion,
				Param:     param,
				Code:      "unsupported_version",
				RequestID: reqID,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestedVersions returns the stated versions and where they came from.
// The header wins over the query parameter.
func requestedVersions(r *http.Request) ([]string, string) {
	if versions := splitVersions(r.Header.Values(apiVersionHeader)); len(versions) > 0 {
		return versions, apiVersionHeader
	}
	if isWebSocketUpgrade(r) {
		return splitVersions(r.URL.Query()[apiVersionQuery]), apiVersionQuery
	}
	return nil, ""
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

func quoteVersion(v string) string {
	if len(v) > 16 {
		v = v[:16]
	}
	return `"` + v + `"`
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

func isWebSocketUpgrade(r *http.Request) bool {
	upgrade := false
	for _, value := range r.Header.Values("Connection") {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
				upgrade = true
			}
		}
	}
	return upgrade && strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func splitVersions(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
