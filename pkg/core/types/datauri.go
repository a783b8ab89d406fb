package types

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURI is returned for images that are not base64 data URIs.
var ErrInvalidDataURI = errors.New("invalid image data uri")

// DataURI is a decoded `data:<mime>;base64,<payload>` image.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// ParseDataURI splits the mime-type prefix off a data URI and decodes the
// base64 payload.
func ParseDataURI(raw string) (DataURI, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return DataURI{}, fmt.Errorf("%w: payload must be base64", ErrInvalidDataURI)
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	if !strings.HasPrefix(mime, "image/") {
		return DataURI{}, fmt.Errorf("%w: unsupported mime type %q", ErrInvalidDataURI, mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DataURI{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return DataURI{}, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return DataURI{MIMEType: mime, Data: data}, nil
}

// DecodedLen estimates the decoded size of a data URI payload without
// decoding it.
func DecodedLen(raw string) int {
	_, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return 0
	}
	return base64.StdEncoding.DecodedLen(len(payload))
}

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
