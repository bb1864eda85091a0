package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// EncodeDataURL encodes img as a base64 PNG data URL for an image_url part.
func EncodeDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
