// Package ocr defines the text recognition boundary.
package ocr

import "context"

// Provider extracts printed text from a JPEG image. An image without text
// yields an empty string and a nil error.
type Provider interface {
	Read(ctx context.Context, jpeg []byte) (string, error)
}
