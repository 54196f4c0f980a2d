package core

import "context"

// DocumentExtractor converts a raw file on disk into plain text.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
	// Version names the extraction algorithm; cached text is keyed by it.
	Version() string
}
