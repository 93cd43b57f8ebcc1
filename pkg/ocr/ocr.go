package ocr

import "context"

// Extractor turns one uploaded answer-sheet file into raw text. Providers
// are treated as black boxes; implementations must honour the context
// deadline.
type Extractor interface {
	Extract(ctx context.Context, fileURL string) (string, error)
}
