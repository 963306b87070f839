//go:build !preview

package main

import (
	"context"
	"errors"
)

const previewAvailable = false

var errPreviewUnavailable = errors.New("preview backend not built in (rebuild with -tags preview)")

func runPreview(ctx context.Context, mem *memBackend, src *chanSource, scale int) error {
	return errPreviewUnavailable
}
