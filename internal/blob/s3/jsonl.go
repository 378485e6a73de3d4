package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// appendObject appends lines to the JSONL object at key, creating it when
// missing. S3 has no append, so the existing body is read and rewritten.
func appendObject(ctx context.Context, r domain.BlobReader, w domain.BlobWriter, key string, lines []byte) (int64, error) {
	existing, err := readObject(ctx, r, key)
	if err != nil {
		return 0, err
	}
	return writeObject(ctx, w, key, existing, lines)
}

// readObject returns the body at key, or nil when it does not exist.
func readObject(ctx context.Context, r domain.BlobReader, key string) ([]byte, error) {
	exists, err := r.Exists(ctx, key)
	if err != nil || !exists {
		return nil, err
	}
	rc, err := r.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Deleted between the two calls.
		return nil, nil
	case err != nil:
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return body, nil
}

// writeObject stores existing followed by lines at key, repairing a missing
// trailing newline between the two.
func writeObject(ctx context.Context, w domain.BlobWriter, key string, existing, lines []byte) (int64, error) {
	var body bytes.Buffer
	body.Grow(len(existing) + len(lines) + 1)
	body.Write(existing)
	if n := body.Len(); n > 0 && body.Bytes()[n-1] != '\n' {
		body.WriteByte('\n')
	}
	body.Write(lines)

	size := int64(body.Len())
	if size > minPartSize {
		return size, w.PutMultipart(ctx, key, &body, minPartSize)
	}
	return size, w.Put(ctx, key, &body, jsonlContentType)
}

// jsonlIDs collects the "id" field of every line in a JSONL body. Lines that
// do not decode are skipped.
func jsonlIDs(body []byte) map[string]struct{} {
	ids := make(map[string]struct{})
	for line := range bytes.Lines(body) {
		var rec struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(line, &rec) == nil && rec.ID != "" {
			ids[rec.ID] = struct{}{}
		}
	}
	return ids
}
