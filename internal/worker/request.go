package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/objstore"
)

// Request names the work of one invocation: an inline key list, or a
// manifest to read. Inline keys take precedence.
type Request struct {
	Keys        []string
	ManifestKey string
}

// RequestFromSettings reads TIFF_KEYS and MANIFEST_KEY.
func RequestFromSettings(s *config.Settings) Request {
	return Request{Keys: s.TIFFKeys, ManifestKey: s.ManifestKey}
}

// UsesManifest reports whether Resolve will read the manifest.
func (r Request) UsesManifest() bool {
	return len(cleanKeys(r.Keys)) == 0 && r.ManifestKey != ""
}

// Resolve returns the keys to convert.
func (r Request) Resolve(ctx context.Context, store objstore.Store) ([]string, error) {
	if keys := cleanKeys(r.Keys); len(keys) > 0 {
		return keys, nil
	}
	if r.ManifestKey == "" {
		return nil, fmt.Errorf("%w: set TIFF_KEYS or MANIFEST_KEY", ErrNoRequest)
	}
	data, err := store.Get(ctx, r.ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", r.ManifestKey, err)
	}
	keys, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", r.ManifestKey, err)
	}
	log.Info().Str("manifestKey", r.ManifestKey).Int("keys", len(keys)).Msg("Manifest loaded")
	return keys, nil
}

// ParseManifest accepts a JSON array of keys or an object {"keys": [...]}.
// An empty manifest is an error.
func ParseManifest(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	var keys []string
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: manifest is empty", ErrNoRequest)
	case data[0] == '[':
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	case data[0] == '{':
		var obj struct {
			Keys []string `json:"keys"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		keys = obj.Keys
	default:
		return nil, errors.New("parse manifest: want a JSON array or object")
	}

	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: manifest lists no keys", ErrNoRequest)
	}
	return keys, nil
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ReportKey is where the outcome of a manifest's run is written.
func ReportKey(manifestKey string) string {
	return strings.TrimSuffix(manifestKey, ".json") + ".result.json"
}

// WriteReport stores outcome as JSON next to the manifest.
func WriteReport(ctx context.Context, store objstore.Store, manifestKey string, outcome *BatchOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	key := ReportKey(manifestKey)
	if err := store.Put(ctx, key, data, objstore.UploadOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write report %s: %w", key, err)
	}
	log.Info().Str("reportKey", key).Msg("Batch report written")
	return nil
}
