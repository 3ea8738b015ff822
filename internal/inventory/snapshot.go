package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/objstore"
)

// Snapshot file names. Source listings hold "key\tsize" lines; the derived
// listing holds one key per line.
const (
	RawSnapshot     = "raw_tiffs.txt"
	DerivedSnapshot = "existing_cogs.txt"
	PendingSnapshot = "pending_conversions.txt"
)

// SnapshotWriter records each listing of a run for later diffing. Writes
// are best effort: failures are logged and never fail reconciliation.
// A nil *SnapshotWriter writes nothing.
type SnapshotWriter struct {
	dir string
}

// NewSnapshotWriter writes snapshots into dir.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

func (w *SnapshotWriter) Raw(objs []objstore.Object) {
	w.write(RawSnapshot, sizedLines(objs))
}

// Derived is written sorted since set order is random.
func (w *SnapshotWriter) Derived(set map[string]struct{}) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.write(DerivedSnapshot, keys)
}

func (w *SnapshotWriter) Pending(objs []objstore.Object) {
	w.write(PendingSnapshot, sizedLines(objs))
}

func (w *SnapshotWriter) write(name string, keys []string) {
	if w == nil {
		return
	}
	path := filepath.Join(w.dir, name)
	if err := writeLines(path, keys); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write snapshot")
		return
	}
	log.Debug().Str("path", path).Int("keys", len(keys)).Msg("Snapshot written")
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func sizedLines(objs []objstore.Object) []string {
	lines := make([]string, len(objs))
	for i, o := range objs {
		lines[i] = o.Key + "\t" + strconv.FormatInt(o.Size, 10)
	}
	return lines
}
