// Package submit partitions pending rasters into manifests and submits
// one conversion job per manifest.
package submit

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/fpang/raster-cog-converter/internal/jobs"
	"github.com/fpang/raster-cog-converter/internal/objstore"
)

// Chunk is one unit of submission: the keys of a single manifest.
type Chunk struct {
	Index       int
	JobName     string
	ManifestKey string
	Keys        []string
	Bytes       int64
}

// Plan is the full partition of one submit run. Dry runs print it; live
// runs execute it, so both see identical chunk boundaries.
type Plan struct {
	RunID     string
	CreatedAt time.Time
	Chunks    []Chunk
}

// FileCount is the number of keys across all chunks.
func (p Plan) FileCount() int {
	n := 0
	for _, c := range p.Chunks {
		n += len(c.Keys)
	}
	return n
}

// Keys returns every key of the plan in submission order.
func (p Plan) Keys() []string {
	return lo.FlatMap(p.Chunks, func(c Chunk, _ int) []string { return c.Keys })
}

// Partition splits pending into consecutive runs of at most size objects.
func Partition(pending []objstore.Object, size int) ([][]objstore.Object, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return lo.Chunk(pending, size), nil
}

// BuildPlan names every chunk and its manifest key. The result depends only
// on its arguments.
func BuildPlan(pending []objstore.Object, chunkSize int, jobPrefix, manifestPrefix string, at time.Time, runID string) (Plan, error) {
	parts, err := Partition(pending, chunkSize)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{RunID: runID, CreatedAt: at.UTC(), Chunks: make([]Chunk, 0, len(parts))}
	for i, part := range parts {
		name := jobs.Name(jobPrefix, at, runID, i)
		plan.Chunks = append(plan.Chunks, Chunk{
			Index:       i,
			JobName:     name,
			ManifestKey: manifestPrefix + name + ".json",
			Keys:        lo.Map(part, func(o objstore.Object, _ int) string { return o.Key }),
			Bytes:       lo.SumBy(part, func(o objstore.Object) int64 { return o.Size }),
		})
	}
	return plan, nil
}
