// Package inventory lists source rasters and existing COGs and computes
// which sources still need converting.
package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/naming"
	"github.com/fpang/raster-cog-converter/internal/objstore"
)

// Inventory is the outcome of one reconciliation pass.
type Inventory struct {
	Source  []objstore.Object
	Derived map[string]struct{}
	Pending []objstore.Object
}

// Summary holds the totals printed by `cogctl status`.
type Summary struct {
	Total        int
	Derived      int
	Converted    int
	Pending      int
	PendingBytes int64
}

// Progress is the converted share of the source set, in percent.
func (s Summary) Progress() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Converted) / float64(s.Total) * 100
}

// Reconciler computes pending work from the source and derived listings.
type Reconciler struct {
	store         objstore.Store
	sourcePrefix  string
	derivedPrefix string
	filter        Filter
	derive        func(string) string
	overwrite     bool
	snapshots     *SnapshotWriter
}

// New builds a Reconciler from validated settings. Snapshots are written
// to settings.OutputDir unless it is empty.
func New(store objstore.Store, s *config.Settings) (*Reconciler, error) {
	filter, err := FilterFromSettings(s)
	if err != nil {
		return nil, err
	}
	r := &Reconciler{
		store:         store,
		sourcePrefix:  s.SourcePrefix,
		derivedPrefix: s.COGPrefix,
		filter:        filter,
		derive:        s.Deriver().Key,
		overwrite:     s.Overwrite,
	}
	if s.OutputDir != "" {
		r.snapshots = NewSnapshotWriter(s.OutputDir)
	}
	return r, nil
}

// ListSource returns every source object passing the filter, in listing
// order. Any listing error aborts; a partial listing is never returned.
func (r *Reconciler) ListSource(ctx context.Context) ([]objstore.Object, error) {
	objs, err := r.store.List(ctx, r.sourcePrefix)
	if err != nil {
		return nil, fmt.Errorf("list source rasters: %w", err)
	}
	source := make([]objstore.Object, 0, len(objs))
	for _, o := range objs {
		if r.filter.Match(o.Key) {
			source = append(source, o)
		}
	}
	log.Info().
		Str("prefix", r.sourcePrefix).
		Int("listed", len(objs)).
		Int("matched", len(source)).
		Msg("Source rasters listed")
	r.snapshots.Raw(source)
	return source, nil
}

// ListDerived returns the set of existing derived keys.
func (r *Reconciler) ListDerived(ctx context.Context) (map[string]struct{}, error) {
	objs, err := r.store.List(ctx, r.derivedPrefix)
	if err != nil {
		return nil, fmt.Errorf("list converted rasters: %w", err)
	}
	exts := r.filter.Extensions
	if len(exts) == 0 {
		exts = naming.DefaultExtensions
	}
	derived := make(map[string]struct{}, len(objs))
	for _, o := range objs {
		if naming.HasExtension(o.Key, exts) {
			derived[o.Key] = struct{}{}
		}
	}
	log.Info().Str("prefix", r.derivedPrefix).Int("count", len(derived)).Msg("Converted rasters listed")
	r.snapshots.Derived(derived)
	return derived, nil
}

// ComputePending returns the sources whose derived key is absent from
// derived, or all of them when overwrite is set. Order follows source.
func ComputePending(source []objstore.Object, derived map[string]struct{}, derive func(string) string, overwrite bool) []objstore.Object {
	pending := make([]objstore.Object, 0, len(source))
	for _, o := range source {
		if overwrite {
			pending = append(pending, o)
			continue
		}
		if _, done := derived[derive(o.Key)]; !done {
			pending = append(pending, o)
		}
	}
	return pending
}

// Reconcile lists both prefixes completely, then computes the pending set.
func (r *Reconciler) Reconcile(ctx context.Context) (*Inventory, error) {
	source, err := r.ListSource(ctx)
	if err != nil {
		return nil, err
	}
	derived, err := r.ListDerived(ctx)
	if err != nil {
		return nil, err
	}
	pending := ComputePending(source, derived, r.derive, r.overwrite)
	r.snapshots.Pending(pending)

	inv := &Inventory{Source: source, Derived: derived, Pending: pending}
	sum := inv.Summarize(r.derive)
	log.Info().
		Int("total", sum.Total).
		Int("converted", sum.Converted).
		Int("pending", sum.Pending).
		Int64("pendingBytes", sum.PendingBytes).
		Bool("overwrite", r.overwrite).
		Msg("Inventory reconciled")
	return inv, nil
}

// Summarize counts the inventory. Converted counts sources whose derived
// key exists, independent of the overwrite flag.
func (inv *Inventory) Summarize(derive func(string) string) Summary {
	sum := Summary{Total: len(inv.Source), Derived: len(inv.Derived), Pending: len(inv.Pending)}
	for _, o := range inv.Source {
		if _, ok := inv.Derived[derive(o.Key)]; ok {
			sum.Converted++
		}
	}
	for _, o := range inv.Pending {
		sum.PendingBytes += o.Size
	}
	return sum
}
