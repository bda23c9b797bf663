// Package engine reconciles a shelf scan against the catalog: every scanned
// barcode is looked up, and copies that should be on the shelf but are not
// get pulled into the report alongside the scanned ones.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/caltechlibrary/checkit/internal/model"
	"github.com/caltechlibrary/checkit/internal/tind"
)

// CatalogClient is the slice of the catalog client the engine needs: one
// barcode in, every copy of the owning item out.
type CatalogClient interface {
	Lookup(ctx context.Context, barcode string) ([]model.HoldingRecord, error)
}

// Options tune a reconciliation run.
type Options struct {
	// Workers bounds concurrent lookups. Values below 2 look up one
	// barcode at a time.
	Workers int

	// Statuses decides which holding statuses count as on the shelf.
	// Nil means only the canonical "on shelf" value does.
	Statuses *model.StatusSet

	// Progress, when set, receives an Event per run milestone. With
	// Workers > 1 it may be called from several goroutines at once.
	Progress func(Event)
}

// ErrNoneResolved reports a run in which not one scanned barcode could be
// resolved against the catalog.
var ErrNoneResolved = errors.New("none of the scanned barcodes were found in the catalog")

// outcome is the result of one unique barcode's lookup.
type outcome struct {
	holdings []model.HoldingRecord
	err      error
}

// Run reconciles scanned barcodes against the catalog and returns the report
// rows in their final order. Each requested barcode contributes its own copy
// flagged "original"; sibling copies that are off the shelf follow flagged
// "added", each sibling at most once per run. Barcodes the catalog does not
// know, and lookups that keep failing, are reported through Progress and
// contribute no rows. An authentication or catalog failure aborts the whole
// run; a run in which nothing resolves returns ErrNoneResolved.
func Run(ctx context.Context, client CatalogClient, barcodes []string, opts Options) ([]model.OutputRow, model.RunStats, error) {
	stats := model.RunStats{
		BarcodesRequested: len(barcodes),
		StartedAt:         time.Now(),
	}

	statuses := opts.Statuses
	if statuses == nil {
		s := model.NewStatusSet(nil)
		statuses = &s
	}

	unique := dedupe(barcodes)
	emitEvent(opts.Progress, Event{Kind: EventStarted, Total: len(unique)})

	var (
		outcomes map[string]outcome
		err      error
	)
	if opts.Workers > 1 {
		outcomes, err = resolveParallel(ctx, client, unique, opts)
	} else {
		outcomes, err = resolveSequential(ctx, client, unique, opts)
	}
	if err != nil {
		return nil, stats, err
	}

	for _, barcode := range unique {
		res := outcomes[barcode]
		switch {
		case res.err == nil:
			stats.BarcodesResolved++
		case tind.IsLookupError(res.err):
			stats.BarcodesMissing++
		default:
			stats.BarcodesFailed++
		}
	}

	var rows []model.OutputRow
	if stats.BarcodesResolved > 0 {
		rows = assemble(barcodes, outcomes, statuses, &stats)
	}

	stats.Duration = time.Since(stats.StartedAt)
	emitEvent(opts.Progress, Event{Kind: EventFinished})

	if stats.BarcodesResolved == 0 {
		return nil, stats, ErrNoneResolved
	}
	return rows, stats, nil
}

// resolveSequential looks barcodes up one at a time, in input order.
func resolveSequential(ctx context.Context, client CatalogClient, unique []string, opts Options) (map[string]outcome, error) {
	outcomes := make(map[string]outcome, len(unique))
	for _, barcode := range unique {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		holdings, err := client.Lookup(ctx, barcode)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			outcomes[barcode] = outcome{err: err}
			reportFailure(opts.Progress, barcode, err)
			continue
		}
		outcomes[barcode] = outcome{holdings: holdings}
		emitEvent(opts.Progress, Event{Kind: EventResolved, Barcode: barcode, Holdings: len(holdings)})
	}
	return outcomes, nil
}

// assemble turns lookup outcomes into report rows, walking the scan in its
// original order so the report reads like the shelf. Requested barcodes
// always emit their own row, repeats included; off-shelf siblings are
// appended behind the request that surfaced them, each barcode once per run.
func assemble(barcodes []string, outcomes map[string]outcome, statuses *model.StatusSet, stats *model.RunStats) []model.OutputRow {
	emitted := make(map[string]bool, len(outcomes))
	var rows []model.OutputRow

	for _, barcode := range barcodes {
		res, ok := outcomes[barcode]
		if !ok || res.err != nil {
			continue
		}

		requested := -1
		for i := range res.holdings {
			if res.holdings[i].Barcode == barcode {
				requested = i
				break
			}
		}
		if requested < 0 {
			continue
		}

		rows = append(rows, model.OutputRow{Flag: model.FlagOriginal, HoldingRecord: res.holdings[requested]})
		emitted[barcode] = true
		stats.OriginalRows++

		for i, h := range res.holdings {
			if i == requested || statuses.OnShelf(h.Status) || emitted[h.Barcode] {
				continue
			}
			rows = append(rows, model.OutputRow{Flag: model.FlagAdded, HoldingRecord: h})
			emitted[h.Barcode] = true
			stats.AddedRows++
		}
	}

	return rows
}

// dedupe keeps the first occurrence of each barcode, preserving order.
func dedupe(barcodes []string) []string {
	seen := make(map[string]bool, len(barcodes))
	unique := make([]string, 0, len(barcodes))
	for _, barcode := range barcodes {
		if seen[barcode] {
			continue
		}
		seen[barcode] = true
		unique = append(unique, barcode)
	}
	return unique
}

// isFatal reports whether a lookup error must abort the whole run.
func isFatal(err error) bool {
	return tind.IsAuthenticationError(err) || tind.IsServiceError(err)
}

func reportFailure(progress func(Event), barcode string, err error) {
	if tind.IsLookupError(err) {
		emitEvent(progress, Event{Kind: EventNotFound, Barcode: barcode})
		return
	}
	emitEvent(progress, Event{Kind: EventFailed, Barcode: barcode, Err: err})
}
