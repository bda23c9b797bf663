package engine

import (
	"context"
	"errors"

	"github.com/caltechlibrary/checkit/internal/model"
	"github.com/caltechlibrary/checkit/internal/worker"
)

// lookupJob resolves one barcode on a pool worker. It carries the run
// context rather than using the pool's own, so a fatal failure anywhere can
// stop every lookup still in flight or queued.
type lookupJob struct {
	ctx      context.Context
	cancel   context.CancelFunc
	client   CatalogClient
	barcode  string
	progress func(Event)
}

func (j lookupJob) Execute(context.Context) worker.Result {
	holdings, err := j.client.Lookup(j.ctx, j.barcode)
	if err != nil {
		if isFatal(err) {
			j.cancel()
		}
		if !errors.Is(err, context.Canceled) {
			reportFailure(j.progress, j.barcode, err)
		}
		return lookupResult{barcode: j.barcode, err: err}
	}
	emitEvent(j.progress, Event{Kind: EventResolved, Barcode: j.barcode, Holdings: len(holdings)})
	return lookupResult{barcode: j.barcode, holdings: holdings}
}

type lookupResult struct {
	barcode  string
	holdings []model.HoldingRecord
	err      error
}

func (r lookupResult) GetError() error {
	return r.err
}

// resolveParallel fans unique barcodes out across a bounded worker pool and
// collects the outcomes. Row assembly stays with the caller, which walks the
// scan in input order, so the report is identical to a sequential run.
func resolveParallel(ctx context.Context, client CatalogClient, unique []string, opts Options) (map[string]outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(opts.Workers, len(unique))
	pool.Start()
	for _, barcode := range unique {
		pool.Submit(lookupJob{
			ctx:      runCtx,
			cancel:   cancel,
			client:   client,
			barcode:  barcode,
			progress: opts.Progress,
		})
	}

	outcomes := make(map[string]outcome, len(unique))
	for _, result := range pool.Wait() {
		res, ok := result.(lookupResult)
		if !ok {
			continue
		}
		outcomes[res.barcode] = outcome{holdings: res.holdings, err: res.err}
	}

	// Surface the first fatal failure in input order, not completion order.
	for _, barcode := range unique {
		if res, ok := outcomes[barcode]; ok && isFatal(res.err) {
			return nil, res.err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return outcomes, nil
}
