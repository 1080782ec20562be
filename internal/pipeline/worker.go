package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// pageResult is one page's extraction output. Exactly one of model or err
// is set for readable pages; both stay zero for contents pages, which
// carry nothing worth extracting.
type pageResult struct {
	page       int
	model      *parser.PageModel
	classified *classify.Page
	err        error
}

// pageFeed runs page extraction and classification on a worker pool while
// the orchestrator consumes results strictly in page order. Every page has
// its own one-slot channel, so a worker never blocks on publish; a ticket
// channel bounds how many extracted pages may wait unconsumed.
type pageFeed struct {
	r    parser.PageReader
	st   *structure.DocStructure
	opts classify.Options
	log  *slog.Logger

	first   int
	slots   []chan pageResult
	tickets chan struct{}
	g       *errgroup.Group
}

func startFeed(ctx context.Context, r parser.PageReader, st *structure.DocStructure, opts classify.Options, log *slog.Logger, first, last, workers int) *pageFeed {
	f := &pageFeed{
		r:       r,
		st:      st,
		opts:    opts,
		log:     log,
		first:   first,
		slots:   make([]chan pageResult, last-first+1),
		tickets: make(chan struct{}, 2*workers),
	}
	for i := range f.slots {
		f.slots[i] = make(chan pageResult, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	f.g = g
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for p := first; p <= last; p++ {
			select {
			case f.tickets <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for p := range jobs {
				f.slots[p-f.first] <- f.extract(p)
			}
			return nil
		})
	}
	return f
}

func (f *pageFeed) extract(p int) pageResult {
	res := pageResult{page: p}
	if f.st.IsTOCPage(p) {
		return res
	}
	pm, err := f.r.ReadPage(p)
	if err != nil {
		res.err = err
		return res
	}
	res.model = pm
	var title string
	if sec := f.st.PageSection(p); sec != nil {
		title = sec.Title
	}
	res.classified = classify.Classify(pm, title, f.opts, f.log)
	return res
}

// next blocks until the page's result is ready or the context is done.
func (f *pageFeed) next(ctx context.Context, page int) (pageResult, bool) {
	select {
	case res := <-f.slots[page-f.first]:
		return res, true
	case <-ctx.Done():
		return pageResult{}, false
	}
}

// release returns one read-ahead ticket after a page has been consumed.
func (f *pageFeed) release() {
	<-f.tickets
}

// wait drains the pool. The only error it can report is cancellation.
func (f *pageFeed) wait() error {
	return f.g.Wait()
}
