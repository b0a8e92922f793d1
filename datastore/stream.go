/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/suparena/entitymapper/storagemodels"
)

// PageFunc fetches up to limit cells of one wide row, in column order,
// strictly after the column after (from the first column when after is
// empty). more reports whether cells remain past the returned page.
type PageFunc func(ctx context.Context, after string, limit int) (cells []storagemodels.KeyValue, more bool, err error)

// Pager turns a PageFunc into a cell stream.
type Pager struct {
	Fetch PageFunc
	// Retryable decides whether a failed page is fetched again. Nil never retries.
	Retryable func(error) bool
}

// Stream emits every cell of the row on the returned channel, page by page,
// retrying transient failures with a linear backoff. A failure the
// ErrorHandler accepts refetches the same page, at most MaxRetries times in a
// row. The channel is closed when the row is exhausted, the context is done
// or a fatal error was sent.
func (p Pager) Stream(ctx context.Context, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult {
	options := storagemodels.NewStreamOptions(opts...)
	resultCh := make(chan storagemodels.StreamResult, options.BufferSize)
	go p.worker(ctx, options, resultCh)
	return resultCh
}

func (p Pager) worker(ctx context.Context, options storagemodels.StreamOptions, resultCh chan<- storagemodels.StreamResult) {
	defer close(resultCh)

	var (
		itemIndex  int64
		pageNumber int
		lastKey    string
		accepted   int
		errs       []error
		startTime  = time.Now()
	)

	reportProgress := func() {
		if options.ProgressHandler == nil {
			return
		}
		progress := storagemodels.StreamProgress{
			ItemsProcessed: itemIndex,
			PagesProcessed: pageNumber,
			LastKey:        lastKey,
			Errors:         errs,
			StartTime:      startTime,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(itemIndex) / elapsed
		}
		options.ProgressHandler(progress)
	}

	fail := func(err error) {
		select {
		case <-ctx.Done():
		case resultCh <- storagemodels.StreamResult{
			Error: err,
			Meta:  storagemodels.StreamMeta{Index: itemIndex, PageNumber: pageNumber, Timestamp: time.Now()},
		}:
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		cells, more, err := p.fetchWithRetry(ctx, lastKey, int(options.PageSize), options)
		if err != nil {
			if options.ErrorHandler == nil || !options.ErrorHandler(err) {
				fail(fmt.Errorf("page %d failed: %w", pageNumber+1, err))
				return
			}
			errs = append(errs, err)
			if accepted++; accepted > options.MaxRetries {
				fail(fmt.Errorf("page %d failed %d times: %w", pageNumber+1, accepted, err))
				return
			}
			continue
		}
		accepted = 0
		pageNumber++

		for _, cell := range cells {
			select {
			case <-ctx.Done():
				return
			case resultCh <- storagemodels.StreamResult{
				Item: cell,
				Meta: storagemodels.StreamMeta{Index: itemIndex, PageNumber: pageNumber, Timestamp: time.Now()},
			}:
			}
			itemIndex++
			lastKey = cell.Key
		}

		reportProgress()
		if !more || len(cells) == 0 {
			return
		}
	}
}

func (p Pager) fetchWithRetry(ctx context.Context, after string, limit int, options storagemodels.StreamOptions) ([]storagemodels.KeyValue, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		cells, more, err := p.Fetch(ctx, after, limit)
		if err == nil {
			return cells, more, nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return nil, false, err
		}
		if attempt < options.MaxRetries {
			backoff := time.Duration(attempt+1) * options.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, false, fmt.Errorf("fetch failed after %d retries: %w", options.MaxRetries, lastErr)
}
