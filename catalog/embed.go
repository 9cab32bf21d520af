package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EmbedMissing embeds every movie without a stored vector and writes the vector back to the
// graph. Movies with an empty overview are skipped. A failed batch or write is counted in
// the report and does not stop the run; only a cancelled context or an unreadable catalog
// returns an error.
func (c *Catalog) EmbedMissing(ctx context.Context) (Report, error) {
	if c.embedder == nil {
		return Report{}, errors.New("embed missing: no embedder configured")
	}
	manager, err := c.manager()
	if err != nil {
		return Report{}, err
	}

	movies, err := c.movies(ctx, c.missingClause(), false)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Total: len(movies)}
	)
	pending := make([]Movie, 0, len(movies))
	for _, m := range movies {
		if strings.TrimSpace(m.Overview) == "" {
			c.logger.Debug("no overview for %q, skipping", m.Title)
			report.Skipped++
			continue
		}
		pending = append(pending, m)
	}
	c.logger.Info("embedding %d movies (%d skipped)", len(pending), report.Skipped)

	err = c.embedBatches(ctx, pending, func(ctx context.Context, batch []Movie, err error) {
		if err != nil {
			mu.Lock()
			report.Failed += len(batch)
			mu.Unlock()
			return
		}
		for _, m := range batch {
			matched, err := manager.SetNodeVector(ctx, c.index, c.keyProperty, m.Key, m.Embedding)
			mu.Lock()
			switch {
			case err != nil:
				c.logger.Warn("storing embedding for %q: %v", m.Title, err)
				report.Failed++
			case !matched:
				report.Unmatched++
			default:
				report.Embedded++
			}
			mu.Unlock()
		}
	})
	if err != nil {
		return report, err
	}

	c.logger.Info("embed missing done: %s", report)
	return report, nil
}

// GenerateCSV embeds every movie that has an overview and writes the result to w as
// tmdbId,title,overview,embedding rows. The graph is not modified. Rows keep catalog order.
func (c *Catalog) GenerateCSV(ctx context.Context, w io.Writer) (Report, error) {
	if c.embedder == nil {
		return Report{}, errors.New("generate csv: no embedder configured")
	}

	movies, err := c.movies(ctx, c.hasTextClause(), false)
	if err != nil {
		return Report{}, err
	}

	report := Report{Total: len(movies)}
	var mu sync.Mutex

	// Batches embed in place, so movies keeps catalog order.
	err = c.embedBatches(ctx, movies, func(_ context.Context, batch []Movie, err error) {
		if err != nil {
			mu.Lock()
			report.Failed += len(batch)
			mu.Unlock()
		}
	})
	if err != nil {
		return report, err
	}

	out := newCSVWriter(w)
	if err := out.header(); err != nil {
		return report, err
	}
	for _, m := range movies {
		if len(m.Embedding) == 0 {
			continue
		}
		if err := out.write(m); err != nil {
			return report, err
		}
		report.Embedded++
	}
	if err := out.flush(); err != nil {
		return report, err
	}

	c.logger.Info("generate csv done: %s", report)
	return report, nil
}

// embedBatches splits movies into batches and embeds them with bounded concurrency. Vectors
// are stored in the Embedding field of the corresponding element of movies. done runs once
// per batch with the embedding error, if any.
func (c *Catalog) embedBatches(ctx context.Context, movies []Movie, done func(context.Context, []Movie, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(movies); start += c.batchSize {
		end := min(start+c.batchSize, len(movies))
		batch := movies[start:end]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, len(batch))
			for i, m := range batch {
				texts[i] = m.Overview
			}

			vectors, err := c.embedder.EmbedDocuments(gctx, texts)
			if err == nil {
				err = checkVectors(vectors, len(batch))
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn("embedding batch of %d starting at %q: %v", len(batch), batch[0].Title, err)
				done(gctx, batch, err)
				return nil
			}

			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			done(gctx, batch, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("embedder returned an empty vector for text %d", i)
		}
	}
	return nil
}
