package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/forum/internal/metrics"
	"github.com/sakif/forum/internal/model"
)

// maxEnrichFanout caps concurrent comment-count queries per listing.
const maxEnrichFanout = 4

// enrich attaches CommentsCount to every post on a page.
//
// Distinct titles are split into chunks of s.chunkSize and each chunk is
// one CountCommentsByTitles query. Chunks run concurrently; each goroutine
// writes only its own slot in results, so no lock is needed. The output
// keeps the order of posts.
func (s *PostService) enrich(ctx context.Context, posts []model.Post) ([]model.PostSummary, error) {
	out := make([]model.PostSummary, len(posts))
	if len(posts) == 0 {
		return out, nil
	}

	titles := distinctTitles(posts)
	chunks := chunk(titles, s.chunkSize)
	results := make([]map[string]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEnrichFanout)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			metrics.CommentCountBatch.Observe(float64(len(c)))
			counts, err := s.comments.CountCommentsByTitles(gctx, c)
			if err != nil {
				return err
			}
			results[i] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]int, len(titles))
	for _, m := range results {
		for title, n := range m {
			merged[title] = n
		}
	}
	for i, p := range posts {
		out[i] = model.PostSummary{Post: p, CommentsCount: merged[p.Title]}
	}
	return out, nil
}

// distinctTitles returns each title once, in first-seen order.
func distinctTitles(posts []model.Post) []string {
	seen := make(map[string]struct{}, len(posts))
	titles := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.Title]; ok {
			continue
		}
		seen[p.Title] = struct{}{}
		titles = append(titles, p.Title)
	}
	return titles
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}
