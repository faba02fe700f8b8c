// Package cache holds the Redis cache-aside layer for single-post lookups.
//
// Only GET /post/{id} reads through the cache. Listings never do, since a
// page depends on every post's counters.
//
// Votes and deletes invalidate a post after the store write succeeds by
// bumping its generation counter and deleting the cached copy. A miss
// returns the generation it saw, and SetPost only fills the key if the
// generation is still the same, checked under WATCH. A reader that loaded
// the row before a vote therefore cannot put the old counters back after
// the vote's invalidation. What remains is the window between the store
// write and the invalidation, during which a hit serves the previous copy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/forum/internal/model"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// PostCache caches posts as JSON under "post:<id>".
type PostCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPostCache(opts Options) *PostCache {
	c := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &PostCache{client: c, ttl: opts.TTL}
}

// Ping checks connectivity at startup.
func (c *PostCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PostCache) Close() error { return c.client.Close() }

// generationTTL outlives any request that could still hold a generation,
// so a counter never resets under a pending fill.
const generationTTL = 24 * time.Hour

func postKey(id string) string {
	return fmt.Sprintf("post:%s", id)
}

func generationKey(id string) string {
	return fmt.Sprintf("post:%s:gen", id)
}

// GetPost returns the cached post. On a miss the post is nil and gen is the
// generation to hand to SetPost after loading the row.
func (c *PostCache) GetPost(ctx context.Context, id string) (*model.Post, int64, error) {
	var postCmd, genCmd *redis.StringCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		postCmd = pipe.Get(ctx, postKey(id))
		genCmd = pipe.Get(ctx, generationKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	gen, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	val, err := postCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var p model.Post
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, 0, err
	}
	return &p, gen, nil
}

// SetPost caches p unless the post was invalidated after gen was read.
// A skipped fill is not an error.
func (c *PostCache) SetPost(ctx context.Context, p *model.Post, gen int64) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	gk := generationKey(p.ID)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, postKey(p.ID), b, c.ttl)
			return nil
		})
		return err
	}, gk)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// InvalidatePost bumps the post's generation and drops the cached copy in
// one transaction.
func (c *PostCache) InvalidatePost(ctx context.Context, id string) error {
	gk := generationKey(id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, postKey(id))
		return nil
	})
	return err
}
