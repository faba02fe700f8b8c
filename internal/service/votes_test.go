package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
)

func newTestVoteService(t *testing.T) (*VoteService, *fakeStore, *fakeCache) {
	t.Helper()
	store := newFakeStore()
	cache := newFakeCache()
	return NewVoteService(store, cache, testLogger()), store, cache
}

func TestVote_Transitions(t *testing.T) {
	tests := []struct {
		name             string
		up, down         int
		dir              model.VoteDirection
		wantUp, wantDown int
	}{
		{"up cancels a down vote", 0, 3, model.VoteUp, 1, 2},
		{"up with no down votes adds one", 4, 0, model.VoteUp, 5, 0},
		{"down cancels an up vote", 3, 1, model.VoteDown, 2, 2},
		{"down with no up votes adds one", 0, 0, model.VoteDown, 0, 1},
		{"up from zero", 0, 0, model.VoteUp, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestVoteService(t)
			p := seedPost(t, store, "T", "go", tt.up, tt.down, time.Now())

			got, err := svc.Apply(context.Background(), p.ID, tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUp, got.UpVote, "UpVote")
			assert.Equal(t, tt.wantDown, got.DownVote, "DownVote")
		})
	}
}

func TestVote_Sequence(t *testing.T) {
	svc, store, _ := newTestVoteService(t)
	p := seedPost(t, store, "T", "go", 0, 3, time.Now())
	ctx := context.Background()

	steps := []struct {
		dir      model.VoteDirection
		up, down int
	}{
		{model.VoteUp, 1, 2},
		{model.VoteUp, 2, 1},
		{model.VoteUp, 3, 0},
		{model.VoteUp, 4, 0},
		{model.VoteDown, 3, 1},
	}
	for i, step := range steps {
		got, err := svc.Apply(ctx, p.ID, step.dir)
		require.NoError(t, err, "step %d", i)
		if got.UpVote != step.up || got.DownVote != step.down {
			t.Fatalf("step %d (%s): got (%d,%d), want (%d,%d)",
				i, step.dir, got.UpVote, got.DownVote, step.up, step.down)
		}
	}
}

func TestVote_ConcurrentVotesAreAllApplied(t *testing.T) {
	svc, store, _ := newTestVoteService(t)
	p := seedPost(t, store, "T", "go", 0, 1, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(context.Background(), p.ID, model.VoteUp); err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UpVote)
	assert.Equal(t, 0, got.DownVote)
}

func TestVote_InvalidatesCache(t *testing.T) {
	svc, store, cache := newTestVoteService(t)
	p := seedPost(t, store, "T", "go", 0, 0, time.Now())
	require.NoError(t, cache.SetPost(context.Background(), p, 0))

	_, err := svc.Apply(context.Background(), p.ID, model.VoteUp)
	require.NoError(t, err)

	cached, _, _ := cache.GetPost(context.Background(), p.ID)
	assert.Nil(t, cached, "cached post should be gone after a vote")
	assert.Equal(t, []string{p.ID}, cache.invalidated)
}

func TestVote_Errors(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		dir     model.VoteDirection
		voteErr error
		want    error
	}{
		{"empty id", "", model.VoteUp, nil, apperror.ErrValidation},
		{"malformed id", "not-an-id", model.VoteUp, nil, apperror.ErrValidation},
		{"bad direction", xid.New().String(), "sideways", nil, apperror.ErrValidation},
		{"unknown post", xid.New().String(), model.VoteDown, nil, apperror.ErrNotFound},
		{"contention", xid.New().String(), model.VoteUp, apperror.Conflict("post", "x"), apperror.ErrConflict},
		{"store down", xid.New().String(), model.VoteUp, apperror.Transient("vote", errors.New("dial")), apperror.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, cache := newTestVoteService(t)
			store.voteErr = tt.voteErr

			_, err := svc.Apply(context.Background(), tt.id, tt.dir)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.want)
			}
			assert.Empty(t, cache.invalidated, "failed votes must not touch the cache")
		})
	}
}

func TestVoteResult(t *testing.T) {
	assert.Equal(t, "ok", voteResult(nil))
	assert.Equal(t, "not_found", voteResult(apperror.NotFound("post", "1")))
	assert.Equal(t, "conflict", voteResult(apperror.Conflict("post", "1")))
	assert.Equal(t, "unavailable", voteResult(apperror.Transient("vote", nil)))
	assert.Equal(t, "error", voteResult(errors.New("boom")))
}
