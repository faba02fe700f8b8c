package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// fakeStore implements repository.Store over plain maps. It is a fake, not
// a mock: it behaves like a small database, so tests assert on outcomes
// rather than on which methods were called. The error fields let a test
// simulate a failing backend.

type fakeStore struct {
	mu       sync.Mutex
	posts    map[string]*model.Post
	comments map[string]*model.Comment
	users    map[string]*model.User // keyed by email
	payments map[string]*model.Payment

	// countBatches records the title set of every CountCommentsByTitles call.
	countBatches [][]string

	voteErr  error
	countErr error
	listErr  error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:    make(map[string]*model.Post),
		comments: make(map[string]*model.Comment),
		users:    make(map[string]*model.User),
		payments: make(map[string]*model.Payment),
	}
}

func (f *fakeStore) Close() error { return nil }

// --- posts ---

func (f *fakeStore) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = xid.New().String()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpVote, p.DownVote = 0, 0
	stored := *p
	f.posts[p.ID] = &stored
	return nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	out := *p
	return &out, nil
}

func (f *fakeStore) filterPosts(q repository.PostQuery) []model.Post {
	var out []model.Post
	for _, p := range f.posts {
		if q.Tag != "" && !strings.Contains(strings.ToLower(p.Tag), strings.ToLower(q.Tag)) {
			continue
		}
		if q.AuthorEmail != "" && p.AuthorEmail != q.AuthorEmail {
			continue
		}
		out = append(out, *p)
	}
	return out
}

func (f *fakeStore) ListPosts(_ context.Context, q repository.PostQuery) ([]model.Post, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.filterPosts(q)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.Sort == model.SortRanked && a.NetScore() != b.NetScore() {
			return a.NetScore() > b.NetScore()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if q.Offset >= len(out) {
		return []model.Post{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountPosts(_ context.Context, q repository.PostQuery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filterPosts(q)), nil
}

func (f *fakeStore) ApplyVote(_ context.Context, id string, dir model.VoteDirection) (*model.Post, error) {
	if f.voteErr != nil {
		return nil, f.voteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	switch dir {
	case model.VoteUp:
		p.UpVote++
		if p.DownVote > 0 {
			p.DownVote--
		}
	case model.VoteDown:
		p.DownVote++
		if p.UpVote > 0 {
			p.UpVote--
		}
	}
	out := *p
	return &out, nil
}

func (f *fakeStore) DeletePost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return apperror.NotFound("post", id)
	}
	delete(f.posts, id)
	return nil
}

// --- comments ---

func (f *fakeStore) CreateComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = xid.New().String()
	c.CreatedAt = time.Now()
	stored := *c
	f.comments[c.ID] = &stored
	return nil
}

func (f *fakeStore) GetComment(_ context.Context, id string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	out := *c
	return &out, nil
}

func (f *fakeStore) ListCommentsByTitle(_ context.Context, title string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Comment
	for _, c := range f.comments {
		if c.PostTitle == title {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) CountCommentsByTitles(_ context.Context, titles []string) (map[string]int, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countBatches = append(f.countBatches, append([]string(nil), titles...))
	want := make(map[string]bool, len(titles))
	for _, t := range titles {
		want[t] = true
	}
	out := make(map[string]int)
	for _, c := range f.comments {
		if want[c.PostTitle] {
			out[c.PostTitle]++
		}
	}
	return out, nil
}

func (f *fakeStore) ReportComment(_ context.Context, id, reporter, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return apperror.NotFound("comment", id)
	}
	c.Reported, c.ReportedBy, c.ReportReason = true, reporter, reason
	return nil
}

func (f *fakeStore) ListReportedComments(_ context.Context, opts repository.ListOptions) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Comment
	for _, c := range f.comments {
		if c.Reported {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[id]; !ok {
		return apperror.NotFound("comment", id)
	}
	delete(f.comments, id)
	return nil
}

func (f *fakeStore) CountComments(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments), nil
}

// --- users ---

func (f *fakeStore) InsertUserIfAbsent(_ context.Context, u *model.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return false, nil
	}
	u.ID = xid.New().String()
	u.CreatedAt = time.Now()
	stored := *u
	f.users[u.Email] = &stored
	return true, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeStore) matchUsers(q repository.UserQuery) []model.User {
	var out []model.User
	s := strings.ToLower(q.Search)
	for _, u := range f.users {
		if s == "" || strings.Contains(strings.ToLower(u.Email), s) || strings.Contains(strings.ToLower(u.Name), s) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (f *fakeStore) ListUsers(_ context.Context, q repository.UserQuery) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.matchUsers(q)
	if q.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountUsers(_ context.Context, q repository.UserQuery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matchUsers(q)), nil
}

func (f *fakeStore) SetUserRole(_ context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return apperror.NotFound("user", id)
}

func (f *fakeStore) SetUserBadge(_ context.Context, email string, badge model.BadgeTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return apperror.NotFound("user", email)
	}
	u.Badge = badge
	return nil
}

// --- payments ---

func (f *fakeStore) CreatePayment(_ context.Context, p *model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payments[p.TransactionID]; ok {
		return apperror.Conflict("payment", p.TransactionID)
	}
	p.ID = xid.New().String()
	p.CreatedAt = time.Now()
	stored := *p
	f.payments[p.TransactionID] = &stored
	return nil
}

func (f *fakeStore) CountPayments(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments), nil
}

// =========================================================================
// FAKE CACHE
// =========================================================================

type fakeCache struct {
	mu          sync.Mutex
	posts       map[string]model.Post
	gens        map[string]int64
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{posts: make(map[string]model.Post), gens: make(map[string]int64)}
}

func (c *fakeCache) GetPost(_ context.Context, id string) (*model.Post, int64, error) {
	if c.getErr != nil {
		return nil, 0, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.posts[id]
	if !ok {
		return nil, c.gens[id], nil
	}
	return &p, c.gens[id], nil
}

func (c *fakeCache) SetPost(_ context.Context, p *model.Post, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[p.ID] != gen {
		return nil
	}
	c.posts[p.ID] = *p
	return nil
}

func (c *fakeCache) InvalidatePost(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	delete(c.posts, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// seedUser stores a user directly, bypassing the service.
func seedUser(t *testing.T, f *fakeStore, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email, Role: role, Badge: model.BadgeBronze}
	if _, err := f.InsertUserIfAbsent(context.Background(), u); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return u
}

// seedPost stores a post with explicit counters and creation time.
func seedPost(t *testing.T, f *fakeStore, title, tag string, up, down int, created time.Time) *model.Post {
	t.Helper()
	p := &model.Post{Title: title, Tag: tag, AuthorEmail: "author@example.com", CreatedAt: created}
	if err := f.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("seedPost: %v", err)
	}
	f.mu.Lock()
	f.posts[p.ID].UpVote, f.posts[p.ID].DownVote = up, down
	f.mu.Unlock()
	p.UpVote, p.DownVote = up, down
	return p
}

func seedComment(t *testing.T, f *fakeStore, title string) *model.Comment {
	t.Helper()
	c := &model.Comment{PostTitle: title, Body: "hi", AuthorEmail: "c@example.com"}
	if err := f.CreateComment(context.Background(), c); err != nil {
		t.Fatalf("seedComment: %v", err)
	}
	return c
}
