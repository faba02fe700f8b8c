package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forum/internal/auth"
	"github.com/sakif/forum/internal/model"
	sqliteRepo "github.com/sakif/forum/internal/repository/sqlite"
	"github.com/sakif/forum/internal/service"
)

// testEmailHeader stands in for a verified token. The real server gets the
// email from auth.OptionalAuth; here a header is enough.
const testEmailHeader = "X-Test-Email"

type testAPI struct {
	router http.Handler
	db     *sqliteRepo.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := service.NewGate(db)

	posts := NewPostHandler(
		service.NewPostService(db, db, db, gate, logger, service.PostServiceOptions{}),
		service.NewVoteService(db, nil, logger),
		logger,
	)
	users := NewUserHandler(service.NewUserService(db, gate, logger), logger)
	comments := NewCommentHandler(service.NewCommentService(db, gate, logger), logger)
	admin := NewAdminHandler(
		service.NewPaymentService(db, db, gate, logger),
		service.NewStatsService(db, gate),
		logger,
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if email := req.Header.Get(testEmailHeader); email != "" {
				req = req.WithContext(auth.WithEmail(req.Context(), email))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/post", posts.HandleCreate)
	r.Get("/post/{id}", posts.HandleGet)
	r.Patch("/post/upVote/{id}", posts.HandleUpVote)
	r.Patch("/post/downVote/{id}", posts.HandleDownVote)
	r.Delete("/post/delete/{id}", posts.HandleDelete)
	r.Get("/posts", posts.HandleList)
	r.Get("/posts/{email}", posts.HandleListByAuthor)
	r.Get("/postsCount", posts.HandleCount)
	r.Get("/badge/{email}", posts.HandleBadge)
	r.Post("/users", users.HandleRegister)
	r.Get("/users", users.HandleList)
	r.Get("/user/{email}", users.HandleGet)
	r.Patch("/user/role/{id}", users.HandleSetRole)
	r.Post("/comment", comments.HandleCreate)
	r.Get("/comment/{title}", comments.HandleListByTitle)
	r.Post("/comment/report/{id}", comments.HandleReport)
	r.Get("/reports", comments.HandleListReports)
	r.Delete("/reports/{id}", comments.HandleResolveReport)
	r.Post("/payments", admin.HandleRecordPayment)
	r.Get("/admin-stats", admin.HandleStats)

	return &testAPI{router: r, db: db}
}

// do sends a request as email ("" for anonymous). A non-nil body is sent
// as JSON; a string body is sent verbatim.
func (a *testAPI) do(t *testing.T, method, path, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set(testEmailHeader, email)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

// createPost creates a post as author and returns its id.
func (a *testAPI) createPost(t *testing.T, author, title, tag string) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/post", author, map[string]string{"title": title, "tag": tag, "body": "body"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[map[string]string](t, rr)["insertedId"]
}

// registerAdmin registers email and promotes it directly in the store.
func (a *testAPI) registerAdmin(t *testing.T, email string) {
	t.Helper()
	u := &model.User{Email: email, Name: "Admin"}
	_, err := a.db.InsertUserIfAbsent(context.Background(), u)
	require.NoError(t, err)
	require.NoError(t, a.db.SetUserRole(context.Background(), u.ID, model.RoleAdmin))
}

func TestCreatePost(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name      string
		email     string
		body      any
		wantCode  int
		wantError string
		wantField string
	}{
		{
			name:     "member creates post",
			email:    "ana@example.com",
			body:     map[string]string{"title": "Hello", "tag": "go", "body": "first"},
			wantCode: http.StatusCreated,
		},
		{
			name:      "anonymous caller",
			body:      map[string]string{"title": "Hello", "tag": "go"},
			wantCode:  http.StatusUnauthorized,
			wantError: "unauthorized",
		},
		{
			name:      "missing title",
			email:     "ana@example.com",
			body:      map[string]string{"tag": "go"},
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "title",
		},
		{
			name:      "malformed JSON",
			email:     "ana@example.com",
			body:      `{"title":`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "body",
		},
		{
			name:      "empty body",
			email:     "ana@example.com",
			body:      "",
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "body",
		},
		{
			name:      "posting under another email",
			email:     "ana@example.com",
			body:      map[string]string{"title": "Hi", "tag": "go", "authorEmail": "bob@example.com"},
			wantCode:  http.StatusForbidden,
			wantError: "forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, "/post", tt.email, tt.body)
			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())

			if tt.wantError == "" {
				assert.NotEmpty(t, decode[map[string]string](t, rr)["insertedId"])
				return
			}
			resp := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
		})
	}
}

func TestGetPost(t *testing.T) {
	api := newTestAPI(t)
	id := api.createPost(t, "ana@example.com", "Hello", "go")

	rr := api.do(t, http.MethodGet, "/post/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	post := decode[model.Post](t, rr)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "ana@example.com", post.AuthorEmail)

	rr = api.do(t, http.MethodGet, "/post/"+xid.New().String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/post/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVotes(t *testing.T) {
	api := newTestAPI(t)
	id := api.createPost(t, "ana@example.com", "Hello", "go")

	steps := []struct {
		path     string
		wantUp   int
		wantDown int
	}{
		{"/post/upVote/", 1, 0},
		{"/post/upVote/", 2, 0},
		{"/post/downVote/", 1, 1},
		{"/post/downVote/", 0, 2},
		{"/post/downVote/", 0, 3},
		{"/post/upVote/", 1, 2},
	}
	for i, s := range steps {
		// Votes need no sign-in.
		rr := api.do(t, http.MethodPatch, s.path+id, "", nil)
		require.Equal(t, http.StatusOK, rr.Code, "step %d: %s", i, rr.Body.String())
		post := decode[model.Post](t, rr)
		assert.Equal(t, s.wantUp, post.UpVote, "step %d upVote", i)
		assert.Equal(t, s.wantDown, post.DownVote, "step %d downVote", i)
	}
}

func TestVotes_Errors(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPatch, "/post/upVote/"+xid.New().String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodPatch, "/post/downVote/nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "id", decode[ErrorResponse](t, rr).Field)
}

func TestListPosts(t *testing.T) {
	api := newTestAPI(t)
	first := api.createPost(t, "ana@example.com", "First", "go")
	second := api.createPost(t, "ana@example.com", "Second", "rust")
	third := api.createPost(t, "bob@example.com", "Third", "golang")

	// Second gets the best score.
	api.do(t, http.MethodPatch, "/post/upVote/"+second, "", nil)
	api.do(t, http.MethodPatch, "/post/upVote/"+second, "", nil)
	api.do(t, http.MethodPatch, "/post/downVote/"+third, "", nil)

	comment := api.do(t, http.MethodPost, "/comment", "bob@example.com",
		map[string]string{"postTitle": "First", "body": "nice"})
	require.Equal(t, http.StatusCreated, comment.Code, comment.Body.String())

	ids := func(ps []model.PostSummary) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	t.Run("ranked", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/posts?sort=popular", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[[]model.PostSummary](t, rr)
		assert.Equal(t, []string{second, first, third}, ids(got))
		assert.Equal(t, 1, got[1].CommentsCount)
	})

	t.Run("tag search is case-insensitive substring", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/posts?search=GO", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.ElementsMatch(t, []string{first, third}, ids(decode[[]model.PostSummary](t, rr)))

		rr = api.do(t, http.MethodGet, "/postsCount?search=GO", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 2, decode[map[string]int](t, rr)["count"])
	})

	t.Run("paging", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/posts?sort=ranked&page=2&size=2", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{third}, ids(decode[[]model.PostSummary](t, rr)))

		rr = api.do(t, http.MethodGet, "/posts?page=9&size=2", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]\n", rr.Body.String())
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, q := range []string{"sort=loudest", "page=0", "page=x", "size=-1", "size=500"} {
			rr := api.do(t, http.MethodGet, "/posts?"+q, "", nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})

	t.Run("by author", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/posts/ANA@example.com", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{second, first}, ids(decode[[]model.PostSummary](t, rr)))
	})
}

func TestDeletePost(t *testing.T) {
	api := newTestAPI(t)
	api.registerAdmin(t, "root@example.com")
	id := api.createPost(t, "ana@example.com", "Hello", "go")
	other := api.createPost(t, "ana@example.com", "Other", "go")

	rr := api.do(t, http.MethodDelete, "/post/delete/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodDelete, "/post/delete/"+id, "bob@example.com", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodDelete, "/post/delete/"+id, "ana@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rr)["deletedCount"])

	rr = api.do(t, http.MethodDelete, "/post/delete/"+id, "ana@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodDelete, "/post/delete/"+other, "root@example.com", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRegisterUser_Idempotent(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]string{"email": "ana@example.com", "name": "Ana"}

	rr := api.do(t, http.MethodPost, "/users", "", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, rr)["insertedId"])

	rr = api.do(t, http.MethodPost, "/users", "", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"user already exists","insertedId":null}`, rr.Body.String())

	rr = api.do(t, http.MethodPost, "/users", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "email", decode[ErrorResponse](t, rr).Field)

	rr = api.do(t, http.MethodGet, "/user/ana@example.com", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	u := decode[model.User](t, rr)
	assert.Equal(t, model.RoleMember, u.Role)
	assert.Equal(t, model.BadgeBronze, u.Badge)
}

func TestAdminRoutes_Tiers(t *testing.T) {
	api := newTestAPI(t)
	api.registerAdmin(t, "root@example.com")
	api.do(t, http.MethodPost, "/users", "", map[string]string{"email": "ana@example.com"})

	paths := []string{"/users", "/reports", "/admin-stats"}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, p, "", nil).Code)
			assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, p, "ana@example.com", nil).Code)
			assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, p, "root@example.com", nil).Code)
		})
	}

	rr := api.do(t, http.MethodGet, "/users?search=ana&page=1&size=10", "root@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[userListResponse](t, rr)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Users, 1)

	// A role change takes effect on the very next request.
	anaID := list.Users[0].ID
	rr = api.do(t, http.MethodPatch, "/user/role/"+anaID, "root@example.com", map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/admin-stats", "ana@example.com", nil).Code)

	rr = api.do(t, http.MethodPatch, "/user/role/"+anaID, "root@example.com", map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestComments_ReportAndResolve(t *testing.T) {
	api := newTestAPI(t)
	api.registerAdmin(t, "root@example.com")

	rr := api.do(t, http.MethodPost, "/comment", "ana@example.com",
		map[string]string{"postTitle": "Go/Rust", "body": "hello"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decode[map[string]string](t, rr)["insertedId"]

	// A title containing "/" travels escaped in the path.
	rr = api.do(t, http.MethodGet, "/comment/Go%2FRust", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]model.Comment](t, rr), 1)

	rr = api.do(t, http.MethodPost, "/comment/report/"+id, "", map[string]string{"reason": "spam"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodPost, "/comment/report/"+id, "bob@example.com", map[string]string{"reason": "spam"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/reports", "root@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	reports := decode[[]model.Comment](t, rr)
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].ID)

	rr = api.do(t, http.MethodDelete, "/reports/"+id, "root@example.com", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, "/comment/Go%2FRust", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestRecordPayment(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/users", "", map[string]string{"email": "ana@example.com"})

	body := map[string]any{"amount": 1000, "transactionId": "pi_123"}

	rr := api.do(t, http.MethodPost, "/payments", "", body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodPost, "/payments", "ana@example.com", map[string]any{"amount": 0, "transactionId": "pi_0"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "amount", decode[ErrorResponse](t, rr).Field)

	rr = api.do(t, http.MethodPost, "/payments", "ana@example.com", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/badge/ana@example.com", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.BadgeGold, decode[model.Badge](t, rr).Badge)

	rr = api.do(t, http.MethodPost, "/payments", "ana@example.com", body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}
