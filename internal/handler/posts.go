package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/service"
)

// PostHandler serves posts, listings, votes and badges.
//
// It only translates HTTP to service calls and back. Validation of what a
// post may contain, who may delete it, and how votes move the counters all
// live in the service package.
type PostHandler struct {
	posts  *service.PostService
	votes  *service.VoteService
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, votes *service.VoteService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, votes: votes, logger: logger}
}

// pathParam returns a decoded chi URL parameter. chi matches on RawPath
// when the request has one, and then the parameter is still escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

type createPostRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Tag         string `json:"tag" validate:"required,max=50"`
	Body        string `json:"body" validate:"max=10000"`
	AuthorEmail string `json:"authorEmail" validate:"omitempty,email"`
	AuthorName  string `json:"authorName" validate:"max=200"`
	AuthorPhoto string `json:"authorPhoto" validate:"omitempty,url"`
}

// HandleCreate stores a post by the signed-in caller.
//
// HTTP: POST /post
// REQUEST BODY: {"title": "...", "tag": "go", "body": "..."}
// RESPONSE: 201 {"insertedId": "cv37rs3pp9olc6atsptg"}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Create(r.Context(), callerEmail(r), service.CreatePostInput{
		Title:       req.Title,
		Tag:         req.Tag,
		Body:        req.Body,
		AuthorEmail: req.AuthorEmail,
		AuthorName:  req.AuthorName,
		AuthorPhoto: req.AuthorPhoto,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"insertedId": post.ID})
}

// HandleList returns one page of posts with comment counts.
//
// HTTP: GET /posts?search=go&sort=popular&page=2&size=5
//
// With neither page nor size, every matching post is returned.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := model.ParseSortMode(q.Get("sort"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("sort", err.Error()))
		return
	}
	paging, err := pagingFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	posts, err := h.posts.List(r.Context(), service.ListPostsInput{
		Search: q.Get("search"),
		Sort:   mode,
		Paging: paging,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

// HandleCount returns the number of posts matching ?search=.
//
// HTTP: GET /postsCount?search=go → {"count": 12}
func (h *PostHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.posts.Count(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HandleGet: GET /post/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleListByAuthor: GET /posts/{email}
func (h *PostHandler) HandleListByAuthor(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListByAuthor(r.Context(), pathParam(r, "email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(posts))
}

// HandleUpVote: PATCH /post/upVote/{id}
func (h *PostHandler) HandleUpVote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, model.VoteUp)
}

// HandleDownVote: PATCH /post/downVote/{id}
func (h *PostHandler) HandleDownVote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, model.VoteDown)
}

// vote responds with the post as it is after the vote. Votes need no
// sign-in and are not deduplicated.
func (h *PostHandler) vote(w http.ResponseWriter, r *http.Request, dir model.VoteDirection) {
	post, err := h.votes.Apply(r.Context(), pathParam(r, "id"), dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleDelete: DELETE /post/delete/{id}. Author or admin only.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), callerEmail(r), pathParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
}

// HandleBadge: GET /badge/{email} → {"email": "...", "badge": "gold", "postCount": 3}
func (h *PostHandler) HandleBadge(w http.ResponseWriter, r *http.Request) {
	badge, err := h.posts.Badge(r.Context(), pathParam(r, "email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}
