// Package model defines the data structures used throughout the application.
// The types carry JSON tags only; storage mapping lives in the repository
// packages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Post is a forum post.
//
// ID, AuthorEmail and CreatedAt are fixed at creation. UpVote and DownVote
// start at zero and are only ever changed by a vote transition, which keeps
// both non-negative.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Tag         string    `json:"tag"`
	Body        string    `json:"body"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName,omitempty"`
	AuthorPhoto string    `json:"authorPhoto,omitempty"`
	UpVote      int       `json:"upVote"`
	DownVote    int       `json:"downVote"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NetScore is the ranking key used by SortRanked.
func (p *Post) NetScore() int {
	return p.UpVote - p.DownVote
}

// PostSummary is a listing row: the post plus the number of comments
// whose PostTitle equals the post's Title.
type PostSummary struct {
	Post
	CommentsCount int `json:"commentsCount"`
}

// VoteDirection is the direction of a single net-score vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// SortMode selects the ordering of a post listing. It is resolved once per
// request and turned into a single ORDER BY by the store.
type SortMode int

const (
	// SortRecency orders by CreatedAt, newest first.
	SortRecency SortMode = iota
	// SortRanked orders by UpVote-DownVote, highest first. Ties fall back
	// to CreatedAt then ID, both descending.
	SortRanked
)

func (m SortMode) String() string {
	switch m {
	case SortRanked:
		return "ranked"
	default:
		return "recency"
	}
}

// ParseSortMode maps the ?sort= query value to a SortMode. An empty value
// means recency. "popular" is accepted as an alias for ranked.
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "recency", "recent", "new":
		return SortRecency, nil
	case "ranked", "popular", "score":
		return SortRanked, nil
	default:
		return SortRecency, fmt.Errorf("unknown sort mode %q", s)
	}
}

// Badge is the author's contribution badge and their total post count.
// The two values are read independently and may be momentarily out of step.
type Badge struct {
	Email     string    `json:"email"`
	Badge     BadgeTier `json:"badge"`
	PostCount int       `json:"postCount"`
}
