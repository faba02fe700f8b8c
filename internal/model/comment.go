package model

import "time"

// Comment belongs to a post by title, not by ID. There is no referential
// integrity: a post can be deleted while its comments remain.
type Comment struct {
	ID           string    `json:"id"`
	PostTitle    string    `json:"postTitle"`
	Body         string    `json:"body"`
	AuthorEmail  string    `json:"authorEmail"`
	Reported     bool      `json:"reported"`
	ReportReason string    `json:"reportReason,omitempty"`
	ReportedBy   string    `json:"reportedBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
