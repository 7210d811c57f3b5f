package store

import (
	"context"
	"errors"
	"fmt"

	"postkeeper/internal/model"
)

var (
	ErrNotFound = errors.New("post not found")
	// ErrInvalidID is returned for identifiers the backend cannot parse.
	// It wraps ErrNotFound: callers can't tell malformed from missing.
	ErrInvalidID = fmt.Errorf("%w: malformed identifier", ErrNotFound)
)

// Filter narrows a Find. The zero value matches every post.
type Filter struct {
	// Term is matched case-insensitively as a substring of the title,
	// content or category.
	Term string
}

// Store persists posts. Find always returns newest first.
type Store interface {
	// Insert assigns ID, CreatedAt and UpdatedAt on post and saves it.
	Insert(ctx context.Context, post *model.Post) error
	Get(ctx context.Context, id string) (*model.Post, error)
	Find(ctx context.Context, filter Filter) ([]model.Post, error)
	// Replace overwrites the editable fields of the stored post with the
	// ones from post, refreshes UpdatedAt and copies the result back.
	Replace(ctx context.Context, id string, post *model.Post) error
	Delete(ctx context.Context, id string) error
	Close() error
}
