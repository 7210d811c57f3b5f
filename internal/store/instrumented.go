package store

import (
	"context"
	"time"

	"postkeeper/internal/metrics"
	"postkeeper/internal/model"
)

type instrumented struct {
	next    Store
	backend string
}

// WithMetrics wraps next so every call is timed and failures are counted
// under the given backend label.
func WithMetrics(next Store, backend string) Store {
	return &instrumented{next: next, backend: backend}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	metrics.ObserveStore(s.backend, op, start, err, ErrNotFound)
}

func (s *instrumented) Insert(ctx context.Context, post *model.Post) error {
	start := time.Now()
	err := s.next.Insert(ctx, post)
	s.observe("insert", start, err)
	return err
}

func (s *instrumented) Get(ctx context.Context, id string) (*model.Post, error) {
	start := time.Now()
	post, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return post, err
}

func (s *instrumented) Find(ctx context.Context, filter Filter) ([]model.Post, error) {
	start := time.Now()
	posts, err := s.next.Find(ctx, filter)
	s.observe("find", start, err)
	return posts, err
}

func (s *instrumented) Replace(ctx context.Context, id string, post *model.Post) error {
	start := time.Now()
	err := s.next.Replace(ctx, id, post)
	s.observe("replace", start, err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
