package resource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/adonese/crud/apperr"
)

type puppy struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type puppyInput struct {
	ID    *uint   `json:"id"`
	Name  *string `json:"name" binding:"omitempty,min=1,max=32"`
	Owner *string `json:"owner"`
}

type puppyOutput struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

// memSession is an in-memory Session[puppy] used to exercise the handlers
// without a database.
type memSession struct {
	mu      sync.Mutex
	records []puppy
	next    uint
}

func (s *memSession) Insert(_ context.Context, p *puppy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.next++
		p.ID = s.next
	}
	for _, r := range s.records {
		if r.ID == p.ID {
			return apperr.ErrConflict
		}
	}
	if p.ID > s.next {
		s.next = p.ID
	}
	s.records = append(s.records, *p)
	return nil
}

func (s *memSession) Get(_ context.Context, id string, scope Scope) (*puppy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, apperr.NotFound("puppy", id)
	}
	for _, r := range s.records {
		if r.ID == uint(n) && matches(r, scope) {
			found := r
			return &found, nil
		}
	}
	return nil, apperr.NotFound("puppy", id)
}

func (s *memSession) Save(_ context.Context, p *puppy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == p.ID {
			s.records[i] = *p
			return nil
		}
	}
	s.records = append(s.records, *p)
	return nil
}

func (s *memSession) Delete(_ context.Context, id string, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if strconv.FormatUint(uint64(r.ID), 10) == id && matches(r, scope) {
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return nil
}

func (s *memSession) All(_ context.Context, scope Scope) ([]puppy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []puppy
	for _, r := range s.records {
		if matches(r, scope) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSession) Count(ctx context.Context, scope Scope) (int64, error) {
	all, err := s.All(ctx, scope)
	return int64(len(all)), err
}

func (s *memSession) DeleteAll(_ context.Context, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if !matches(r, scope) {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func matches(p puppy, scope Scope) bool {
	values := map[string]string{
		"id":    strconv.FormatUint(uint64(p.ID), 10),
		"name":  p.Name,
		"owner": p.Owner,
	}
	for k, v := range scope {
		if values[k] != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
