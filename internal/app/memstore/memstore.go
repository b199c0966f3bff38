// Package memstore is an in-process DocumentStore and InteractionStore with
// the same ordering and projection rules as the gorm repositories.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"invoicechat/internal/model"
)

var ErrUnknownDocument = errors.New("memstore: unknown document")

type Store struct {
	mu           sync.Mutex
	users        map[string]model.User
	documents    map[string]model.Document
	interactions map[string][]model.Interaction
	nextID       uint
	now          func() time.Time

	// FailTurns makes CreateTurn fail without writing anything.
	FailTurns error
}

func New() *Store {
	return &Store{
		users:        make(map[string]model.User),
		documents:    make(map[string]model.Document),
		interactions: make(map[string][]model.Interaction),
		now:          time.Now,
	}
}

func (s *Store) CreateWithOwner(_ context.Context, owner *model.User, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[owner.ID]; ok {
		*owner = existing
	} else {
		owner.CreatedAt = s.now()
		owner.UpdatedAt = owner.CreatedAt
		s.users[owner.ID] = *owner
	}
	doc.UserID = owner.ID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	stored := *doc
	stored.Interactions = nil
	s.documents[doc.ID] = stored
	return nil
}

func (s *Store) GetWithInteractions(_ context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	doc.Interactions = append([]model.Interaction(nil), s.interactions[id]...)
	sort.SliceStable(doc.Interactions, func(i, j int) bool {
		a, b := doc.Interactions[i], doc.Interactions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &doc, nil
}

func (s *Store) ListSummariesByUserID(_ context.Context, userID string) ([]model.DocumentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]model.DocumentSummary, 0)
	for _, doc := range s.documents {
		if doc.UserID != userID {
			continue
		}
		list = append(list, model.DocumentSummary{
			ID:        doc.ID,
			Title:     doc.Title,
			CreatedAt: doc.CreatedAt,
			FileURL:   doc.FileURL,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *Store) CreateTurn(_ context.Context, question, answer *model.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailTurns != nil {
		return s.FailTurns
	}
	if _, ok := s.documents[question.DocumentID]; !ok {
		return ErrUnknownDocument
	}
	ts := s.now()
	for _, it := range []*model.Interaction{question, answer} {
		s.nextID++
		it.ID = s.nextID
		it.CreatedAt = ts
		s.interactions[it.DocumentID] = append(s.interactions[it.DocumentID], *it)
	}
	return nil
}

func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) InteractionCount(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.interactions[documentID])
}
