package progressstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finverseAPI/internal/types/progression"
)

// MemoryStore is a mutex-guarded in-process Store. It backs local runs
// and tests; the engine treats it exactly like the Firestore backend.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*progression.UserProgress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*progression.UserProgress)}
}

func clone(p *progression.UserProgress) *progression.UserProgress {
	c := *p
	c.Achievements = append([]progression.Achievement(nil), p.Achievements...)
	c.ActiveChallenges = cloneChallenges(p.ActiveChallenges)
	c.CompletedChallenges = cloneChallenges(p.CompletedChallenges)
	c.ActiveQuests = append([]progression.Quest(nil), p.ActiveQuests...)
	c.CompletedQuests = append([]progression.Quest(nil), p.CompletedQuests...)
	return &c
}

func cloneChallenges(cs []progression.Challenge) []progression.Challenge {
	out := make([]progression.Challenge, len(cs))
	for i, ch := range cs {
		out[i] = ch
		if ch.Participants != nil {
			m := make(map[string]progression.ChallengeStanding, len(ch.Participants))
			for k, v := range ch.Participants {
				m[k] = v
			}
			out[i].Participants = m
		}
	}
	return out
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*progression.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (s *MemoryStore) Set(ctx context.Context, userID string, doc *progression.UserProgress, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[userID]
	if !ok || !merge {
		s.docs[userID] = clone(doc)
		return nil
	}

	// Merge: last write wins per non-zero field.
	merged := clone(existing)
	if doc.Level != 0 {
		merged.Level = doc.Level
	}
	if doc.Experience != 0 {
		merged.Experience = doc.Experience
	}
	if doc.Streak != 0 {
		merged.Streak = doc.Streak
	}
	if !doc.LastActive.IsZero() {
		merged.LastActive = doc.LastActive
	}
	if !doc.UpdatedAt.IsZero() {
		merged.UpdatedAt = doc.UpdatedAt
	}
	if doc.Achievements != nil {
		merged.Achievements = append([]progression.Achievement(nil), doc.Achievements...)
	}
	if doc.ActiveChallenges != nil {
		merged.ActiveChallenges = cloneChallenges(doc.ActiveChallenges)
	}
	if doc.CompletedChallenges != nil {
		merged.CompletedChallenges = cloneChallenges(doc.CompletedChallenges)
	}
	if doc.ActiveQuests != nil {
		merged.ActiveQuests = append([]progression.Quest(nil), doc.ActiveQuests...)
	}
	if doc.CompletedQuests != nil {
		merged.CompletedQuests = append([]progression.Quest(nil), doc.CompletedQuests...)
	}
	s.docs[userID] = merged
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, userID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.docs[userID]
	if !ok {
		return ErrNotFound
	}

	for field, value := range fields {
		switch field {
		case FieldLevel:
			p.Level = value.(int)
		case FieldExperience:
			p.Experience = value.(int)
		case FieldStreak:
			p.Streak = value.(int)
		case FieldLastActive:
			p.LastActive = value.(time.Time)
		case FieldUpdatedAt:
			p.UpdatedAt = value.(time.Time)
		case FieldAchievements:
			p.Achievements = append([]progression.Achievement(nil), value.([]progression.Achievement)...)
		case FieldActiveChallenges:
			p.ActiveChallenges = cloneChallenges(value.([]progression.Challenge))
		case FieldCompletedChallenges:
			p.CompletedChallenges = cloneChallenges(value.([]progression.Challenge))
		case FieldActiveQuests:
			p.ActiveQuests = append([]progression.Quest(nil), value.([]progression.Quest)...)
		case FieldCompletedQuests:
			p.CompletedQuests = append([]progression.Quest(nil), value.([]progression.Quest)...)
		default:
			return fmt.Errorf("update progress: unsupported field %q", field)
		}
	}
	return nil
}

func (s *MemoryStore) ArrayAppend(ctx context.Context, userID string, field string, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.docs[userID]
	if !ok {
		return ErrNotFound
	}

	for _, value := range values {
		switch field {
		case FieldAchievements:
			p.Achievements = append(p.Achievements, value.(progression.Achievement))
		case FieldCompletedChallenges:
			p.CompletedChallenges = append(p.CompletedChallenges, value.(progression.Challenge))
		case FieldActiveChallenges:
			p.ActiveChallenges = append(p.ActiveChallenges, value.(progression.Challenge))
		case FieldCompletedQuests:
			p.CompletedQuests = append(p.CompletedQuests, value.(progression.Quest))
		case FieldActiveQuests:
			p.ActiveQuests = append(p.ActiveQuests, value.(progression.Quest))
		default:
			return fmt.Errorf("append %s: unsupported field", field)
		}
	}
	return nil
}

func (s *MemoryStore) AtomicIncrement(ctx context.Context, userID string, field string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.docs[userID]
	if !ok {
		return 0, ErrNotFound
	}

	switch field {
	case FieldExperience:
		p.Experience += amount
		return p.Experience, nil
	case FieldStreak:
		p.Streak += amount
		return p.Streak, nil
	default:
		return 0, fmt.Errorf("increment %s: unsupported field", field)
	}
}
