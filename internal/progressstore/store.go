package progressstore

import (
	"context"
	"errors"

	"finverseAPI/internal/types/progression"
)

// ErrNotFound is returned by Get when no progression document exists for
// the user yet.
var ErrNotFound = errors.New("progress not found")

// Document field paths. These match the firestore tags on
// progression.UserProgress so the same names work against both backends.
const (
	FieldLevel               = "level"
	FieldExperience          = "experience"
	FieldStreak              = "streak"
	FieldLastActive          = "lastActive"
	FieldUpdatedAt           = "updatedAt"
	FieldAchievements        = "achievements"
	FieldActiveChallenges    = "activeChallenges"
	FieldCompletedChallenges = "completedChallenges"
	FieldActiveQuests        = "activeQuests"
	FieldCompletedQuests     = "completedQuests"
)

// Store is the document collaborator holding one progression record per
// user. Non-array fields merge last-write-wins per field; array fields
// append with union semantics; AtomicIncrement commutes under concurrent
// callers and returns the post-increment value this call observed.
type Store interface {
	Get(ctx context.Context, userID string) (*progression.UserProgress, error)
	Set(ctx context.Context, userID string, doc *progression.UserProgress, merge bool) error
	Update(ctx context.Context, userID string, fields map[string]any) error
	ArrayAppend(ctx context.Context, userID string, field string, values ...any) error
	AtomicIncrement(ctx context.Context, userID string, field string, amount int) (int, error)
}
