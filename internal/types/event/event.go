package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAchievementUnlocked Type = "achievement_unlocked"
	TypeChallengeCompleted  Type = "challenge_completed"
	TypeChallengeFailed     Type = "challenge_failed"
	TypeQuestProgressed     Type = "quest_progressed"
	TypeQuestCompleted      Type = "quest_completed"
	TypeLevelUp             Type = "level_up"
	TypeStreakUpdated       Type = "streak_updated"
)

// Event is an immutable domain event. Seq is assigned by the log at
// append time and breaks timestamp ties by insertion order.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      Type           `json:"type"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       uint64         `json:"seq"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func New(t Type, userID string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		UserID:    userID,
		Timestamp: at,
		Payload:   payload,
	}
}
