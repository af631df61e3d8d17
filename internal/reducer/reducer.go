// Package reducer is the optimistic client-side mirror of the progression
// engine: a pure state-transition function the UI applies for immediate
// feedback before the authoritative write round-trips. It deliberately
// re-implements the engine's rules rather than sharing code with it, so
// both sides can be tested against the same property table.
package reducer

import (
	"math"
	"time"

	"finverseAPI/internal/catalog"
	"finverseAPI/internal/types/event"
	"finverseAPI/internal/types/progression"
)

type ActionType string

const (
	ActionUnlockAchievement ActionType = "UNLOCK_ACHIEVEMENT"
	ActionCompleteChallenge ActionType = "COMPLETE_CHALLENGE"
	ActionProgressQuest     ActionType = "PROGRESS_QUEST"
	ActionGainExperience    ActionType = "GAIN_EXPERIENCE"
	ActionLevelUp           ActionType = "LEVEL_UP"
	ActionUpdateStats       ActionType = "UPDATE_STATS"
)

// Action carries the fields for its type; unrelated fields are ignored.
type Action struct {
	Type        ActionType
	Achievement *progression.Achievement // UNLOCK_ACHIEVEMENT
	ChallengeID string                   // COMPLETE_CHALLENGE
	QuestID     string                   // PROGRESS_QUEST
	Progress    int                      // PROGRESS_QUEST
	Amount      int                      // GAIN_EXPERIENCE
	Reason      string                   // GAIN_EXPERIENCE
	Streak      *int                     // UPDATE_STATS
	LastActive  *time.Time               // UPDATE_STATS
}

// State is the in-memory copy of UserProgress plus a local event buffer.
// It is provisional: never written back to the store, always replaced by
// the next authoritative read.
type State struct {
	Progress progression.UserProgress
	Events   []event.Event
}

func NewState(p progression.UserProgress) State {
	return State{Progress: copyProgress(p)}
}

// Apply returns the next state for the action at the given time. It never
// mutates its input; invalid or redundant actions return the state
// unchanged. Dedup is local only: double-dispatch within one client
// session is absorbed, but cross-session idempotency belongs to the
// server engine. Multi-level synthetic achievement unlocks are likewise
// deferred to the next authoritative read.
func Apply(cat *catalog.Catalog, s State, a Action, at time.Time) State {
	next := copyState(s)

	switch a.Type {
	case ActionGainExperience:
		gainExperience(cat, &next, a.Amount, at)

	case ActionUnlockAchievement:
		if a.Achievement == nil {
			return s
		}
		unlockAchievement(cat, &next, *a.Achievement, at)

	case ActionCompleteChallenge:
		completeChallenge(cat, &next, a.ChallengeID, at)

	case ActionProgressQuest:
		progressQuest(cat, &next, a.QuestID, a.Progress, at)

	case ActionLevelUp:
		// Level is always re-derived; an explicit action just forces it.
		recomputeLevel(cat, &next, at)

	case ActionUpdateStats:
		if a.Streak != nil {
			next.Progress.Streak = *a.Streak
		}
		if a.LastActive != nil {
			next.Progress.LastActive = *a.LastActive
		}

	default:
		return s
	}

	next.Progress.UpdatedAt = at
	return next
}

// Reconcile replaces the provisional progress with the server's record.
// The server is always the tie-breaker, including downward level
// corrections when an optimistic action was never persisted. The local
// event buffer is kept; it only feeds UI notifications.
func Reconcile(local State, server progression.UserProgress) State {
	return State{Progress: copyProgress(server), Events: local.Events}
}

func gainExperience(cat *catalog.Catalog, s *State, amount int, at time.Time) {
	if amount <= 0 {
		return
	}
	s.Progress.Experience += amount
	recomputeLevel(cat, s, at)
}

func recomputeLevel(cat *catalog.Catalog, s *State, at time.Time) {
	newLevel := cat.LevelForExperience(s.Progress.Experience)
	for lvl := s.Progress.Level + 1; lvl <= newLevel; lvl++ {
		s.Events = append(s.Events, event.New(event.TypeLevelUp, s.Progress.UserID, at, map[string]any{
			"level": lvl,
		}))
	}
	if newLevel > s.Progress.Level {
		s.Progress.Level = newLevel
	}
}

func unlockAchievement(cat *catalog.Catalog, s *State, ach progression.Achievement, at time.Time) {
	if s.Progress.HasAchievement(ach.ID) {
		return
	}

	unlockedAt := at
	ach.Unlocked = true
	ach.UnlockedAt = &unlockedAt
	s.Progress.Achievements = append(s.Progress.Achievements, ach)

	s.Events = append(s.Events, event.New(event.TypeAchievementUnlocked, s.Progress.UserID, at, map[string]any{
		"achievement_id": ach.ID,
		"name":           ach.Name,
	}))

	xp := int(math.Round(float64(cat.ExperienceForDifficulty(ach.Difficulty)) * cat.MultiplierForCategory(ach.Category)))
	gainExperience(cat, s, xp, at)
}

func completeChallenge(cat *catalog.Catalog, s *State, challengeID string, at time.Time) {
	idx := -1
	for i := range s.Progress.ActiveChallenges {
		if s.Progress.ActiveChallenges[i].ID == challengeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	ch := s.Progress.ActiveChallenges[idx]
	standing := ch.Standing(s.Progress.UserID)
	if standing.Status != progression.StatusActive {
		return
	}

	standing.Status = progression.StatusCompleted
	standing.Progress = ch.Target
	if ch.Participants == nil {
		ch.Participants = make(map[string]progression.ChallengeStanding)
	}
	ch.Participants[s.Progress.UserID] = standing

	s.Progress.ActiveChallenges = append(
		s.Progress.ActiveChallenges[:idx:idx],
		s.Progress.ActiveChallenges[idx+1:]...,
	)
	s.Progress.CompletedChallenges = append(s.Progress.CompletedChallenges, ch)

	s.Events = append(s.Events, event.New(event.TypeChallengeCompleted, s.Progress.UserID, at, map[string]any{
		"challenge_id": ch.ID,
		"title":        ch.Title,
	}))

	applyRewards(cat, s, ch.Rewards, ch.Category, at)
}

func progressQuest(cat *catalog.Catalog, s *State, questID string, progress int, at time.Time) {
	idx := -1
	for i := range s.Progress.ActiveQuests {
		if s.Progress.ActiveQuests[i].ID == questID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	q := s.Progress.ActiveQuests[idx]
	if q.Status != progression.StatusActive {
		return
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	q.Progress = progress

	if progress < 100 {
		s.Progress.ActiveQuests[idx] = q
		s.Events = append(s.Events, event.New(event.TypeQuestProgressed, s.Progress.UserID, at, map[string]any{
			"quest_id": q.ID,
			"progress": progress,
		}))
		return
	}

	q.Status = progression.StatusCompleted
	for i := range q.Objectives {
		q.Objectives[i].Completed = true
	}

	s.Progress.ActiveQuests = append(
		s.Progress.ActiveQuests[:idx:idx],
		s.Progress.ActiveQuests[idx+1:]...,
	)
	s.Progress.CompletedQuests = append(s.Progress.CompletedQuests, q)

	s.Events = append(s.Events, event.New(event.TypeQuestCompleted, s.Progress.UserID, at, map[string]any{
		"quest_id": q.ID,
	}))

	applyRewards(cat, s, q.Rewards, progression.CategoryPersonal, at)
}

func applyRewards(cat *catalog.Catalog, s *State, rewards []progression.Reward, fallback progression.Category, at time.Time) {
	for _, r := range rewards {
		switch r.Type {
		case progression.RewardPoints:
			gainExperience(cat, s, r.Points, at)
		case progression.RewardBadge:
			unlockAchievement(cat, s, progression.Achievement{
				ID:          "badge-" + r.Badge,
				Name:        r.Badge,
				Description: r.Description,
				Category:    fallback,
				Difficulty:  progression.DifficultyBeginner,
			}, at)
		case progression.RewardTitle, progression.RewardFeature, progression.RewardGeneric:
			// Cosmetic only.
		}
	}
}

func copyState(s State) State {
	return State{
		Progress: copyProgress(s.Progress),
		Events:   append([]event.Event(nil), s.Events...),
	}
}

func copyProgress(p progression.UserProgress) progression.UserProgress {
	c := p
	c.Achievements = append([]progression.Achievement(nil), p.Achievements...)
	c.ActiveChallenges = copyChallenges(p.ActiveChallenges)
	c.CompletedChallenges = copyChallenges(p.CompletedChallenges)
	c.ActiveQuests = copyQuests(p.ActiveQuests)
	c.CompletedQuests = copyQuests(p.CompletedQuests)
	return c
}

func copyChallenges(cs []progression.Challenge) []progression.Challenge {
	if cs == nil {
		return nil
	}
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
		out[i].Tasks = append([]progression.Task(nil), ch.Tasks...)
	}
	return out
}

func copyQuests(qs []progression.Quest) []progression.Quest {
	if qs == nil {
		return nil
	}
	out := make([]progression.Quest, len(qs))
	for i, q := range qs {
		out[i] = q
		out[i].Objectives = append([]progression.Objective(nil), q.Objectives...)
	}
	return out
}
