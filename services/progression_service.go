package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"finverseAPI/internal/catalog"
	"finverseAPI/internal/eventlog"
	"finverseAPI/internal/insight"
	"finverseAPI/internal/progressstore"
	"finverseAPI/internal/types/event"
	"finverseAPI/internal/types/progression"
)

// ProgressionService is the single writer of truth for UserProgress.
// Every public operation is one logical read-modify-write against the
// progress store: store failures surface to the caller as retryable,
// stale or duplicate reports are absorbed as no-ops, and retries are safe
// because unlocks and state transitions are idempotent.
type ProgressionService struct {
	store    progressstore.Store
	catalog  *catalog.Catalog
	events   *eventlog.Log
	analyzer insight.Analyzer
	now      func() time.Time
}

func NewProgressionService(store progressstore.Store, cat *catalog.Catalog, events *eventlog.Log, analyzer insight.Analyzer) *ProgressionService {
	return &ProgressionService{
		store:    store,
		catalog:  cat,
		events:   events,
		analyzer: analyzer,
		now:      time.Now,
	}
}

// InitializeProgress returns the user's progression record, creating it on
// first access. Calling it twice never resets an existing record.
func (s *ProgressionService) InitializeProgress(ctx context.Context, userID string) (*progression.UserProgress, error) {
	p, err := s.store.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, progressstore.ErrNotFound) {
		return nil, fmt.Errorf("initialize progress: %w", err)
	}

	now := s.now()
	p = &progression.UserProgress{
		UserID:              userID,
		Level:               1,
		Experience:          0,
		Achievements:        []progression.Achievement{},
		ActiveChallenges:    []progression.Challenge{},
		CompletedChallenges: []progression.Challenge{},
		ActiveQuests:        []progression.Quest{},
		CompletedQuests:     []progression.Quest{},
		Streak:              0,
		LastActive:          now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Set(ctx, userID, p, false); err != nil {
		return nil, fmt.Errorf("initialize progress: %w", err)
	}

	log.Printf("ProgressionService: initialized progress for user %s", userID)
	return p, nil
}

// AwardExperience atomically adds amount to the stored experience, then
// recomputes the level from the post-increment total this call observed.
// Amounts <= 0 are a no-op so defensive callers cost nothing. Each level
// crossed in a single award emits its own level_up event and unlocks the
// matching level achievement, even when one award skips several
// thresholds.
func (s *ProgressionService) AwardExperience(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}

	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("award experience: %w", err)
	}
	priorLevel := p.Level

	newXP, err := s.store.AtomicIncrement(ctx, userID, progressstore.FieldExperience, amount)
	if err != nil {
		return fmt.Errorf("award experience: %w", err)
	}
	experienceAwarded.Add(float64(amount))

	newLevel := s.catalog.LevelForExperience(newXP)
	if newLevel <= priorLevel {
		return nil
	}

	now := s.now()
	if err := s.store.Update(ctx, userID, map[string]any{
		progressstore.FieldLevel:     newLevel,
		progressstore.FieldUpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("award experience: %w", err)
	}

	for lvl := priorLevel + 1; lvl <= newLevel; lvl++ {
		s.events.Append(event.New(event.TypeLevelUp, userID, now, map[string]any{
			"level":  lvl,
			"reason": reason,
		}))
		levelUps.Inc()

		if err := s.UnlockAchievement(ctx, userID, levelAchievement(lvl)); err != nil {
			return fmt.Errorf("award experience: %w", err)
		}
	}

	return nil
}

// UnlockAchievement is idempotent by achievement id: redundant or
// concurrent unlocks of the same milestone are absorbed. On first unlock
// it persists the achievement with its unlock timestamp, emits an
// achievement_unlocked event, and awards the catalog experience for the
// achievement's difficulty scaled by its category multiplier.
func (s *ProgressionService) UnlockAchievement(ctx context.Context, userID string, ach progression.Achievement) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("unlock achievement: %w", err)
	}

	if p.HasAchievement(ach.ID) {
		return nil
	}

	now := s.now()
	ach.Unlocked = true
	ach.UnlockedAt = &now

	if err := s.store.ArrayAppend(ctx, userID, progressstore.FieldAchievements, ach); err != nil {
		return fmt.Errorf("unlock achievement: %w", err)
	}

	s.events.Append(event.New(event.TypeAchievementUnlocked, userID, now, map[string]any{
		"achievement_id": ach.ID,
		"name":           ach.Name,
		"category":       string(ach.Category),
		"difficulty":     string(ach.Difficulty),
	}))
	achievementsUnlocked.Inc()

	xp := RewardExperience(s.catalog, ach.Difficulty, ach.Category)
	return s.AwardExperience(ctx, userID, xp, "achievement: "+ach.Name)
}

// RewardExperience is the experience an achievement grants: the base
// value for its difficulty scaled by its category multiplier, rounded to
// the nearest integer.
func RewardExperience(cat *catalog.Catalog, d progression.Difficulty, c progression.Category) int {
	return int(math.Round(float64(cat.ExperienceForDifficulty(d)) * cat.MultiplierForCategory(c)))
}

func levelAchievement(level int) progression.Achievement {
	return progression.Achievement{
		ID:          fmt.Sprintf("level-%d", level),
		Name:        fmt.Sprintf("Reached Level %d", level),
		Description: fmt.Sprintf("Advanced to level %d", level),
		Category:    progression.CategoryPersonal,
		Difficulty:  progression.DifficultyBeginner,
	}
}

func streakAchievement(days int) progression.Achievement {
	return progression.Achievement{
		ID:          fmt.Sprintf("streak-%d", days),
		Name:        fmt.Sprintf("%d-Day Streak", days),
		Description: fmt.Sprintf("Stayed active %d days in a row", days),
		Category:    progression.CategoryPersonal,
		Difficulty:  progression.DifficultyIntermediate,
	}
}

// StartChallenge adds the challenge to the user's active set with an
// active standing. Starting a challenge the user already holds, active or
// finished, is a no-op.
func (s *ProgressionService) StartChallenge(ctx context.Context, userID string, ch progression.Challenge) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("start challenge: %w", err)
	}

	if p.FindActiveChallenge(ch.ID) != nil || hasChallenge(p.CompletedChallenges, ch.ID) {
		return nil
	}

	if ch.Participants == nil {
		ch.Participants = make(map[string]progression.ChallengeStanding)
	}
	ch.Participants[userID] = progression.ChallengeStanding{Status: progression.StatusActive}

	if err := s.store.ArrayAppend(ctx, userID, progressstore.FieldActiveChallenges, ch); err != nil {
		return fmt.Errorf("start challenge: %w", err)
	}
	return nil
}

func hasChallenge(cs []progression.Challenge, id string) bool {
	for _, c := range cs {
		if c.ID == id {
			return true
		}
	}
	return false
}

func hasQuest(qs []progression.Quest, id string) bool {
	for _, q := range qs {
		if q.ID == id {
			return true
		}
	}
	return false
}

// UpdateChallengeProgress records a progress report. Unknown ids and
// challenges already in a terminal standing are silent no-ops so duplicate
// or late-arriving reports cannot double-apply. Reaching the target moves
// the challenge from active to completed one-way and applies its reward
// bundle exactly once; a report after the deadline fails the challenge
// with no reward.
func (s *ProgressionService) UpdateChallengeProgress(ctx context.Context, userID string, challengeID string, progress int) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}

	ch := p.FindActiveChallenge(challengeID)
	if ch == nil {
		return nil
	}
	standing := ch.Standing(userID)
	if standing.Status != progression.StatusActive {
		return nil
	}

	now := s.now()
	if ch.Participants == nil {
		ch.Participants = make(map[string]progression.ChallengeStanding)
	}

	if !ch.EndDate.IsZero() && now.After(ch.EndDate) {
		standing.Status = progression.StatusFailed
		ch.Participants[userID] = standing
		if err := s.retireChallenge(ctx, userID, p, *ch); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		s.events.Append(event.New(event.TypeChallengeFailed, userID, now, map[string]any{
			"challenge_id": ch.ID,
			"title":        ch.Title,
		}))
		return nil
	}

	standing.Progress = progress
	completed := progress >= ch.Target

	if !completed {
		ch.Participants[userID] = standing
		if err := s.store.Update(ctx, userID, map[string]any{
			progressstore.FieldActiveChallenges: p.ActiveChallenges,
			progressstore.FieldUpdatedAt:        now,
		}); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		return nil
	}

	standing.Status = progression.StatusCompleted
	ch.Participants[userID] = standing
	if err := s.retireChallenge(ctx, userID, p, *ch); err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}

	s.events.Append(event.New(event.TypeChallengeCompleted, userID, now, map[string]any{
		"challenge_id": ch.ID,
		"title":        ch.Title,
		"category":     string(ch.Category),
	}))
	challengesCompleted.Inc()

	if err := s.applyRewards(ctx, userID, ch.Rewards, ch.Category, "challenge: "+ch.Title); err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	return nil
}

// retireChallenge moves ch out of the active list and into the completed
// list in its terminal standing.
func (s *ProgressionService) retireChallenge(ctx context.Context, userID string, p *progression.UserProgress, ch progression.Challenge) error {
	remaining := make([]progression.Challenge, 0, len(p.ActiveChallenges))
	for _, c := range p.ActiveChallenges {
		if c.ID != ch.ID {
			remaining = append(remaining, c)
		}
	}

	if err := s.store.Update(ctx, userID, map[string]any{
		progressstore.FieldActiveChallenges: remaining,
		progressstore.FieldUpdatedAt:        s.now(),
	}); err != nil {
		return err
	}
	return s.store.ArrayAppend(ctx, userID, progressstore.FieldCompletedChallenges, ch)
}

// StartQuest adds the quest to the user's active set. A quest the user
// already holds, in any state, is a no-op: quests are never restarted.
func (s *ProgressionService) StartQuest(ctx context.Context, userID string, q progression.Quest) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("start quest: %w", err)
	}

	if p.FindActiveQuest(q.ID) != nil || hasQuest(p.CompletedQuests, q.ID) {
		return nil
	}

	q.Progress = 0
	q.Status = progression.StatusActive

	if err := s.store.ArrayAppend(ctx, userID, progressstore.FieldActiveQuests, q); err != nil {
		return fmt.Errorf("start quest: %w", err)
	}
	return nil
}

// ProgressQuest records quest progress, clamped to [0,100]. Reaching 100
// moves the quest to the completed list irreversibly and applies its
// reward bundle exactly once. Unknown ids and terminal quests are silent
// no-ops.
func (s *ProgressionService) ProgressQuest(ctx context.Context, userID string, questID string, progress int) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("progress quest: %w", err)
	}

	q := p.FindActiveQuest(questID)
	if q == nil || q.Status != progression.StatusActive {
		return nil
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	now := s.now()
	q.Progress = progress

	if progress < 100 {
		if err := s.store.Update(ctx, userID, map[string]any{
			progressstore.FieldActiveQuests: p.ActiveQuests,
			progressstore.FieldUpdatedAt:    now,
		}); err != nil {
			return fmt.Errorf("progress quest: %w", err)
		}
		s.events.Append(event.New(event.TypeQuestProgressed, userID, now, map[string]any{
			"quest_id": q.ID,
			"title":    q.Title,
			"progress": progress,
		}))
		return nil
	}

	q.Status = progression.StatusCompleted
	for i := range q.Objectives {
		q.Objectives[i].Completed = true
	}

	remaining := make([]progression.Quest, 0, len(p.ActiveQuests))
	for _, aq := range p.ActiveQuests {
		if aq.ID != q.ID {
			remaining = append(remaining, aq)
		}
	}
	if err := s.store.Update(ctx, userID, map[string]any{
		progressstore.FieldActiveQuests: remaining,
		progressstore.FieldUpdatedAt:    now,
	}); err != nil {
		return fmt.Errorf("progress quest: %w", err)
	}
	if err := s.store.ArrayAppend(ctx, userID, progressstore.FieldCompletedQuests, *q); err != nil {
		return fmt.Errorf("progress quest: %w", err)
	}

	s.events.Append(event.New(event.TypeQuestCompleted, userID, now, map[string]any{
		"quest_id": q.ID,
		"title":    q.Title,
	}))
	questsCompleted.Inc()

	if err := s.applyRewards(ctx, userID, q.Rewards, progression.CategoryPersonal, "quest: "+q.Title); err != nil {
		return fmt.Errorf("progress quest: %w", err)
	}
	return nil
}

// applyRewards dispatches a reward bundle. Points become experience,
// badges become achievement unlocks (idempotent, so a re-applied bundle is
// harmless), titles and features are carried on events only.
func (s *ProgressionService) applyRewards(ctx context.Context, userID string, rewards []progression.Reward, cat progression.Category, reason string) error {
	for _, r := range rewards {
		switch r.Type {
		case progression.RewardPoints:
			if err := s.AwardExperience(ctx, userID, r.Points, reason); err != nil {
				return err
			}
		case progression.RewardBadge:
			ach := progression.Achievement{
				ID:          "badge-" + r.Badge,
				Name:        r.Badge,
				Description: r.Description,
				Category:    cat,
				Difficulty:  progression.DifficultyBeginner,
			}
			if err := s.UnlockAchievement(ctx, userID, ach); err != nil {
				return err
			}
		case progression.RewardTitle, progression.RewardFeature, progression.RewardGeneric:
			// Cosmetic; already carried on the completion event payload.
		default:
			log.Printf("ProgressionService: unknown reward type %q for user %s", r.Type, userID)
		}
	}
	return nil
}

// UpdateStreak advances the consecutive-day activity counter. Same day:
// no change. Exactly one day since lastActive: streak+1, and every
// positive multiple of 7 unlocks a streak achievement. More than one day:
// the streak breaks and the day of return counts as day 1.
func (s *ProgressionService) UpdateStreak(ctx context.Context, userID string) error {
	p, err := s.InitializeProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}

	now := s.now()
	days := calendarDaysBetween(p.LastActive, now)

	var newStreak int
	switch {
	case p.LastActive.IsZero():
		newStreak = 1
	case days == 0:
		return nil
	case days == 1:
		newStreak = p.Streak + 1
	default:
		newStreak = 1
	}

	if err := s.store.Update(ctx, userID, map[string]any{
		progressstore.FieldStreak:     newStreak,
		progressstore.FieldLastActive: now,
		progressstore.FieldUpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("update streak: %w", err)
	}

	s.events.Append(event.New(event.TypeStreakUpdated, userID, now, map[string]any{
		"streak": newStreak,
	}))

	if newStreak > 0 && newStreak%7 == 0 {
		if err := s.UnlockAchievement(ctx, userID, streakAchievement(newStreak)); err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
	}
	return nil
}

// calendarDaysBetween counts whole calendar days from a to b in UTC.
// Negative differences (clock skew) are treated as same-day.
func calendarDaysBetween(a, b time.Time) int {
	au := a.UTC()
	bu := b.UTC()
	aDay := time.Date(au.Year(), au.Month(), au.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(bu.Year(), bu.Month(), bu.Day(), 0, 0, 0, 0, time.UTC)
	days := int(bDay.Sub(aDay).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// CheckIn analyzes a financial check-in note and awards a small bonus for
// a positive one. The analyzer is an external collaborator; its failure
// degrades to "no bonus", never to a failed check-in.
func (s *ProgressionService) CheckIn(ctx context.Context, userID string, note string) (insight.Sentiment, error) {
	sentiment := insight.SentimentNeutral
	if s.analyzer != nil && note != "" {
		var err error
		sentiment, err = s.analyzer.Analyze(ctx, note)
		if err != nil {
			log.Printf("ProgressionService: sentiment analysis failed for user %s: %v", userID, err)
			sentiment = insight.SentimentNeutral
		}
	}

	if err := s.UpdateStreak(ctx, userID); err != nil {
		return sentiment, fmt.Errorf("check in: %w", err)
	}

	if sentiment == insight.SentimentPositive {
		if err := s.AwardExperience(ctx, userID, 10, "positive check-in"); err != nil {
			return sentiment, fmt.Errorf("check in: %w", err)
		}
	}
	return sentiment, nil
}
