package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finverseAPI/internal/catalog"
	"finverseAPI/internal/eventlog"
	"finverseAPI/internal/insight"
	"finverseAPI/internal/progressstore"
	"finverseAPI/internal/types/event"
	"finverseAPI/internal/types/progression"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) AdvanceDays(n int) { c.t = c.t.Add(time.Duration(n) * 24 * time.Hour) }

func newTestService(t *testing.T, thresholds []int) (*ProgressionService, *progressstore.MemoryStore, *eventlog.Log, *fakeClock) {
	t.Helper()

	cat, err := catalog.NewWithThresholds(thresholds)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	store := progressstore.NewMemoryStore()
	events := eventlog.New()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewProgressionService(store, cat, events, insight.KeywordAnalyzer{})
	svc.now = clock.Now
	return svc, store, events, clock
}

func mustProgress(t *testing.T, svc *ProgressionService, userID string) *progression.UserProgress {
	t.Helper()
	p, err := svc.InitializeProgress(context.Background(), userID)
	if err != nil {
		t.Fatalf("InitializeProgress: %v", err)
	}
	return p
}

func countEvents(events []event.Event, typ event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestInitializeProgressIsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t, []int{100, 250, 500, 1000})
	ctx := context.Background()

	first := mustProgress(t, svc, "u1")
	if first.Level != 1 || first.Experience != 0 || first.Streak != 0 {
		t.Fatalf("fresh progress = level %d, xp %d, streak %d", first.Level, first.Experience, first.Streak)
	}

	if err := svc.AwardExperience(ctx, "u1", 40, "test"); err != nil {
		t.Fatalf("AwardExperience: %v", err)
	}

	again := mustProgress(t, svc, "u1")
	if again.Experience != 40 {
		t.Errorf("re-initialization reset experience: got %d, want 40", again.Experience)
	}
}

func TestAwardExperienceIsAdditive(t *testing.T) {
	svc, _, _, _ := newTestService(t, []int{100, 250, 500, 1000})
	ctx := context.Background()

	if err := svc.AwardExperience(ctx, "split", 120, "a"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AwardExperience(ctx, "split", 80, "b"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AwardExperience(ctx, "lump", 200, "a+b"); err != nil {
		t.Fatal(err)
	}

	split := mustProgress(t, svc, "split")
	lump := mustProgress(t, svc, "lump")

	if split.Experience != lump.Experience {
		t.Errorf("experience diverged: split %d, lump %d", split.Experience, lump.Experience)
	}
	if split.Level != lump.Level {
		t.Errorf("level diverged: split %d, lump %d", split.Level, lump.Level)
	}
}

func TestAwardExperienceNonPositiveIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(t, []int{100, 250, 500, 1000})
	ctx := context.Background()

	if err := svc.AwardExperience(ctx, "u1", 0, "zero"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AwardExperience(ctx, "u1", -50, "negative"); err != nil {
		t.Fatal(err)
	}

	p := mustProgress(t, svc, "u1")
	if p.Experience != 0 || p.Level != 1 {
		t.Errorf("no-op award changed state: xp %d, level %d", p.Experience, p.Level)
	}
}

func TestMultiLevelJumpUnlocksEveryLevelCrossed(t *testing.T) {
	svc, _, events, _ := newTestService(t, []int{100, 250, 500, 1000})
	ctx := context.Background()

	// 90 XP: still level 1, no level events.
	if err := svc.AwardExperience(ctx, "u1", 90, "warmup"); err != nil {
		t.Fatal(err)
	}
	events.Drain()

	// +200 XP crosses the 100 and 250 thresholds in one award.
	if err := svc.AwardExperience(ctx, "u1", 200, "jump"); err != nil {
		t.Fatal(err)
	}

	drained := events.Drain()
	if got := countEvents(drained, event.TypeLevelUp); got != 2 {
		t.Errorf("level_up events = %d, want 2", got)
	}

	p := mustProgress(t, svc, "u1")
	if !p.HasAchievement("level-2") || !p.HasAchievement("level-3") {
		t.Errorf("missing intermediate level achievements: %v", p.AchievementIDs())
	}
	if p.Level != 3 {
		t.Errorf("level = %d, want 3", p.Level)
	}
}

func TestUnlockAchievementIsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t, []int{1000, 2500})
	ctx := context.Background()

	ach := progression.Achievement{
		ID:         "first-budget",
		Name:       "First Budget",
		Category:   progression.CategoryFinancial,
		Difficulty: progression.DifficultyBeginner,
	}

	if err := svc.UnlockAchievement(ctx, "u1", ach); err != nil {
		t.Fatal(err)
	}
	after1 := mustProgress(t, svc, "u1")

	if err := svc.UnlockAchievement(ctx, "u1", ach); err != nil {
		t.Fatal(err)
	}
	after2 := mustProgress(t, svc, "u1")

	// beginner (50) * financial (1.5) = 75, once.
	if after1.Experience != 75 {
		t.Errorf("first unlock xp = %d, want 75", after1.Experience)
	}
	if after2.Experience != after1.Experience {
		t.Errorf("second unlock changed xp: %d -> %d", after1.Experience, after2.Experience)
	}
	if len(after2.Achievements) != 1 {
		t.Errorf("achievement set size = %d, want 1", len(after2.Achievements))
	}
	if !after2.Achievements[0].Unlocked || after2.Achievements[0].UnlockedAt == nil {
		t.Error("unlocked achievement missing unlock flag or timestamp")
	}
}

func TestChallengeCompletionRewardsOnce(t *testing.T) {
	svc, _, events, clock := newTestService(t, []int{1000, 2500})
	ctx := context.Background()

	ch := progression.Challenge{
		ID:        "save-500",
		Title:     "Save $500 This Month",
		Category:  progression.CategoryFinancial,
		StartDate: clock.Now(),
		EndDate:   clock.Now().Add(30 * 24 * time.Hour),
		Target:    500,
		Rewards: []progression.Reward{
			{Type: progression.RewardPoints, Points: 150, Description: "Savings reward"},
		},
	}

	if err := svc.StartChallenge(ctx, "u1", ch); err != nil {
		t.Fatal(err)
	}
	// Duplicate start is absorbed.
	if err := svc.StartChallenge(ctx, "u1", ch); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); len(p.ActiveChallenges) != 1 {
		t.Fatalf("active challenges = %d, want 1", len(p.ActiveChallenges))
	}

	if err := svc.UpdateChallengeProgress(ctx, "u1", "save-500", 200); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); p.Experience != 0 {
		t.Errorf("partial progress awarded xp: %d", p.Experience)
	}

	if err := svc.UpdateChallengeProgress(ctx, "u1", "save-500", 500); err != nil {
		t.Fatal(err)
	}

	p := mustProgress(t, svc, "u1")
	if p.Experience != 150 {
		t.Errorf("completion xp = %d, want 150", p.Experience)
	}
	if len(p.ActiveChallenges) != 0 || len(p.CompletedChallenges) != 1 {
		t.Errorf("challenge lists: active %d, completed %d", len(p.ActiveChallenges), len(p.CompletedChallenges))
	}
	if got := p.CompletedChallenges[0].Standing("u1").Status; got != progression.StatusCompleted {
		t.Errorf("standing = %s, want completed", got)
	}

	// Late report after completion must not re-apply the reward.
	if err := svc.UpdateChallengeProgress(ctx, "u1", "save-500", 999); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); p.Experience != 150 {
		t.Errorf("repeat completion changed xp: %d", p.Experience)
	}

	if got := countEvents(events.Drain(), event.TypeChallengeCompleted); got != 1 {
		t.Errorf("challenge_completed events = %d, want 1", got)
	}
}

func TestChallengePastDeadlineFailsWithoutReward(t *testing.T) {
	svc, _, events, clock := newTestService(t, []int{1000})
	ctx := context.Background()

	ch := progression.Challenge{
		ID:      "weekly-log",
		Title:   "Log Expenses Daily",
		EndDate: clock.Now().Add(24 * time.Hour),
		Target:  7,
		Rewards: []progression.Reward{{Type: progression.RewardPoints, Points: 100}},
	}
	if err := svc.StartChallenge(ctx, "u1", ch); err != nil {
		t.Fatal(err)
	}

	clock.AdvanceDays(3)

	if err := svc.UpdateChallengeProgress(ctx, "u1", "weekly-log", 7); err != nil {
		t.Fatal(err)
	}

	p := mustProgress(t, svc, "u1")
	if p.Experience != 0 {
		t.Errorf("failed challenge awarded xp: %d", p.Experience)
	}
	if len(p.CompletedChallenges) != 1 {
		t.Fatalf("failed challenge not retired")
	}
	if got := p.CompletedChallenges[0].Standing("u1").Status; got != progression.StatusFailed {
		t.Errorf("standing = %s, want failed", got)
	}
	if got := countEvents(events.Drain(), event.TypeChallengeFailed); got != 1 {
		t.Errorf("challenge_failed events = %d, want 1", got)
	}
}

func TestUnknownChallengeProgressIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(t, []int{1000})
	ctx := context.Background()

	mustProgress(t, svc, "u1")
	if err := svc.UpdateChallengeProgress(ctx, "u1", "never-started", 50); err != nil {
		t.Errorf("unknown challenge id should be a no-op, got %v", err)
	}
}

func TestQuestCompletionIsIrreversible(t *testing.T) {
	svc, _, events, _ := newTestService(t, []int{1000})
	ctx := context.Background()

	q := progression.Quest{
		ID:    "emergency-fund",
		Title: "Build an Emergency Fund",
		Objectives: []progression.Objective{
			{Description: "Open a savings account"},
			{Description: "Save the first $100"},
		},
		Rewards: []progression.Reward{{Type: progression.RewardPoints, Points: 200}},
	}

	if err := svc.StartQuest(ctx, "u1", q); err != nil {
		t.Fatal(err)
	}

	if err := svc.ProgressQuest(ctx, "u1", "emergency-fund", 60); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); p.ActiveQuests[0].Progress != 60 {
		t.Errorf("quest progress = %d, want 60", p.ActiveQuests[0].Progress)
	}

	if err := svc.ProgressQuest(ctx, "u1", "emergency-fund", 150); err != nil {
		t.Fatal(err)
	}

	p := mustProgress(t, svc, "u1")
	if len(p.ActiveQuests) != 0 || len(p.CompletedQuests) != 1 {
		t.Fatalf("quest lists: active %d, completed %d", len(p.ActiveQuests), len(p.CompletedQuests))
	}
	done := p.CompletedQuests[0]
	if done.Progress != 100 || done.Status != progression.StatusCompleted {
		t.Errorf("completed quest progress=%d status=%s", done.Progress, done.Status)
	}
	for _, o := range done.Objectives {
		if !o.Completed {
			t.Errorf("objective %q not marked completed", o.Description)
		}
	}
	if p.Experience != 200 {
		t.Errorf("quest xp = %d, want 200", p.Experience)
	}

	// Terminal quest absorbs further reports; no restart, no extra reward.
	if err := svc.ProgressQuest(ctx, "u1", "emergency-fund", 100); err != nil {
		t.Fatal(err)
	}
	if err := svc.StartQuest(ctx, "u1", q); err != nil {
		t.Fatal(err)
	}
	p = mustProgress(t, svc, "u1")
	if p.Experience != 200 || len(p.ActiveQuests) != 0 {
		t.Errorf("terminal quest re-applied: xp %d, active %d", p.Experience, len(p.ActiveQuests))
	}
	if got := countEvents(events.Drain(), event.TypeQuestCompleted); got != 1 {
		t.Errorf("quest_completed events = %d, want 1", got)
	}
}

func TestStreakIncrementResetAndSameDay(t *testing.T) {
	svc, _, _, clock := newTestService(t, []int{100000})
	ctx := context.Background()

	mustProgress(t, svc, "u1") // lastActive = day 0

	want := []int{1, 2, 3}
	for _, expected := range want {
		clock.AdvanceDays(1)
		if err := svc.UpdateStreak(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
		if p := mustProgress(t, svc, "u1"); p.Streak != expected {
			t.Errorf("streak = %d, want %d", p.Streak, expected)
		}
	}

	// Same day again: unchanged.
	if err := svc.UpdateStreak(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); p.Streak != 3 {
		t.Errorf("same-day streak = %d, want 3", p.Streak)
	}

	// Skipping a day breaks the streak; the return day counts as day 1.
	clock.AdvanceDays(2)
	if err := svc.UpdateStreak(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if p := mustProgress(t, svc, "u1"); p.Streak != 1 {
		t.Errorf("streak after gap = %d, want 1", p.Streak)
	}
}

func TestStreakAchievementsAtMultiplesOfSeven(t *testing.T) {
	svc, _, _, clock := newTestService(t, []int{100000})
	ctx := context.Background()

	mustProgress(t, svc, "u1")

	for day := 1; day <= 14; day++ {
		clock.AdvanceDays(1)
		if err := svc.UpdateStreak(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}

	p := mustProgress(t, svc, "u1")
	if p.Streak != 14 {
		t.Fatalf("streak = %d, want 14", p.Streak)
	}
	if !p.HasAchievement("streak-7") || !p.HasAchievement("streak-14") {
		t.Errorf("missing streak achievements: %v", p.AchievementIDs())
	}

	count := 0
	for _, a := range p.Achievements {
		if a.ID == "streak-7" || a.ID == "streak-14" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("streak achievements = %d, want exactly 2", count)
	}
}

func TestCheckInAwardsBonusForPositiveNote(t *testing.T) {
	svc, _, _, clock := newTestService(t, []int{100000})
	ctx := context.Background()

	mustProgress(t, svc, "u1")
	clock.AdvanceDays(1)

	sentiment, err := svc.CheckIn(ctx, "u1", "Stayed under budget and saved extra this week")
	if err != nil {
		t.Fatal(err)
	}
	if sentiment != insight.SentimentPositive {
		t.Errorf("sentiment = %s, want positive", sentiment)
	}

	p := mustProgress(t, svc, "u1")
	if p.Experience != 10 {
		t.Errorf("check-in bonus xp = %d, want 10", p.Experience)
	}
	if p.Streak != 1 {
		t.Errorf("check-in streak = %d, want 1", p.Streak)
	}

	clock.AdvanceDays(1)
	sentiment, err = svc.CheckIn(ctx, "u1", "Overspent again, worried about debt")
	if err != nil {
		t.Fatal(err)
	}
	if sentiment != insight.SentimentNegative {
		t.Errorf("sentiment = %s, want negative", sentiment)
	}
	if p := mustProgress(t, svc, "u1"); p.Experience != 10 {
		t.Errorf("negative note changed xp: %d", p.Experience)
	}
}

// brokenStore fails every increment to verify store errors surface as
// retryable to the caller.
type brokenStore struct {
	*progressstore.MemoryStore
}

var errStoreDown = errors.New("store unreachable")

func (b *brokenStore) AtomicIncrement(ctx context.Context, userID, field string, amount int) (int, error) {
	return 0, errStoreDown
}

func TestStoreErrorsPropagate(t *testing.T) {
	cat, err := catalog.NewWithThresholds([]int{100})
	if err != nil {
		t.Fatal(err)
	}
	store := &brokenStore{progressstore.NewMemoryStore()}
	svc := NewProgressionService(store, cat, eventlog.New(), nil)

	ctx := context.Background()
	if _, err := svc.InitializeProgress(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	err = svc.AwardExperience(ctx, "u1", 50, "test")
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
