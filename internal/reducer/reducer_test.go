package reducer

import (
	"context"
	"testing"
	"time"

	"finverseAPI/internal/catalog"
	"finverseAPI/internal/eventlog"
	"finverseAPI/internal/progressstore"
	"finverseAPI/internal/types/progression"
	"finverseAPI/services"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.NewWithThresholds([]int{100, 250, 500, 1000})
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func baseState(userID string) State {
	return NewState(progression.UserProgress{
		UserID: userID,
		Level:  1,
	})
}

func TestGainExperienceRecomputesLevel(t *testing.T) {
	cat := testCatalog(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := baseState("u1")
	s = Apply(cat, s, Action{Type: ActionGainExperience, Amount: 120}, at)

	if s.Progress.Experience != 120 {
		t.Errorf("experience = %d, want 120", s.Progress.Experience)
	}
	if s.Progress.Level != 2 {
		t.Errorf("level = %d, want 2", s.Progress.Level)
	}
	if len(s.Events) != 1 {
		t.Errorf("events = %d, want 1 level_up", len(s.Events))
	}
}

func TestGainExperienceNonPositiveIsNoOp(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	s := baseState("u1")
	s2 := Apply(cat, s, Action{Type: ActionGainExperience, Amount: 0}, at)
	s3 := Apply(cat, s2, Action{Type: ActionGainExperience, Amount: -5}, at)

	if s3.Progress.Experience != 0 || s3.Progress.Level != 1 {
		t.Errorf("no-op gain changed state: xp %d level %d", s3.Progress.Experience, s3.Progress.Level)
	}
}

func TestUnlockAchievementDedupsWithinSession(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	ach := &progression.Achievement{
		ID:         "first-budget",
		Name:       "First Budget",
		Category:   progression.CategoryFinancial,
		Difficulty: progression.DifficultyBeginner,
	}

	s := baseState("u1")
	s = Apply(cat, s, Action{Type: ActionUnlockAchievement, Achievement: ach}, at)
	xpAfterFirst := s.Progress.Experience

	s = Apply(cat, s, Action{Type: ActionUnlockAchievement, Achievement: ach}, at)

	if len(s.Progress.Achievements) != 1 {
		t.Errorf("achievements = %d, want 1", len(s.Progress.Achievements))
	}
	if s.Progress.Experience != xpAfterFirst {
		t.Errorf("double-dispatch changed xp: %d -> %d", xpAfterFirst, s.Progress.Experience)
	}
	if xpAfterFirst != 75 { // beginner 50 * financial 1.5
		t.Errorf("unlock xp = %d, want 75", xpAfterFirst)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	s := baseState("u1")
	s.Progress.ActiveQuests = []progression.Quest{{
		ID:     "q1",
		Status: progression.StatusActive,
	}}

	_ = Apply(cat, s, Action{Type: ActionProgressQuest, QuestID: "q1", Progress: 100}, at)

	if len(s.Progress.ActiveQuests) != 1 || s.Progress.ActiveQuests[0].Progress != 0 {
		t.Error("Apply mutated its input state")
	}
	if s.Progress.Experience != 0 {
		t.Error("Apply mutated input experience")
	}
}

func TestProgressQuestClampsAndCompletes(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	s := baseState("u1")
	s.Progress.ActiveQuests = []progression.Quest{{
		ID:      "q1",
		Status:  progression.StatusActive,
		Rewards: []progression.Reward{{Type: progression.RewardPoints, Points: 30}},
	}}

	s = Apply(cat, s, Action{Type: ActionProgressQuest, QuestID: "q1", Progress: 150}, at)

	if len(s.Progress.ActiveQuests) != 0 || len(s.Progress.CompletedQuests) != 1 {
		t.Fatalf("quest lists: active %d completed %d", len(s.Progress.ActiveQuests), len(s.Progress.CompletedQuests))
	}
	if s.Progress.CompletedQuests[0].Progress != 100 {
		t.Errorf("progress = %d, want clamped 100", s.Progress.CompletedQuests[0].Progress)
	}
	if s.Progress.Experience != 30 {
		t.Errorf("reward xp = %d, want 30", s.Progress.Experience)
	}

	// Terminal: further progress is a no-op.
	before := s.Progress.Experience
	s = Apply(cat, s, Action{Type: ActionProgressQuest, QuestID: "q1", Progress: 100}, at)
	if s.Progress.Experience != before {
		t.Error("terminal quest re-applied reward")
	}
}

func TestCompleteChallengeMovesAndRewardsOnce(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	s := baseState("u1")
	s.Progress.ActiveChallenges = []progression.Challenge{{
		ID:     "c1",
		Title:  "No-Spend Week",
		Target: 7,
		Rewards: []progression.Reward{
			{Type: progression.RewardPoints, Points: 40},
			{Type: progression.RewardBadge, Badge: "frugal", Description: "No-spend badge"},
		},
	}}

	s = Apply(cat, s, Action{Type: ActionCompleteChallenge, ChallengeID: "c1"}, at)

	if len(s.Progress.CompletedChallenges) != 1 {
		t.Fatal("challenge not moved to completed")
	}
	// 40 points + badge unlock (beginner 50 * default category 1.0).
	if s.Progress.Experience != 90 {
		t.Errorf("xp = %d, want 90", s.Progress.Experience)
	}
	if !s.Progress.HasAchievement("badge-frugal") {
		t.Error("badge achievement not unlocked")
	}

	before := s.Progress.Experience
	s = Apply(cat, s, Action{Type: ActionCompleteChallenge, ChallengeID: "c1"}, at)
	if s.Progress.Experience != before {
		t.Error("repeat completion re-applied reward")
	}
}

func TestReconcileServerWins(t *testing.T) {
	cat := testCatalog(t)
	at := time.Now()

	s := baseState("u1")
	s = Apply(cat, s, Action{Type: ActionGainExperience, Amount: 300}, at)
	if s.Progress.Level != 3 {
		t.Fatalf("optimistic level = %d, want 3", s.Progress.Level)
	}

	// The optimistic award never persisted; the server still says level 1.
	server := progression.UserProgress{UserID: "u1", Level: 1, Experience: 20}
	s = Reconcile(s, server)

	if s.Progress.Level != 1 || s.Progress.Experience != 20 {
		t.Errorf("reconciled state = level %d xp %d, want server's 1/20", s.Progress.Level, s.Progress.Experience)
	}
	if len(s.Events) == 0 {
		t.Error("reconcile dropped the local event buffer")
	}
}

// TestReducerConvergesWithEngine drives the reducer and the authoritative
// engine through the same logical sequence of facts and expects the same
// {level, experience, achievement-id-set} triple.
func TestReducerConvergesWithEngine(t *testing.T) {
	cat := testCatalog(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := progressstore.NewMemoryStore()
	svc := services.NewProgressionService(store, cat, eventlog.New(), nil)

	ach := progression.Achievement{
		ID:         "first-save",
		Name:       "First Save",
		Category:   progression.CategoryLearning,
		Difficulty: progression.DifficultyBeginner,
	}
	ch := progression.Challenge{
		ID:      "c1",
		Title:   "Track Spending",
		Target:  3,
		EndDate: at.Add(30 * 24 * time.Hour),
		Rewards: []progression.Reward{{Type: progression.RewardPoints, Points: 15}},
	}

	// Engine side.
	if err := svc.AwardExperience(ctx, "u1", 10, "seed"); err != nil {
		t.Fatal(err)
	}
	if err := svc.UnlockAchievement(ctx, "u1", ach); err != nil {
		t.Fatal(err)
	}
	if err := svc.StartChallenge(ctx, "u1", ch); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateChallengeProgress(ctx, "u1", "c1", 3); err != nil {
		t.Fatal(err)
	}
	if err := svc.AwardExperience(ctx, "u1", 20, "more"); err != nil {
		t.Fatal(err)
	}

	// Reducer side, same facts.
	s := NewState(progression.UserProgress{UserID: "u1", Level: 1})
	s.Progress.ActiveChallenges = []progression.Challenge{ch}
	s = Apply(cat, s, Action{Type: ActionGainExperience, Amount: 10}, at)
	s = Apply(cat, s, Action{Type: ActionUnlockAchievement, Achievement: &ach}, at)
	s = Apply(cat, s, Action{Type: ActionCompleteChallenge, ChallengeID: "c1"}, at)
	s = Apply(cat, s, Action{Type: ActionGainExperience, Amount: 20}, at)

	serverState, err := svc.InitializeProgress(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	if s.Progress.Experience != serverState.Experience {
		t.Errorf("experience: reducer %d, engine %d", s.Progress.Experience, serverState.Experience)
	}
	if s.Progress.Level != serverState.Level {
		t.Errorf("level: reducer %d, engine %d", s.Progress.Level, serverState.Level)
	}

	reducerIDs := map[string]bool{}
	for _, id := range s.Progress.AchievementIDs() {
		reducerIDs[id] = true
	}
	for _, id := range serverState.AchievementIDs() {
		if !reducerIDs[id] {
			t.Errorf("engine unlocked %q, reducer did not", id)
		}
		delete(reducerIDs, id)
	}
	for id := range reducerIDs {
		t.Errorf("reducer unlocked %q, engine did not", id)
	}
}
