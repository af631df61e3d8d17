package progression

import (
	"time"
)

type Category string

const (
	CategoryFinancial Category = "financial"
	CategoryCommunity Category = "community"
	CategoryLearning  Category = "learning"
	CategoryImpact    Category = "impact"
	CategoryPersonal  Category = "personal"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type RewardType string

const (
	RewardPoints  RewardType = "points"
	RewardBadge   RewardType = "badge"
	RewardTitle   RewardType = "title"
	RewardFeature RewardType = "feature"
	RewardGeneric RewardType = "reward"
)

// Reward is a tagged union keyed by Type. Only the field matching the
// type is meaningful; consumers switch on Type exhaustively.
type Reward struct {
	Type        RewardType `json:"type" firestore:"type"`
	Points      int        `json:"points,omitempty" firestore:"points,omitempty"`
	Badge       string     `json:"badge,omitempty" firestore:"badge,omitempty"`
	Title       string     `json:"title,omitempty" firestore:"title,omitempty"`
	Feature     string     `json:"feature,omitempty" firestore:"feature,omitempty"`
	Label       string     `json:"label,omitempty" firestore:"label,omitempty"`
	Description string     `json:"description" firestore:"description"`
}

type Requirement struct {
	Metric  string  `json:"metric" firestore:"metric"`
	Target  float64 `json:"target" firestore:"target"`
	Current float64 `json:"current" firestore:"current"`
}

type Achievement struct {
	ID           string        `json:"id" firestore:"id"`
	Name         string        `json:"name" firestore:"name"`
	Description  string        `json:"description" firestore:"description"`
	Category     Category      `json:"category" firestore:"category"`
	Difficulty   Difficulty    `json:"difficulty" firestore:"difficulty"`
	Requirements []Requirement `json:"requirements,omitempty" firestore:"requirements,omitempty"`
	Rewards      []Reward      `json:"rewards,omitempty" firestore:"rewards,omitempty"`
	Unlocked     bool          `json:"unlocked" firestore:"unlocked"`
	UnlockedAt   *time.Time    `json:"unlocked_at,omitempty" firestore:"unlockedAt,omitempty"`
}

// Progress is the percentage of requirements met, derived on read.
func (a *Achievement) Progress() float64 {
	if a.Unlocked {
		return 100
	}
	if len(a.Requirements) == 0 {
		return 0
	}
	var sum float64
	for _, r := range a.Requirements {
		if r.Target <= 0 {
			continue
		}
		pct := r.Current / r.Target * 100
		if pct > 100 {
			pct = 100
		}
		sum += pct
	}
	return sum / float64(len(a.Requirements))
}

type Task struct {
	Description string `json:"description" firestore:"description"`
	Completed   bool   `json:"completed" firestore:"completed"`
	Points      int    `json:"points" firestore:"points"`
}

// ChallengeStanding is one participant's progress within a challenge.
type ChallengeStanding struct {
	Progress int    `json:"progress" firestore:"progress"`
	Status   Status `json:"status" firestore:"status"`
}

type LeaderboardEntry struct {
	UserID   string `json:"user_id" firestore:"userId"`
	Username string `json:"username" firestore:"username"`
	Score    int    `json:"score" firestore:"score"`
}

type Challenge struct {
	ID           string                       `json:"id" firestore:"id"`
	Title        string                       `json:"title" firestore:"title"`
	Description  string                       `json:"description" firestore:"description"`
	Category     Category                     `json:"category" firestore:"category"`
	StartDate    time.Time                    `json:"start_date" firestore:"startDate"`
	EndDate      time.Time                    `json:"end_date" firestore:"endDate"`
	Tasks        []Task                       `json:"tasks,omitempty" firestore:"tasks,omitempty"`
	Target       int                          `json:"target" firestore:"target"`
	Rewards      []Reward                     `json:"rewards,omitempty" firestore:"rewards,omitempty"`
	Participants map[string]ChallengeStanding `json:"participants" firestore:"participants"`
	Leaderboard  []LeaderboardEntry           `json:"leaderboard,omitempty" firestore:"leaderboard,omitempty"`
}

// Standing returns the participant's standing, defaulting to active with
// zero progress for a participant not yet recorded.
func (c *Challenge) Standing(userID string) ChallengeStanding {
	if c.Participants != nil {
		if s, ok := c.Participants[userID]; ok {
			return s
		}
	}
	return ChallengeStanding{Status: StatusActive}
}

type Objective struct {
	Description string `json:"description" firestore:"description"`
	Completed   bool   `json:"completed" firestore:"completed"`
	Impact      string `json:"impact,omitempty" firestore:"impact,omitempty"`
}

type Quest struct {
	ID         string      `json:"id" firestore:"id"`
	Title      string      `json:"title" firestore:"title"`
	Narrative  string      `json:"narrative,omitempty" firestore:"narrative,omitempty"`
	Objectives []Objective `json:"objectives,omitempty" firestore:"objectives,omitempty"`
	Rewards    []Reward    `json:"rewards,omitempty" firestore:"rewards,omitempty"`
	Progress   int         `json:"progress" firestore:"progress"`
	Status     Status      `json:"status" firestore:"status"`
}

// UserProgress is the persisted progression document, one per user.
// Level is always derived from Experience through the catalog thresholds,
// never set independently.
type UserProgress struct {
	UserID              string        `json:"user_id" firestore:"userId"`
	Level               int           `json:"level" firestore:"level"`
	Experience          int           `json:"experience" firestore:"experience"`
	Achievements        []Achievement `json:"achievements" firestore:"achievements"`
	ActiveChallenges    []Challenge   `json:"active_challenges" firestore:"activeChallenges"`
	CompletedChallenges []Challenge   `json:"completed_challenges" firestore:"completedChallenges"`
	ActiveQuests        []Quest       `json:"active_quests" firestore:"activeQuests"`
	CompletedQuests     []Quest       `json:"completed_quests" firestore:"completedQuests"`
	Streak              int           `json:"streak" firestore:"streak"`
	LastActive          time.Time     `json:"last_active" firestore:"lastActive"`
	CreatedAt           time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt           time.Time     `json:"updated_at" firestore:"updatedAt"`
}

func (p *UserProgress) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (p *UserProgress) AchievementIDs() []string {
	ids := make([]string, 0, len(p.Achievements))
	for _, a := range p.Achievements {
		ids = append(ids, a.ID)
	}
	return ids
}

func (p *UserProgress) FindActiveChallenge(id string) *Challenge {
	for i := range p.ActiveChallenges {
		if p.ActiveChallenges[i].ID == id {
			return &p.ActiveChallenges[i]
		}
	}
	return nil
}

func (p *UserProgress) FindActiveQuest(id string) *Quest {
	for i := range p.ActiveQuests {
		if p.ActiveQuests[i].ID == id {
			return &p.ActiveQuests[i]
		}
	}
	return nil
}
