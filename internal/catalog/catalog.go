package catalog

import (
	"fmt"
	"time"

	"finverseAPI/internal/types/progression"
)

// DefaultLevelThresholds is the cumulative experience required to clear
// each level. Level = 1 + count of thresholds cleared.
var DefaultLevelThresholds = []int{100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000, 15000}

var experienceByDifficulty = map[progression.Difficulty]int{
	progression.DifficultyBeginner:     50,
	progression.DifficultyIntermediate: 100,
	progression.DifficultyAdvanced:     200,
	progression.DifficultyExpert:       500,
}

var multiplierByCategory = map[progression.Category]float64{
	progression.CategoryFinancial: 1.5,
	progression.CategoryCommunity: 1.2,
	progression.CategoryLearning:  1.0,
	progression.CategoryImpact:    1.3,
	progression.CategoryPersonal:  1.0,
}

// challengeCadence is how often a fresh challenge is generated per category.
var challengeCadence = map[progression.Category]time.Duration{
	progression.CategoryFinancial: 7 * 24 * time.Hour,
	progression.CategoryCommunity: 14 * 24 * time.Hour,
	progression.CategoryLearning:  7 * 24 * time.Hour,
	progression.CategoryImpact:    30 * 24 * time.Hour,
	progression.CategoryPersonal:  7 * 24 * time.Hour,
}

// questBand maps a level range to the number of objectives a generated
// quest carries.
type questBand struct {
	MinLevel   int
	Objectives int
}

var questComplexity = []questBand{
	{MinLevel: 1, Objectives: 2},
	{MinLevel: 4, Objectives: 3},
	{MinLevel: 7, Objectives: 5},
	{MinLevel: 10, Objectives: 8},
}

// Catalog holds the static progression tables. Construct it once at
// startup; New fails fast on a malformed threshold table so a bad config
// can never surface at request time.
type Catalog struct {
	thresholds []int
}

func New() *Catalog {
	c, err := NewWithThresholds(DefaultLevelThresholds)
	if err != nil {
		// Defaults are compiled in; this cannot happen.
		panic(err)
	}
	return c
}

func NewWithThresholds(thresholds []int) (*Catalog, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("catalog: empty level threshold table")
	}
	prev := 0
	for i, t := range thresholds {
		if t <= prev {
			return nil, fmt.Errorf("catalog: level thresholds must be strictly increasing, got %d at index %d", t, i)
		}
		prev = t
	}
	return &Catalog{thresholds: append([]int(nil), thresholds...)}, nil
}

func (c *Catalog) Thresholds() []int {
	return append([]int(nil), c.thresholds...)
}

func (c *Catalog) ExperienceForDifficulty(d progression.Difficulty) int {
	return experienceByDifficulty[d]
}

func (c *Catalog) MultiplierForCategory(cat progression.Category) float64 {
	if m, ok := multiplierByCategory[cat]; ok {
		return m
	}
	return 1.0
}

func (c *Catalog) LevelForExperience(exp int) int {
	return LevelForExperience(exp, c.thresholds)
}

// LevelForExperience walks the ascending threshold table and returns
// 1 plus the count of thresholds the experience has cleared. Experience
// exactly equal to a threshold counts as having cleared it.
func LevelForExperience(exp int, thresholds []int) int {
	level := 1
	for _, t := range thresholds {
		if exp < t {
			break
		}
		level++
	}
	return level
}

func (c *Catalog) ChallengeCadence(cat progression.Category) time.Duration {
	if d, ok := challengeCadence[cat]; ok {
		return d
	}
	return 7 * 24 * time.Hour
}

func (c *Catalog) QuestObjectivesForLevel(level int) int {
	n := questComplexity[0].Objectives
	for _, band := range questComplexity {
		if level >= band.MinLevel {
			n = band.Objectives
		}
	}
	return n
}
