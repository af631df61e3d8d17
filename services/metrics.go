package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	experienceAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_experience_awarded_total",
			Help: "Total experience points awarded across all users",
		},
	)
	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_level_ups_total",
			Help: "Total level-up events emitted",
		},
	)
	achievementsUnlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_achievements_unlocked_total",
			Help: "Total achievements unlocked",
		},
	)
	challengesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_challenges_completed_total",
			Help: "Total challenges completed",
		},
	)
	questsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_quests_completed_total",
			Help: "Total quests completed",
		},
	)
)

// InitProgressionMetrics registers the engine metrics. Call this from main.go
func InitProgressionMetrics() {
	prometheus.MustRegister(experienceAwarded)
	prometheus.MustRegister(levelUps)
	prometheus.MustRegister(achievementsUnlocked)
	prometheus.MustRegister(challengesCompleted)
	prometheus.MustRegister(questsCompleted)
}
