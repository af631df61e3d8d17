package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"finverseAPI/internal/eventlog"
	"finverseAPI/internal/types/progression"
	"finverseAPI/middleware"
	"finverseAPI/services"
)

type ProgressionHandler struct {
	progressionService *services.ProgressionService
	events             *eventlog.Log
}

func NewProgressionHandler(progressionService *services.ProgressionService, events *eventlog.Log) *ProgressionHandler {
	return &ProgressionHandler{
		progressionService: progressionService,
		events:             events,
	}
}

type awardExperienceRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

type progressRequest struct {
	Progress int `json:"progress"`
}

type checkInRequest struct {
	Note string `json:"note"`
}

func (h *ProgressionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	progress, err := h.progressionService.InitializeProgress(ctx, userID)
	if err != nil {
		log.Printf("GetProgress: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, progress)
}

func (h *ProgressionHandler) AwardExperience(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req awardExperienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.progressionService.AwardExperience(ctx, userID, req.Amount, req.Reason); err != nil {
		log.Printf("AwardExperience: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) UnlockAchievement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var ach progression.Achievement
	if err := json.NewDecoder(r.Body).Decode(&ach); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ach.ID == "" {
		respondWithError(w, http.StatusBadRequest, "Achievement id is required")
		return
	}

	if err := h.progressionService.UnlockAchievement(ctx, userID, ach); err != nil {
		log.Printf("UnlockAchievement: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var ch progression.Challenge
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ch.ID == "" {
		respondWithError(w, http.StatusBadRequest, "Challenge id is required")
		return
	}

	if err := h.progressionService.StartChallenge(ctx, userID, ch); err != nil {
		log.Printf("StartChallenge: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) UpdateChallengeProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID := mux.Vars(r)["challengeID"]

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.progressionService.UpdateChallengeProgress(ctx, userID, challengeID, req.Progress); err != nil {
		log.Printf("UpdateChallengeProgress: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) StartQuest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var q progression.Quest
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if q.ID == "" {
		respondWithError(w, http.StatusBadRequest, "Quest id is required")
		return
	}

	if err := h.progressionService.StartQuest(ctx, userID, q); err != nil {
		log.Printf("StartQuest: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) ProgressQuest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	questID := mux.Vars(r)["questID"]

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.progressionService.ProgressQuest(ctx, userID, questID, req.Progress); err != nil {
		log.Printf("ProgressQuest: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

// RecordActivity is the daily ping: it advances the streak and returns
// the refreshed progress.
func (h *ProgressionHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.progressionService.UpdateStreak(ctx, userID); err != nil {
		log.Printf("RecordActivity: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	h.respondWithProgress(ctx, w, userID)
}

func (h *ProgressionHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sentiment, err := h.progressionService.CheckIn(ctx, userID, req.Note)
	if err != nil {
		log.Printf("CheckIn: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	progress, err := h.progressionService.InitializeProgress(ctx, userID)
	if err != nil {
		log.Printf("CheckIn: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"sentiment": sentiment,
		"progress":  progress,
	})
}

// DrainEvents hands the caller's buffered events exactly once, for
// one-shot toast dispatch on the dashboard.
func (h *ProgressionHandler) DrainEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	events := h.events.DrainUser(userID)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (h *ProgressionHandler) respondWithProgress(ctx context.Context, w http.ResponseWriter, userID string) {
	progress, err := h.progressionService.InitializeProgress(ctx, userID)
	if err != nil {
		log.Printf("respondWithProgress: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress temporarily unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, progress)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
