package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/memory"
	"github.com/nidhogg/nuka-cs/internal/orchestrator"
	"github.com/nidhogg/nuka-cs/internal/sentiment"
	"github.com/nidhogg/nuka-cs/internal/tagging"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	assistant  *orchestrator.Assistant
	fusion     *sentiment.Fusion
	decayHours float64
	logger     *zap.Logger
}

// NewHandler creates a new API handler. fusion scores past messages for
// insight reports. decayHours is the default window for manual decay
// sweeps; zero defers to the memory store's setting.
func NewHandler(assistant *orchestrator.Assistant, fusion *sentiment.Fusion, decayHours float64, logger *zap.Logger) *Handler {
	if fusion == nil {
		fusion = sentiment.NewFusion(logger)
	}
	return &Handler{
		assistant:  assistant,
		fusion:     fusion,
		decayHours: decayHours,
		logger:     logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Analysis
		r.Post("/analyze", h.analyze)
		r.Post("/analyze/sequential", h.analyzeSequential)

		// Analyzer registry
		r.Get("/analyzers", h.listAnalyzers)
		r.Post("/analyzers/{name}/run", h.runAnalyzer)
		r.Put("/analyzers/{name}/active", h.setAnalyzerActive)
		r.Put("/analyzers/{name}/priority", h.setAnalyzerPriority)
		r.Put("/analyzers/{name}/config", h.updateAnalyzerConfig)

		// Memory
		r.Get("/users/{userID}/summary", h.userSummary)
		r.Get("/users/{userID}/stats", h.userStats)
		r.Get("/users/{userID}/insights", h.userInsights)
		r.Get("/users/{userID}/sessions/{sessionID}", h.getSession)
		r.Get("/users/{userID}/sessions/{sessionID}/context", h.sessionContext)
		r.Post("/users/{userID}/sessions/{sessionID}/reply", h.recordReply)
		r.Post("/maintenance/decay", h.decay)
		r.Get("/tags/distribution", h.tagDistribution)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "nuka-cs",
		"analyzers": len(h.assistant.Orchestrator().Registry().Active()),
	})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out, err := h.assistant.Handle(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type sequentialRequest struct {
	Analyzers []string         `json:"analyzers"`
	Request   analysis.Request `json:"request"`
}

func (h *Handler) analyzeSequential(w http.ResponseWriter, r *http.Request) {
	var body sequentialRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(body.Analyzers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "analyzers is required"})
		return
	}
	res := h.assistant.Orchestrator().RunSequential(r.Context(), body.Analyzers, body.Request)
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listAnalyzers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Orchestrator().Registry().Status())
}

func (h *Handler) runAnalyzer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := h.assistant.Orchestrator().RunOne(r.Context(), name, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) setAnalyzerActive(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "active (bool) is required"})
		return
	}
	if err := h.assistant.Orchestrator().Registry().SetActive(name, *body.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "active": *body.Active})
}

func (h *Handler) setAnalyzerPriority(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Priority *int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Priority == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "priority (int) is required"})
		return
	}
	if err := h.assistant.Orchestrator().Registry().SetPriority(name, *body.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "priority": *body.Priority})
}

func (h *Handler) updateAnalyzerConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.assistant.Orchestrator().Registry().UpdateConfig(name, cfg); err != nil {
		if errors.Is(err, orchestrator.ErrAnalyzerNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) userSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Memory().Summary(chi.URLParam(r, "userID")))
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Memory().Stats(chi.URLParam(r, "userID")))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.assistant.Memory().Session(chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type insightsResponse struct {
	UserID          string                   `json:"user_id"`
	Messages        int                      `json:"messages"`
	Sentiment       sentiment.TrendReport    `json:"sentiment"`
	Emotions        sentiment.EmotionSummary `json:"emotions"`
	PredictedIntent string                   `json:"predicted_intent,omitempty"`
}

// userInsights rescores the user's buffered messages to report how their
// sentiment moved and which emotions dominated.
func (h *Handler) userInsights(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	store := h.assistant.Memory()
	queries := store.RecentQueries(userID, store.Config().ShortMemoryMax)

	history := make([]sentiment.Estimate, 0, len(queries))
	emotions := make([]map[string]float64, 0, len(queries))
	for _, q := range queries {
		res := h.fusion.Analyze(q, sentiment.Context{})
		history = append(history, sentiment.Estimate{
			Label:      res.Label,
			Score:      res.Score,
			Confidence: res.Confidence,
			Source:     "fusion",
		})
		emotions = append(emotions, res.Emotions)
	}

	resp := insightsResponse{
		UserID:    userID,
		Messages:  len(queries),
		Sentiment: sentiment.Trend(history),
		Emotions:  sentiment.SummarizeEmotions(emotions),
	}
	if session := r.URL.Query().Get("session"); session != "" {
		resp.PredictedIntent = store.PredictIntent(userID, session)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) tagDistribution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tagging.Distribution(h.assistant.Memory().TagSets()))
}

type contextResponse struct {
	Context memory.Context `json:"context"`
	Prompt  string         `json:"prompt"`
}

func (h *Handler) sessionContext(w http.ResponseWriter, r *http.Request) {
	window := 0
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "window must be a positive integer"})
			return
		}
		window = n
	}

	c := h.assistant.Memory().BuildContext(chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"), window)
	writeJSON(w, http.StatusOK, contextResponse{Context: c, Prompt: memory.FormatContextPrompt(c)})
}

func (h *Handler) recordReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if err := h.assistant.RecordReply(chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"), body.Text); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) decay(w http.ResponseWriter, r *http.Request) {
	hours := h.decayHours
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_age_hours must be a positive number"})
			return
		}
		hours = f
	}

	report := h.assistant.Memory().Decay(time.Now(), hours)
	h.logger.Info("manual decay sweep",
		zap.Int("users", report.UsersSwept),
		zap.Int("facts_removed", report.FactsRemoved))
	writeJSON(w, http.StatusOK, report)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var ve *analysis.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "fields": ve.Fields})
	case errors.Is(err, orchestrator.ErrAnalyzerNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
