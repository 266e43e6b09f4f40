package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/herta-labs/vibechecker/internal/auth"
	"github.com/herta-labs/vibechecker/internal/config"
	"github.com/herta-labs/vibechecker/internal/model"
	"github.com/herta-labs/vibechecker/internal/moderation"
	"github.com/herta-labs/vibechecker/internal/sentiment"
	"github.com/herta-labs/vibechecker/internal/store"

	_ "github.com/herta-labs/vibechecker/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

const (
	version       = "1.0.0"
	maxBatchTexts = 100
	maxSingleLen  = 500
)

type Server struct {
	store     store.Store
	auth      *auth.Service
	mod       *moderation.Service
	cfg       config.Config
	log       *zap.Logger
	startedAt time.Time
}

func NewServer(st store.Store, authSvc *auth.Service, mod *moderation.Service, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: st, auth: authSvc, mod: mod, cfg: cfg, log: log, startedAt: time.Now()}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.route(rec, r)
	s.log.Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/swagger/") {
		httpSwagger.WrapHandler.ServeHTTP(w, r)
		return
	}

	switch r.URL.Path {
	case "/health":
		s.withMethod(w, r, http.MethodGet, s.handleHealth)
	case "/stats":
		s.withMethod(w, r, http.MethodGet, s.handleStats)
	case "/math_challenge":
		s.withMethod(w, r, http.MethodGet, s.handleMathChallenge)
	case "/oauth/token":
		s.withMethod(w, r, http.MethodPost, s.handleToken)
	case "/register":
		s.withMethod(w, r, http.MethodPost, s.handleRegister)
	case "/custom-words":
		s.withMethod(w, r, http.MethodPost, s.handleCustomWords)
	case "/detect":
		s.withMethod(w, r, http.MethodPost, s.handleDetect)
	case "/vibe-check/single":
		s.withMethod(w, r, http.MethodPost, s.handleVibeSingle)
	case "/vibe-check/batch":
		s.withMethod(w, r, http.MethodPost, s.handleVibeBatch)
	case "/vibes":
		s.withMethod(w, r, http.MethodGet, s.handleVibes)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (s *Server) withMethod(w http.ResponseWriter, r *http.Request, method string, h http.HandlerFunc) {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	h(w, r)
}

// handleHealth godoc
//
//	@Summary	Service health
//	@Tags		Vibes
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "OK",
		"version": version,
	})
}

// handleStats godoc
//
//	@Summary	Aggregate analysis statistics
//	@Tags		Vibes
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetUsageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{
		"total_texts_analyzed": stats.Total,
		"positive_percentage":  0.0,
		"neutral_percentage":   0.0,
		"negative_percentage":  0.0,
		"avg_response_time_ms": 0,
		"uptime":               time.Since(s.startedAt).Round(time.Second).String(),
	}
	if stats.Total > 0 {
		total := float64(stats.Total)
		resp["positive_percentage"] = round4(float64(stats.Positive) / total)
		resp["neutral_percentage"] = round4(float64(stats.Neutral) / total)
		resp["negative_percentage"] = round4(float64(stats.Negative) / total)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMathChallenge godoc
//
//	@Summary	Issue a math challenge
//	@Tags		Authentication
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/math_challenge [get]
func (s *Server) handleMathChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := s.auth.CreateChallenge(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id": challenge.ChallengeID,
		"question":     challenge.Question,
	})
}

// handleRegister godoc
//
//	@Summary	Register a client application
//	@Tags		Authentication
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Router		/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		URI   string `json:"uri"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("name required"))
		return
	}
	reg, err := s.auth.RegisterClient(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.URI))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Application registered successfully",
		"client_id":     reg.ClientID,
		"client_secret": reg.ClientSecret,
	})
}

// handleToken godoc
//
//	@Summary		Exchange credentials and a solved challenge for a bearer token
//	@Description	Requires Basic auth (client_id:client_secret). Form fields: challenge_id, challenge_answer. grant_type=client_credentials may skip the challenge only when the server runs with REQUIRE_MATH_CHALLENGE=false.
//	@Tags			Authentication
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		401	{object}	map[string]any
//	@Router			/oauth/token [post]
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	clientID, secret, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing basic auth"))
		return
	}
	client, err := s.auth.VerifyClient(r.Context(), clientID, secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	grantType := r.PostFormValue("grant_type")
	skipChallenge := !s.cfg.RequireChallenge && grantType == "client_credentials"
	if !skipChallenge {
		challengeID := r.PostFormValue("challenge_id")
		answer, convErr := strconv.Atoi(strings.TrimSpace(r.PostFormValue("challenge_answer")))
		if challengeID == "" || convErr != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidChallenge)
			return
		}
		if err := s.auth.ConsumeChallenge(r.Context(), challengeID, answer); err != nil {
			if errors.Is(err, auth.ErrInvalidChallenge) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	token, err := s.auth.IssueToken(client.ClientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   token.ExpiresIn,
		"scope":        token.Scope,
	})
}

// handleCustomWords godoc
//
//	@Summary	Add or remove words on the caller's blacklist or whitelist
//	@Tags		Moderation
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Router		/custom-words [post]
func (s *Server) handleCustomWords(w http.ResponseWriter, r *http.Request) {
	client, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Action   string   `json:"action"`
		Category string   `json:"category"`
		Words    []string `json:"words"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	applied, err := s.mod.Apply(r.Context(), client.ClientID, req.Action, req.Category, req.Words)
	if err != nil {
		if errors.Is(err, moderation.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	verb := "added to"
	if strings.EqualFold(strings.TrimSpace(req.Action), moderation.ActionRemove) {
		verb = "removed from"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%d word(s) %s %s", applied, verb, strings.ToLower(strings.TrimSpace(req.Category))),
	})
}

// handleDetect godoc
//
//	@Summary	Detect blacklisted words in a text
//	@Tags		Moderation
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Router		/detect [post]
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	client, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text required"))
		return
	}
	detection, err := s.mod.Detect(r.Context(), client.ClientID, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if detection.Profane {
		writeJSON(w, http.StatusOK, map[string]any{
			"isProfane":      true,
			"detected_words": detection.Words,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isProfane": false,
		"message":   "no sensitive words detected",
	})
}

// handleVibeSingle godoc
//
//	@Summary	Score the sentiment of one text
//	@Tags		Vibes
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Failure	422	{object}	map[string]any
//	@Router		/vibe-check/single [post]
func (s *Server) handleVibeSingle(w http.ResponseWriter, r *http.Request) {
	client, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if n := utf8.RuneCountInString(req.Text); n < 1 || n > maxSingleLen {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("text must be 1-%d characters", maxSingleLen))
		return
	}

	res := sentiment.Analyze(req.Text)
	record := &model.VibeResult{
		ClientID:  client.ClientID,
		Text:      req.Text,
		Vibe:      res.Vibe,
		Score:     res.Score,
		CreatedAt: time.Now(),
	}
	id, err := s.store.CreateResult(r.Context(), record)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     resultID(id),
		"text":   req.Text,
		"vibe":   res.Vibe,
		"score":  res.Score,
		"detail": res.Detail,
	})
}

// handleVibeBatch godoc
//
//	@Summary	Score the sentiment of up to 100 texts
//	@Tags		Vibes
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Failure	413	{object}	map[string]any
//	@Router		/vibe-check/batch [post]
func (s *Server) handleVibeBatch(w http.ResponseWriter, r *http.Request) {
	client, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Texts []string `json:"texts"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("field 'texts' must be a non-empty list"))
		return
	}
	if len(req.Texts) > maxBatchTexts {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("too many texts (max %d)", maxBatchTexts))
		return
	}

	now := time.Now()
	records := make([]*model.VibeResult, len(req.Texts))
	analyses := make([]sentiment.Result, len(req.Texts))
	for i, text := range req.Texts {
		analyses[i] = sentiment.Analyze(text)
		records[i] = &model.VibeResult{
			ClientID:  client.ClientID,
			Text:      text,
			Vibe:      analyses[i].Vibe,
			Score:     analyses[i].Score,
			CreatedAt: now,
		}
	}
	// The whole batch commits together; a failure rolls back every item.
	if err := s.store.CreateResults(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	results := make([]map[string]any, len(records))
	for i, rec := range records {
		results[i] = map[string]any{
			"id":    resultID(rec.ID),
			"text":  rec.Text,
			"vibe":  rec.Vibe,
			"score": rec.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleVibes godoc
//
//	@Summary	List the caller's analysis history, newest first
//	@Tags		Vibes
//	@Produce	json
//	@Security	BearerAuth
//	@Param		limit	query		int	false	"max results (default 50)"
//	@Param		offset	query		int	false	"skip count"
//	@Success	200		{object}	map[string]any
//	@Failure	401		{object}	map[string]any
//	@Router		/vibes [get]
func (s *Server) handleVibes(w http.ResponseWriter, r *http.Request) {
	client, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	results, err := s.store.ListResultsByClient(r.Context(), client.ClientID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	history := make([]map[string]any, len(results))
	for i, res := range results {
		history[i] = map[string]any{
			"id":        resultID(res.ID),
			"text":      res.Text,
			"vibe":      res.Vibe,
			"score":     res.Score,
			"timestamp": res.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (model.Client, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return model.Client{}, false
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	client, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return model.Client{}, false
	}
	return client, true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func resultID(id int64) string {
	return fmt.Sprintf("res_%010d", id)
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}
