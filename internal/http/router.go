package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/loader"
	"github.com/dglav/reddit-clone-server/internal/repository"
	"github.com/dglav/reddit-clone-server/internal/service/auth"
	"github.com/dglav/reddit-clone-server/internal/service/post"
	"github.com/dglav/reddit-clone-server/internal/service/vote"
	"github.com/dglav/reddit-clone-server/internal/ws"
)

// feedTopic is the hub topic carrying newly created posts.
const feedTopic = "posts"

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	posts    post.Service
	votes    vote.Service
	users    repository.UserRepository
	voteRepo repository.VoteRepository
	feed     *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	votesApplied       *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	defaultPageSize    = 20
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies. The user and vote
// repositories are handed in alongside the services because the per-request
// loader bundles batch directly against them.
func NewRouter(logger *slog.Logger, authSvc auth.Service, postSvc post.Service, voteSvc vote.Service, users repository.UserRepository, voteRepo repository.VoteRepository, feed *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		posts:    postSvc,
		votes:    voteSvc,
		users:    users,
		voteRepo: voteRepo,
		feed:     feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/register", r.audit(r.withRateLimit("/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/me", r.audit(r.withOptionalAuth(r.handleMe)))
	r.mux.HandleFunc("/posts", r.audit(r.withOptionalAuth(r.withRateLimit("/posts", rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, r.handlePosts))))
	r.mux.HandleFunc("/posts/", r.audit(r.withOptionalAuth(r.withRateLimit("/posts/{id}", rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, r.handlePostSubroutes))))
	r.mux.HandleFunc("/ws/posts", r.audit(r.withRateLimit("/ws/posts", rateLimitWebsocket, rateWindowRealtime, rateLimitKeyIP, r.handleFeedWS)))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, fieldErrs := r.auth.Register(req.Context(), payload.Username, payload.Email, payload.Password)
	if len(fieldErrs) > 0 {
		writeJSON(w, registerErrorStatus(fieldErrs), map[string]any{"errors": fieldErrs})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userPayload(user),
		"tokens": tokens,
	})
}

// registerErrorStatus keeps the structured field errors while still giving
// REST clients a meaningful status: conflicts are 409, internal problems
// 500, plain validation 400.
func registerErrorStatus(fieldErrs []auth.FieldError) int {
	for _, fe := range fieldErrs {
		if fe.Field == "unknown" {
			return http.StatusInternalServerError
		}
		if fe.Message == "that username already exists" {
			return http.StatusConflict
		}
	}
	return http.StatusBadRequest
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		UsernameOrEmail string `json:"usernameOrEmail"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.UsernameOrEmail, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userPayload(user),
		"tokens": tokens,
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	user, err := r.users.GetUserByID(req.Context(), info.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (r *Router) handlePosts(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.handleListPosts(w, req)
	case http.MethodPost:
		r.handlerAuthRate("/posts", rateLimitUserWrite, rateWindowDefault, r.handleCreatePost)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleListPosts(w http.ResponseWriter, req *http.Request) {
	limit := defaultPageSize
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	page, err := r.posts.List(req.Context(), limit, req.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, post.ErrBadCursor) {
			writeError(w, http.StatusBadRequest, "malformed cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}

	views, err := r.resolve(req.Context(), page.Posts, viewerID(req.Context()))
	if err != nil {
		r.logger.Error("post resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":      views,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
	})
}

func (r *Router) handlePostSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/posts/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	postID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		r.notFound(w)
		return
	}
	if len(parts) == 2 && parts[1] == "vote" {
		r.handlerAuthRate("/posts/{id}/vote", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleVote(w, req, postID)
		})(w, req)
		return
	}
	if len(parts) > 1 {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.handleGetPost(w, req, postID)
	case http.MethodPut:
		r.handlerAuthRate("/posts/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleUpdatePost(w, req, postID)
		})(w, req)
	case http.MethodDelete:
		r.handlerAuthRate("/posts/{id}", rateLimitUserWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleDeletePost(w, req, postID)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGetPost(w http.ResponseWriter, req *http.Request, postID int64) {
	p, err := r.posts.Get(req.Context(), postID)
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	views, err := r.resolve(req.Context(), []domain.Post{*p}, viewerID(req.Context()))
	if err != nil {
		r.logger.Error("post resolution failed", "post_id", postID, "error", err)
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": views[0]})
}

func (r *Router) handleCreatePost(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := r.posts.Create(req.Context(), viewerID(req.Context()), payload.Title, payload.Body)
	if err != nil {
		switch {
		case errors.Is(err, post.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, post.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		}
		return
	}

	views, err := r.resolve(req.Context(), []domain.Post{*created}, viewerID(req.Context()))
	if err != nil {
		r.logger.Error("post resolution failed", "post_id", created.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	r.broadcastCreated(req.Context(), *created)
	writeJSON(w, http.StatusCreated, map[string]any{"post": views[0]})
}

// broadcastCreated pushes the new post to feed subscribers. The broadcast
// audience is anonymous, so the view is resolved without a viewer and
// carries no email or vote state.
func (r *Router) broadcastCreated(ctx context.Context, p domain.Post) {
	if r.feed == nil {
		return
	}
	views, err := r.resolve(ctx, []domain.Post{p}, nil)
	if err != nil {
		r.logger.Warn("feed broadcast resolution failed", "post_id", p.ID, "error", err)
		return
	}
	payload, err := json.Marshal(views[0])
	if err != nil {
		return
	}
	r.feed.Broadcast(feedTopic, payload)
}

func (r *Router) handleUpdatePost(w http.ResponseWriter, req *http.Request, postID int64) {
	var payload struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := r.posts.Update(req.Context(), viewerID(req.Context()), postID, payload.Title, payload.Body)
	if err != nil {
		switch {
		case errors.Is(err, post.ErrNotFound):
			r.notFound(w)
		case errors.Is(err, post.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		}
		return
	}
	views, err := r.resolve(req.Context(), []domain.Post{*updated}, viewerID(req.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": views[0]})
}

func (r *Router) handleDeletePost(w http.ResponseWriter, req *http.Request, postID int64) {
	deleted := r.posts.Delete(req.Context(), viewerID(req.Context()), postID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (r *Router) handleVote(w http.ResponseWriter, req *http.Request, postID int64) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	score, err := r.votes.Cast(req.Context(), postID, viewerID(req.Context()), payload.Value)
	if err != nil {
		switch {
		case errors.Is(err, vote.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, vote.ErrPostNotFound):
			r.notFound(w)
		default:
			writeError(w, http.StatusInternalServerError, "an unknown error has occurred")
		}
		return
	}
	r.recordVote(domain.NormalizeVote(payload.Value))
	writeJSON(w, http.StatusOK, map[string]any{"voted": true, "score": score})
}

func (r *Router) handleFeedWS(w http.ResponseWriter, req *http.Request) {
	if r.feed == nil {
		r.notFound(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.feed.Register(feedTopic, client)
	go func() {
		defer func() {
			r.feed.Unregister(feedTopic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// resolve builds a fresh loader bundle scoped to this request and resolves
// relational fields through it. The bundle must not be cached on the
// Router: vote state is viewer-specific.
func (r *Router) resolve(ctx context.Context, posts []domain.Post, viewer *int64) ([]post.View, error) {
	bundle := loader.NewBundle(r.users, r.voteRepo)
	return post.Resolve(ctx, posts, viewer, bundle)
}

func userPayload(u *domain.User) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
