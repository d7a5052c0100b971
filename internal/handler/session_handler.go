package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// activeSessionTTL outlives one ping period; every ping refreshes it.
const activeSessionTTL = 2 * ws.PongWait

// releaseScript deletes the active-session marker only if this connection owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionHandler serves proctored exam sessions over WebSocket.
type SessionHandler struct {
	launcher *session.Launcher
	monitor  MonitorPublisher
	queue    ResultQueue
	rdb      *redis.Client
	cfg      *config.Config
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active map[*websocket.Conn]struct{}
	wg     sync.WaitGroup
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(launcher *session.Launcher, monitor MonitorPublisher, queue ResultQueue, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		launcher: launcher,
		monitor:  monitor,
		queue:    queue,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "session_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
		active:   make(map[*websocket.Conn]struct{}),
	}
}

// Shutdown closes every live session connection and waits for the sessions
// to submit and release their resources, or for ctx to end.
func (h *SessionHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for conn := range h.active {
		_ = ws.WriteClose(conn, websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SessionHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.active[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *SessionHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.active, conn)
	h.mu.Unlock()
}

// Stream godoc
// WS /ws/v1/student/exams/:exam_id/session
// Opens the exam session and upgrades to WebSocket. Eligibility failures are
// returned as plain HTTP errors before the upgrade.
func (h *SessionHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctx := c.Request.Context()
	lockKey := config.CacheKey.ActiveSessionKey(examID.String(), claims.UserID)
	owner := uuid.NewString()

	claimed, err := h.claim(ctx, lockKey, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Active session claim failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if !claimed {
		response.Fail(c, http.StatusConflict, response.ErrSessionInProgress)
		return
	}
	defer h.release(lockKey, owner)

	h.wg.Add(1)
	defer h.wg.Done()

	sc := newSessionConn(h.cfg, claims.User(), examID, h.monitor, h.log)
	sc.queue = h.queue
	ctrl, err := h.launcher.Open(ctx, examID, sc.runtime())
	if err != nil {
		status, code := sessionErrStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Open session failed")
		}
		response.Fail(c, status, code)
		return
	}
	sc.attach(ctrl)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		_ = ctrl.Close()
		return
	}
	defer conn.Close()

	h.track(conn)
	defer h.untrack(conn)

	sc.serve(conn, func() { h.refresh(lockKey) })
}

// claim marks the user as having a live session for the exam. Without Redis
// every claim succeeds.
func (h *SessionHandler) claim(ctx context.Context, key, owner string) (bool, error) {
	if h.rdb == nil {
		return true, nil
	}
	return h.rdb.SetNX(ctx, key, owner, activeSessionTTL).Result()
}

func (h *SessionHandler) refresh(key string) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.rdb.Expire(ctx, key, activeSessionTTL).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Active session refresh failed")
	}
}

func (h *SessionHandler) release(key, owner string) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, h.rdb, []string{key}, owner).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Active session release failed")
	}
}
