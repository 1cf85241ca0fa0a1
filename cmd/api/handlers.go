package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/live"
	"rollcall/internal/qr"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/user"
)

type server struct {
	cfg      config.App
	log      *zap.Logger
	users    *user.Service
	userRepo *user.Repository
	sessions *session.Service
	recorder *attendance.Recorder
	queue    queue.Queue
	hub      *live.Hub
	redis    *store.Redis
	db       *store.DB
}

var upgrader = websocket.Upgrader{
	// Auth happens via the bearer middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *server) router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := s.redis.Healthy(c.Request.Context())
		dbHealthy := s.db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", s.login)
	r.POST("/v1/auth/refresh", s.refresh)

	authed := r.Group("/v1", auth.Bearer(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))

	admin := authed.Group("/admin", auth.Require(user.Role.CanManageUsers))
	admin.GET("/stats", s.adminStats)
	admin.GET("/users", s.adminListUsers)
	admin.POST("/users", s.adminCreateUser)

	teacher := authed.Group("/teacher", auth.Require(user.Role.CanRunSessions))
	teacher.POST("/sessions", s.createSession)
	teacher.GET("/sessions", s.listSessions)
	teacher.GET("/sessions/:id", s.sessionDetail)
	teacher.POST("/sessions/:id/close", s.closeSession)
	teacher.GET("/sessions/:id/qr", s.sessionQR)
	teacher.GET("/sessions/:id/live", s.sessionLive)

	student := authed.Group("/student", auth.Require(user.Role.CanMarkAttendance))
	student.POST("/scan", s.scan)
	student.GET("/records", s.studentRecords)
	student.GET("/badge", s.studentBadge)

	return r
}

func (s *server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := s.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	tokens, err := auth.Issue(u.ID.String(), u.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = s.userRepo.SaveRefreshToken(c.Request.Context(), u.ID.String(), tokens.RefreshToken, tokens.RefreshExp)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          u.Role,
		"name":          u.Name,
	})
}

func (s *server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, s.cfg.JWTSigningKey, s.cfg.JWTIssuer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	usable, err := s.userRepo.RefreshTokenUsable(c.Request.Context(), req.RefreshToken)
	if err != nil || !usable {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
		return
	}

	// rotate: revoke the old token before issuing a new pair
	_ = s.userRepo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)

	tokens, err := auth.Issue(claims.Subject, claims.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = s.userRepo.SaveRefreshToken(c.Request.Context(), claims.Subject, tokens.RefreshToken, tokens.RefreshExp)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (s *server) adminStats(c *gin.Context) {
	ctx := c.Request.Context()
	total, err := s.userRepo.CountByRole(ctx, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	teachers, _ := s.userRepo.CountByRole(ctx, user.RoleTeacher)
	students, _ := s.userRepo.CountByRole(ctx, user.RoleStudent)
	recStats, err := s.recorder.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":      total,
		"total_teachers":   teachers,
		"total_students":   students,
		"total_attendance": recStats.TotalRecords,
		"today_attendance": recStats.TodayRecords,
	})
}

func (s *server) adminListUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *server) adminCreateUser(c *gin.Context) {
	var req struct {
		Username string    `json:"username" binding:"required"`
		Email    string    `json:"email" binding:"required"`
		Name     string    `json:"name" binding:"required"`
		Password string    `json:"password" binding:"required"`
		Role     user.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := s.users.Create(c.Request.Context(), req.Username, req.Email, req.Name, req.Password, req.Role)
	switch {
	case errors.Is(err, user.ErrUsernameTaken), errors.Is(err, user.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, user.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, u)
	}
}

func (s *server) createSession(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Duration string `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		var err error
		duration, err = time.ParseDuration(req.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
	}

	claims, _ := auth.FromContext(c)
	teacherID, err := uuid.Parse(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), teacherID, req.Name, duration)
	if errors.Is(err, session.ErrTokenRetryExhausted) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not allocate a session token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sess, "payload": qr.TokenPayload(sess.Token)})
}

func (s *server) listSessions(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	sessions, err := s.sessions.ListByTeacher(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ownedSession loads the path session and verifies the caller owns it.
func (s *server) ownedSession(c *gin.Context) (session.Session, bool) {
	claims, _ := auth.FromContext(c)
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return session.Session{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return session.Session{}, false
	}
	if sess.TeacherID.String() != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
		return session.Session{}, false
	}
	return sess, true
}

func (s *server) sessionDetail(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	records, err := s.recorder.ListBySession(c.Request.Context(), sess.ID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"valid":   sess.ValidAt(time.Now()),
		"records": records,
	})
}

func (s *server) closeSession(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if err := s.sessions.Close(c.Request.Context(), sess.ID.String()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (s *server) sessionQR(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			size = parsed
		}
	}
	png, err := qr.PNG(qr.TokenPayload(sess.Token), size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *server) sessionLive(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(sess.ID.String())
	defer cancel()

	// reader goroutine detects client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *server) scan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	studentID, err := uuid.Parse(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return
	}

	record, sess, err := s.recorder.Mark(c.Request.Context(), studentID, req.Payload)
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid or expired session token"})
		return
	case errors.Is(err, attendance.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "session has expired"})
		return
	case errors.Is(err, attendance.ErrDuplicateAttendance):
		c.JSON(http.StatusConflict, gin.H{"error": "already marked attendance for this session"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "marking failed"})
		return
	}

	if err := s.queue.Publish(c.Request.Context(), queue.Message{
		Type: queue.TypeAttendanceMarked,
		Body: []byte(record.ID.String()),
	}); err != nil {
		s.log.Warn("queue publish failed", zap.Error(err))
	}

	studentName := claims.Subject
	if u, err := s.users.Get(c.Request.Context(), claims.Subject); err == nil {
		studentName = u.Name
	}
	s.hub.Publish(live.Event{
		SessionID: sess.ID.String(),
		StudentID: record.StudentID.String(),
		Student:   studentName,
		ScannedAt: record.ScannedAt,
	})

	c.JSON(http.StatusCreated, gin.H{
		"record":       record,
		"session_name": sess.Name,
		"message":      "Attendance marked for " + sess.Name,
	})
}

func (s *server) studentRecords(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	records, err := s.recorder.ListByStudent(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *server) studentBadge(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	u, err := s.users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	png, err := qr.PNG(qr.BadgePayload(u.Username, u.Name), 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
