package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/identity"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

const dateLayout = "2006-01-02"

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:marks")
	}

	directory := identity.NewPGDirectory(db.Client)
	sessions := session.NewService(session.NewRepository(db.Client), directory, cfg.CodeAttempts)
	records := attendance.NewService(attendance.NewRepository(db.Client), sessions, directory)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	v1 := r.Group("/v1", auth.Middleware(cfg.JWTSigningKey, cfg.JWTIssuer))
	v1.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	lecturer := v1.Group("", auth.RequireRole(auth.RoleLecturer))
	student := v1.Group("", auth.RequireRole(auth.RoleStudent))

	lecturer.POST("/sessions", func(c *gin.Context) {
		var req struct {
			CourseCode  string `json:"course_code" binding:"required"`
			CourseTitle string `json:"course_title" binding:"required"`
			Date        string `json:"date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation_error"})
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "kind": "validation_error"})
			return
		}
		p, _ := auth.FromContext(c)
		sess, err := sessions.Open(c.Request.Context(), p.SchoolID, p.ID, req.CourseCode, req.CourseTitle, date)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SessionsOpened.Inc()
		c.JSON(http.StatusCreated, sess)
	})

	lecturer.GET("/sessions", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		list, err := sessions.ListForLecturer(c.Request.Context(), p.SchoolID, p.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	lecturer.POST("/sessions/:id/close", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		sess, err := sessions.Close(c.Request.Context(), p.SchoolID, p.ID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SessionsClosed.Inc()
		c.JSON(http.StatusOK, gin.H{"message": "session closed", "session": sess})
	})

	lecturer.GET("/sessions/:id/summary", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		sess, err := sessions.Get(c.Request.Context(), p.SchoolID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if sess.LecturerID != p.ID {
			respondError(c, session.ErrNotOwner)
			return
		}
		marks, err := redisClient.Client.Get(c.Request.Context(), store.MarkCountKey(sess.ID)).Int64()
		if err != nil {
			marks = 0 // roll-up missing or redis down; the session itself is authoritative
		}
		c.JSON(http.StatusOK, gin.H{"session": sess, "marks": marks})
	})

	student.GET("/sessions/code/:code", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		sess, err := sessions.Verify(c.Request.Context(), p.SchoolID, c.Param("code"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	student.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			SessionCode string `json:"session_code"`
			SessionID   string `json:"session_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation_error"})
			return
		}
		p, _ := auth.FromContext(c)
		rec, err := records.Mark(c.Request.Context(), p.SchoolID, p.ID, req.SessionCode, req.SessionID)
		if err != nil {
			countRejection(err)
			respondError(c, err)
			return
		}
		metrics.MarksRecorded.Inc()
		if err := q.Publish(c.Request.Context(), queue.MarkMessage{
			SessionID: rec.SessionID,
			SchoolID:  rec.SchoolID,
			RecordID:  rec.ID,
			MarkedAt:  rec.CreatedAt,
		}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusCreated, rec)
	})

	student.GET("/attendance/session/:id/status", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		marked, err := records.Marked(c.Request.Context(), p.SchoolID, p.ID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": marked})
	})

	student.GET("/attendance/me", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		list, err := records.RecordsForStudent(c.Request.Context(), p.SchoolID, p.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": list})
	})

	lecturer.GET("/attendance/records", func(c *gin.Context) {
		var f attendance.Filters
		if v := c.Query("date"); v != "" {
			date, err := time.Parse(dateLayout, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "kind": "validation_error"})
				return
			}
			f.Date = &date
		}
		f.CourseCode = c.Query("course_code")
		p, _ := auth.FromContext(c)
		list, err := records.RecordsForLecturer(c.Request.Context(), p.SchoolID, p.ID, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": list})
	})

	lecturer.DELETE("/attendance/:id", func(c *gin.Context) {
		p, _ := auth.FromContext(c)
		if err := records.Delete(c.Request.Context(), p.SchoolID, p.ID, c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// respondError maps domain errors to stable HTTP kinds so clients can tell
// "already marked" and "session expired" apart from generic failures.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation_error"})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, attendance.ErrNotFound), errors.Is(err, identity.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "not_found"})
	case errors.Is(err, session.ErrNotOwner), errors.Is(err, attendance.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": "authorization_error"})
	case errors.Is(err, session.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "kind": "session_expired"})
	case errors.Is(err, attendance.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "duplicate_attendance"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": "internal"})
	}
}

func countRejection(err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		metrics.MarksRejected.WithLabelValues(metrics.ReasonNotFound).Inc()
	case errors.Is(err, session.ErrExpired):
		metrics.MarksRejected.WithLabelValues(metrics.ReasonExpired).Inc()
	case errors.Is(err, attendance.ErrDuplicate):
		metrics.MarksRejected.WithLabelValues(metrics.ReasonDuplicate).Inc()
	}
}
