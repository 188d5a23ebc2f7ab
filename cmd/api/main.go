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

	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/capture"
	"classtrack/internal/config"
	"classtrack/internal/course"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/marking"
	"classtrack/internal/queue"
	"classtrack/internal/schedule"
	"classtrack/internal/sessiontoken"
	"classtrack/internal/store"
)

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

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:marked")
	}

	courses := course.NewRepository(db.Client)
	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(courses, repo, redisClient, q)
	faces := capture.New(cfg.FaceServiceURL, cfg.FaceSkip)
	verifier := sessiontoken.Verifier{Key: cfg.SessionTokenKey, Issuer: cfg.JWTIssuer, Location: time.Local}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

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

	r.POST("/v1/register", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertUser(c.Request.Context(), req.UserID, req.Role); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.UserID, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.UserID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	anyRole := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer))
	students := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))
	teachers := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleTeacher))

	anyRole.GET("/courses", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var (
			list []course.Course
			err  error
		)
		if claims.Role == auth.RoleTeacher {
			list, err = courses.ListForTeacher(c.Request.Context(), claims.Subject)
		} else {
			list, err = courses.ListForStudent(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": list})
	})

	students.GET("/courses/:id/attendance", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		now := time.Now()
		if v := c.Query("now"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "now must be RFC3339"})
				return
			}
			now = parsed.In(time.Local)
		}

		sessions, err := svc.Timeline(c.Request.Context(), c.Param("id"), claims.Subject, now)
		switch {
		case errors.Is(err, attendance.ErrCourseNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrNotEnrolled):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"sessions": sessions})
		}
	})

	teachers.POST("/courses/:id/sessions/token", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Date  string `json:"date"`  // YYYY-MM-DD, defaults to today
			Start string `json:"start"` // HH:MM, picks between same-day slots
		}
		_ = c.ShouldBindJSON(&req)

		crs, err := courses.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if crs == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		if crs.TeacherID != claims.Subject {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your course"})
			return
		}

		date := schedule.DateOnly(time.Now())
		if req.Date != "" {
			parsed, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = parsed
		}

		inst, ok := sessionFor(crs, date, req.Start)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no session scheduled for that date"})
			return
		}

		token, err := sessiontoken.Issue(crs.ID, inst, cfg.JWTIssuer, cfg.SessionTokenKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session_token": token,
			"date":          inst.Date.Format("2006-01-02"),
			"start_time":    inst.Start.String(),
			"end_time":      inst.End.String(),
		})
	})

	students.PUT("/attendance/mark/:token", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		now := time.Now()

		var req struct {
			FaceImage string `json:"face_image"`
		}
		_ = c.ShouldBindJSON(&req)

		if req.FaceImage != "" {
			result, err := faces.Verify(c.Request.Context(), claims.Subject, req.FaceImage)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "face verification unavailable"})
				return
			}
			if !result.Matched {
				c.JSON(http.StatusForbidden, gin.H{"error": "face did not match"})
				return
			}
		}

		// One machine per attempt; the cross-request fence is the Redis
		// guard inside Redeem.
		coord := marking.NewCoordinator(verifier, marking.RedeemFunc(
			func(ctx context.Context, sess marking.Session, _ string) error {
				_, err := svc.Redeem(ctx, claims.Subject, sess, now)
				return err
			}))

		att := coord.Mark(c.Request.Context(), c.Param("token"), now)
		if att.State == marking.StateResolved {
			c.JSON(http.StatusOK, gin.H{
				"state":  att.State,
				"course": att.Session.CourseID,
				"date":   att.Session.Date.Format("2006-01-02"),
			})
			return
		}

		reason := att.Reason
		switch {
		case errors.Is(reason, marking.ErrOutOfWindow):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"state": att.State, "error": "session is not currently markable"})
		case errors.Is(reason, attendance.ErrAlreadyMarked):
			c.JSON(http.StatusConflict, gin.H{"state": att.State, "error": "already marked"})
		case errors.Is(reason, attendance.ErrNotEnrolled):
			c.JSON(http.StatusForbidden, gin.H{"state": att.State, "error": "not enrolled"})
		case errors.Is(reason, marking.ErrEmptyToken), errors.Is(reason, marking.ErrBadToken):
			c.JSON(http.StatusBadRequest, gin.H{"state": att.State, "error": "invalid session token"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"state": att.State, "error": "marking failed, try again"})
		}
	})

	teachers.GET("/events", func(c *gin.Context) {
		events, err := repo.ListEvents(c.Request.Context(), c.Query("course_id"), c.Query("user_id"), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// sessionFor locates the session occurrence on date, honoring an optional
// HH:MM start to pick between same-day slots.
func sessionFor(crs *course.Course, date time.Time, start string) (schedule.SessionInstance, bool) {
	semStart := schedule.DateOnly(crs.SemesterStart)
	semEnd := semStart.AddDate(0, crs.Months, 0)
	if date.Before(semStart) || date.After(semEnd) {
		return schedule.SessionInstance{}, false
	}
	for _, slot := range crs.Slots {
		if slot.Day != date.Weekday() || !slot.Valid() {
			continue
		}
		if start != "" && slot.Start.String() != start {
			continue
		}
		return schedule.SessionInstance{Date: date, Day: slot.Day, Start: slot.Start, End: slot.End}, true
	}
	return schedule.SessionInstance{}, false
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
