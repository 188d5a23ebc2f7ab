package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classtrack/internal/attendance"
	"classtrack/internal/config"
	"classtrack/internal/course"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

// Worker consumes marked events and runs the duplicate-record audit.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
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

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for marked events...")
	for msg := range messages {
		if msg.Type != "marked" {
			continue
		}

		id := string(msg.Body)
		if err := svc.AuditDate(ctx, id); err != nil {
			log.Printf("audit failed for event %s: %v", id, err)
			continue
		}
		log.Printf("event %s audited", id)
	}

	log.Println("worker stopped")
}
