package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/audit"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes attendance events and appends audit log rows.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	}

	records := attendance.NewRepository(db.Client)
	auditLog := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != queue.TypeAttendanceMarked {
			continue
		}

		id := string(msg.Body)
		rec, err := records.Get(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn("record vanished before audit", zap.String("record_id", id))
			continue
		}
		if err != nil {
			logger.Error("fetch record failed", zap.String("record_id", id), zap.Error(err))
			continue
		}

		entry := audit.Entry{
			Event:     queue.TypeAttendanceMarked,
			RecordID:  rec.ID.String(),
			SessionID: rec.SessionID.String(),
			StudentID: rec.StudentID.String(),
			Detail:    rec.Payload,
		}
		if err := auditLog.Append(ctx, entry); err != nil {
			logger.Error("audit append failed", zap.String("record_id", id), zap.Error(err))
			continue
		}
		logger.Info("attendance audited",
			zap.String("record_id", rec.ID.String()),
			zap.String("session_id", rec.SessionID.String()))
	}

	logger.Info("worker stopped")
}
