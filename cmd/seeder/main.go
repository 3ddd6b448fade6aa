package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/config"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository"
	"github.com/quocanhngo/talkcore/internal/service"
	"github.com/quocanhngo/talkcore/migrations"
	"github.com/quocanhngo/talkcore/pkg/auth"
	"github.com/quocanhngo/talkcore/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type discardNotifier struct{}

func (discardNotifier) Enqueue(uuid.UUID, model.Notification) bool { return true }

func main() {
	users := flag.Int("users", 5, "number of demo users")
	reset := flag.Bool("reset", false, "drop and recreate the messaging tables first")
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log, *users, *reset); err != nil {
		log.Fatal("seeding failed", zap.Error(err))
	}
	log.Info("seeding completed")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, n int, reset bool) error {
	if n < 2 {
		return fmt.Errorf("need at least 2 users, got %d", n)
	}
	if reset {
		if err := migrations.Rollback(cfg.DB.URL(), log); err != nil {
			return err
		}
	}
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	ids := make([]uuid.UUID, 0, n)
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("user%d@talkcore.local", i)
		u := &model.User{
			ID:                    uuid.New(),
			Name:                  fmt.Sprintf("User %d", i),
			Email:                 email,
			Avatar:                fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=user%d", i),
			IsNotificationEnabled: true,
		}
		if err := userRepo.Upsert(ctx, u); err != nil {
			return fmt.Errorf("upsert %s: %w", email, err)
		}
		stored, err := userRepo.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		ids = append(ids, stored.ID)

		token, err := jwtManager.GenerateToken(stored.ID, stored.Email, stored.Name)
		if err != nil {
			return err
		}
		log.Info("user", zap.String("email", email), zap.Stringer("id", stored.ID), zap.String("token", token))
	}

	chat := service.NewChatService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		service.NewUserDirectory(userRepo, nil, log),
		discardNotifier{},
		log,
		nil,
	)

	direct, err := chat.CreateDirectConversation(ctx, ids[0], ids[1])
	switch {
	case err == nil:
		if _, err := chat.SendMessage(ctx, direct.ID, ids[0], model.SendMessageRequest{Content: "Hey there 👋"}); err != nil {
			return err
		}
	case apperr.KindOf(err) == apperr.KindAlreadyExists:
		log.Info("direct conversation already seeded", zap.Stringer("conversation_id", direct.ID))
	default:
		return err
	}

	group, err := chat.CreateGroupConversation(ctx, ids[0], fmt.Sprintf("Demo group %s", time.Now().Format("2006-01-02")), ids[1:])
	if err != nil {
		return err
	}
	for _, id := range ids[1:] {
		if _, err := chat.SendMessage(ctx, group.ID, id, model.SendMessageRequest{Content: "Hello everyone!"}); err != nil {
			return err
		}
	}
	log.Info("conversations seeded",
		zap.Stringer("direct_id", direct.ID),
		zap.Stringer("group_id", group.ID))
	return nil
}
