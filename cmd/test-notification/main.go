// Standalone check for Lark message delivery. Sends one test notification to
// the given user without touching the workflow database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/config"
	"github.com/optalis/request-portal/internal/domain/entity"
	"github.com/optalis/request-portal/internal/notify"
)

func main() {
	userID := flag.String("user", "", "directory user id to notify")
	name := flag.String("name", "Test Recipient", "recipient display name")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: test-notification -user <user-id> [-name <display-name>]")
		os.Exit(2)
	}

	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Notifier.AppID == "" || cfg.Notifier.AppSecret == "" {
		log.Fatal("LARK_APP_ID and LARK_APP_SECRET must be set")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	dispatcher := notify.NewLarkDispatcher(notify.LarkConfig{
		AppID:      cfg.Notifier.AppID,
		AppSecret:  cfg.Notifier.AppSecret,
		APITimeout: cfg.Notifier.APITimeout,
	}, logger)

	trigger := notify.Trigger{
		Intent:     notify.IntentPendingApproval,
		EntityID:   "TEST-0001",
		EntityType: "Claim",
		RoleName:   "Requestor",
		Recipients: []entity.Actor{{ID: *userID, Name: *name}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dispatcher.Dispatch(ctx, trigger); err != nil {
		logger.Fatal("Delivery failed", zap.Error(err))
	}
	logger.Info("Test notification delivered", zap.String("user_id", *userID))
}
