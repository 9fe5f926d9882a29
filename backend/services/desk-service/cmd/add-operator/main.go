// Command add-operator creates a desk operator account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"cyberdesk/backend/libs/logging"
	"cyberdesk/backend/services/desk-service/internal/app"
	"cyberdesk/backend/services/desk-service/internal/config"
	"cyberdesk/backend/services/desk-service/internal/password"
	"cyberdesk/backend/services/desk-service/internal/repository"
	"cyberdesk/backend/services/desk-service/internal/service"
)

func main() {
	username := flag.String("username", "", "operator username")
	plain := flag.String("password", os.Getenv("OPERATOR_PASSWORD"), "operator password (or OPERATOR_PASSWORD)")
	flag.Parse()

	if *username == "" || *plain == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*username, *plain); err != nil {
		fmt.Fprintln(os.Stderr, "add-operator:", err)
		os.Exit(1)
	}
}

func run(username, plain string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sqlDB, err := app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	auth := service.NewAuthService(
		repository.NewOperatorRepository(sqlDB),
		password.NewBcryptHasher(0),
		service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration()),
		logger,
	)
	op, err := auth.CreateOperator(ctx, username, plain)
	if err != nil {
		return err
	}
	logger.Info("operator created", zap.Int64("id", op.ID), zap.String("username", op.Username))
	return nil
}
