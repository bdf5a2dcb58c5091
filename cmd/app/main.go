package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heimdall/internal/application"
	"heimdall/internal/delivery/discord"
	"heimdall/internal/delivery/web"
	"heimdall/internal/keycloak"
	"heimdall/internal/repository"
	"heimdall/pkg/config"
	"heimdall/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Config{}
	if err := config.ReadEnvConfig(&cfg); err != nil {
		panic(err)
	}

	log := logger.NewLogger(&logger.Config{Level: cfg.LogLevel})

	rdb, err := repository.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis: %s", err.Error())
		return
	}
	defer rdb.Close()

	repos := repository.NewRepository(rdb)

	kc := keycloak.NewClient(&cfg.Keycloak)

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Error("failed to create discord session: %s", err.Error())
		return
	}

	services := application.NewService(repos, kc, discord.NewRoleClient(session), log, cfg.Web.PublicURL)

	bot := discord.NewBot(session, services, log)
	server := web.NewServer(&cfg.Web, services, bot, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.Init(); err != nil {
		log.Error("failed to init bot: %s", err.Error())
		return
	}

	go func() {
		if err := bot.Run(ctx); err != nil {
			log.Error("bot run error: %s", err.Error())
		}
	}()

	go func() {
		if err := server.Run(); err != nil {
			log.Error("callback server error: %s", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("callback server shutdown error: %s", err.Error())
	}

	bot.Stop()
	log.Info("Bot stopped")
}
