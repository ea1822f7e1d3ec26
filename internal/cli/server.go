package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/config"
	"forum-quiz-service/internal/infra/telegram"
	transport "forum-quiz-service/internal/transport/http"
	bot "forum-quiz-service/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand that runs the bot and HTTP server.
func NewStartCmd(configPath *string, port *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot and the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().IntVar(port, "port", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath string, portFlag int) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDispatch(); err != nil {
		return err
	}
	if cfg.QuizLog.Backend == "postgres" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	api, err := rt.botAPI()
	if err != nil {
		return err
	}
	hub := app.NewProgressHub()
	importer := rt.importer(rt.sink(api), app.WithProgress(hub))

	deps := transport.Deps{Topics: rt.catalog, Progress: hub, Logger: logger}
	var chatBot *bot.Bot
	if api != nil {
		chatBot = bot.NewBot(api, rt.catalog, importer, telegram.NewDownloader(api, nil), cfg.Telegram.AllowedUsers, logger)
		defer chatBot.Close()
		if cfg.Telegram.Mode == "webhook" {
			deps.Updates = chatBot
			deps.WebhookSecret = cfg.Telegram.WebhookSecret
			if err := registerWebhook(api, cfg.Telegram); err != nil {
				return err
			}
		} else if _, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
	}

	finalPort := cfg.Server.Port
	if portFlag != 0 {
		finalPort = portFlag
	}
	server := &http.Server{
		Addr:        ":" + strconv.Itoa(finalPort),
		Handler:     transport.NewRouter(deps),
		ReadTimeout: cfg.Server.ReadTimeout,
		// Websocket streams outlive WriteTimeout; the handler sets its own deadlines.
		IdleTimeout: cfg.Server.WriteTimeout * 4,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort, "mode", cfg.Telegram.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if chatBot != nil && cfg.Telegram.Mode == "polling" {
		g.Go(func() error {
			return chatBot.Run(gctx, cfg.Telegram.PollTimeout)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func registerWebhook(api *tgbotapi.BotAPI, cfg config.TelegramConfig) error {
	if cfg.WebhookURL == "" {
		return nil
	}
	params := tgbotapi.Params{"url": cfg.WebhookURL}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return err
	}
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
