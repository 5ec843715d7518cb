package command

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-pg/pg"
	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/interactive-solutions/go-intake"
	"github.com/interactive-solutions/go-intake/internal/config"
	awsProvider "github.com/interactive-solutions/go-intake/provider/aws"
	mailgunProvider "github.com/interactive-solutions/go-intake/provider/mailgun"
	"github.com/interactive-solutions/go-intake/provider/webhook"
	gopg "github.com/interactive-solutions/go-intake/storage/go-pg"
	goredis "github.com/interactive-solutions/go-intake/storage/go-redis"
)

const shutdownTimeout = 30 * time.Second

type Serve struct {
	Logger *logrus.Logger
}

func (cmd Serve) Command(ctx context.Context, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the intake http server",
		Run: func(_ *cobra.Command, _ []string) {
			cmd.main(ctx, cfg)
		},
	}
}

func (cmd Serve) main(ctx context.Context, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		cmd.Logger.WithContext(ctx).Fatal(err)
		return
	}

	relay := webhook.New(map[intake.JobKind]string{
		intake.JobCallback: cfg.Webhook.CallbackURL,
		intake.JobProject:  cfg.Webhook.ProjectURL,
	}, webhook.SetTimeout(cfg.Relay.Timeout), webhook.SetLogger(cmd.Logger))

	queueOptions := []intake.QueueOption{
		intake.SetAttempts(cfg.Relay.Attempts),
		intake.SetBackoff(cfg.Relay.Backoff),
	}

	notifier, err := cmd.notifier(cfg)
	if err != nil {
		cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "serve : failed to create notifier"))
		return
	}

	if notifier != nil {
		queueOptions = append(queueOptions, intake.SetNotifier(notifier))
	}

	options := []intake.AppOption{
		intake.SetLogger(cmd.Logger),
		intake.SetRelay(relay),
		intake.SetQueueOptions(queueOptions...),
		intake.SetTrustProxy(cfg.HTTP.TrustProxy),
		intake.SetAllowedOrigins(cfg.HTTP.Origins),
	}

	if cfg.Database.URL != "" {
		dbOptions, err := pg.ParseURL(cfg.Database.URL)
		if err != nil {
			cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "serve : invalid DATABASE_URL"))
			return
		}

		db := pg.Connect(dbOptions)
		defer db.Close()

		options = append(options, intake.SetJobRepo(gopg.NewJobRepository(db)))
	}

	if cfg.Redis.URL != "" {
		redisOptions, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "serve : invalid REDIS_URL"))
			return
		}

		client := redis.NewClient(redisOptions)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "serve : failed to connect to redis"))
			return
		}

		for _, kind := range []intake.JobKind{intake.JobCallback, intake.JobProject} {
			limiter := goredis.NewRateLimiter(client, "intake:ratelimit:"+string(kind)+":", cfg.Limit.Max, cfg.Limit.Window)
			options = append(options, intake.SetRateLimiter(kind, limiter))
		}
	} else {
		for _, kind := range []intake.JobKind{intake.JobCallback, intake.JobProject} {
			limiter := intake.NewMemoryRateLimiter(cfg.Limit.Max, cfg.Limit.Window)
			options = append(options, intake.SetRateLimiter(kind, limiter))
		}
	}

	app, err := intake.NewApplication(options...)
	if err != nil {
		cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "serve : failed to create application"))
		return
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           app.HttpHandler().Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		cmd.Logger.WithField("addr", server.Addr).Info("intake server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			cmd.Logger.WithContext(ctx).Error(errors.Wrap(err, "serve : http server stopped"))
		}
	case <-ctx.Done():
		cmd.Logger.Info("shutting down intake server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		cmd.Logger.Error(errors.Wrap(err, "serve : failed to shut down http server"))
	}

	if err := app.Shutdown(shutdownCtx); err != nil {
		cmd.Logger.Error(errors.Wrap(err, "serve : failed to drain delivery queue"))
	}

	cmd.Logger.Info("intake server stopped")
}

func (cmd Serve) notifier(cfg *config.Config) (intake.Notifier, error) {
	switch cfg.Notify.Provider {
	case "ses":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Notify.AwsRegion)})
		if err != nil {
			return nil, err
		}

		return awsProvider.NewSesNotifier(sess, cfg.Notify.From, cfg.Notify.To), nil

	case "mailgun":
		mg := mailgun.NewMailgun(cfg.Notify.MailgunDomain, cfg.Notify.MailgunApiKey)

		return mailgunProvider.NewMailgunNotifier(mg, cfg.Notify.To, mailgunProvider.SetFrom(cfg.Notify.From))
	}

	return nil, nil
}
