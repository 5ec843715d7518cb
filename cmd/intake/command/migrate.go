package command

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/interactive-solutions/go-intake/internal/config"
	gopg "github.com/interactive-solutions/go-intake/storage/go-pg"
)

type Migrate struct {
	Logger *logrus.Logger
}

func (cmd Migrate) Command(ctx context.Context, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create the job table",
		Run: func(_ *cobra.Command, _ []string) {
			cmd.main(ctx, cfg)
		},
	}
}

func (cmd Migrate) main(ctx context.Context, cfg *config.Config) {
	if cfg.Database.URL == "" {
		cmd.Logger.WithContext(ctx).Fatal("migrate : DATABASE_URL is required")
		return
	}

	options, err := pg.ParseURL(cfg.Database.URL)
	if err != nil {
		cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "migrate : invalid DATABASE_URL"))
		return
	}

	db := pg.Connect(options)
	defer db.Close()

	if err := gopg.CreateSchema(db); err != nil {
		cmd.Logger.WithContext(ctx).Fatal(errors.Wrap(err, "migrate : failed to create schema"))
		return
	}

	cmd.Logger.Info("job table is ready")
}
