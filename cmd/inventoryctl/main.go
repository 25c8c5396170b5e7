package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/backend"
	"github.com/alfianlosari/arinventory/internal/items"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/env"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

// session holds the services one command invocation works with.
type session struct {
	logg     *logger.Logger
	repo     *items.Repository
	pipeline *assets.Pipeline
	cache    *assets.Cache
	renderer *assets.RenderableLoader
	close    func() error
}

type opener func(ctx context.Context) (*session, error)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openFromEnv).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openFromEnv bootstraps the configured backends. Logs go to stderr so
// command output stays parseable.
func openFromEnv(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "inventoryctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      env.Get("LOG_FORMAT", "console"),
		Output:      os.Stderr,
	})
	stores, err := backend.New(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	services, err := stores.Services(cfg.Assets, logg, nil)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	return &session{
		logg:     logg,
		repo:     services.Repository,
		pipeline: services.Pipeline,
		cache:    services.Cache,
		renderer: services.Renderer,
		close:    stores.Close,
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var sess *session

	root := &cobra.Command{
		Use:          "inventoryctl",
		Short:        "Manage AR inventory items and their 3D models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			sess = s
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if sess == nil || sess.close == nil {
				return nil
			}
			return sess.close()
		},
	}

	get := func() *session { return sess }
	root.AddCommand(
		newListCmd(get),
		newWatchCmd(get),
		newGetCmd(get),
		newAddCmd(get),
		newEditCmd(get),
		newRemoveCmd(get),
		newUploadCmd(get),
		newRemoveModelCmd(get),
		newFetchCmd(get),
		newViewCmd(get),
	)
	return root
}
