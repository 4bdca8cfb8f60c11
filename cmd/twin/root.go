package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/comigor/twin/internal/chat"
	"github.com/comigor/twin/internal/config"
	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
	"github.com/comigor/twin/internal/logger"
	"github.com/comigor/twin/internal/metrics"
	"github.com/comigor/twin/internal/server"
	"github.com/comigor/twin/pkg/tools"
)

const version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	load := func() (*config.Config, error) {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		cfg, err := config.FromViper(v)
		if err != nil {
			return nil, err
		}
		logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	root := &cobra.Command{
		Use:           "twin",
		Short:         "AI digital twin chat API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $CONFIG_PATH)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("port", "", "HTTP listen port")
	bindFlag(v, "log.level", root, "log-level")
	bindFlag(v, "server.port", root, "port")

	root.AddCommand(serveCmd, newHistoryCmd(load))
	return root
}

func newHistoryCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the stored transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := history.ValidateSessionID(args[0]); err != nil {
				return err
			}
			store, err := history.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open conversation store: %w", err)
			}
			defer closeStore(store)

			msgs, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := history.Encode(msgs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

// serve runs the HTTP server until ctx is cancelled or a signal arrives.
func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := history.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	store = history.Instrument(store, m)
	defer closeStore(store)

	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	svc, err := chat.New(store, client, cfg.LLM, chat.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create chat service: %w", err)
	}

	tm := tools.NewToolManager()
	tools.Register(tm, svc)

	e := server.New(svc, cfg.Server,
		server.WithMetrics(m.Handler()),
		server.WithMCP(tm.HTTPHandler("twin", version, "/mcp")),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L.Info("starting server",
			"address", cfg.Server.Addr(),
			"storage", store.Name(),
			"provider", cfg.LLM.Provider,
			"model", cfg.LLM.ModelID,
		)
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.L.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func closeStore(store history.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.L.Error("close conversation store", "error", err)
		}
	}
}
