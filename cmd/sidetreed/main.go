// Command sidetreed runs a Sidetree-style Layer-2 identity node: the
// batching/anchoring Rooter, the ledger Observer, and the DID state
// Projection, fronted by an HTTP submission and resolution surface.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidetree-node/anchornode/internal/api"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/ledger"
	"github.com/sidetree-node/anchornode/internal/observer"
	"github.com/sidetree-node/anchornode/internal/projection"
	"github.com/sidetree-node/anchornode/internal/protocol"
	"github.com/sidetree-node/anchornode/internal/rooter"
	"github.com/sidetree-node/anchornode/pkg/config"
)

func main() {
	if zapLogger, err := zap.NewProduction(); err == nil {
		zap.ReplaceGlobals(zapLogger)
		defer zapLogger.Sync()
	}

	rootCmd := &cobra.Command{Use: "sidetreed"}
	rootCmd.PersistentFlags().String("env", "", "environment name to merge into the default config")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rooterCmd())
	rootCmd.AddCommand(resolveCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logger.SetOutput(f)
		}
	}
	return logger
}

func loadConfig(cmd *cobra.Command) *config.Config {
	env, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func buildStore(cfg *config.Config, logger *logrus.Logger) (cas.Store, error) {
	if cfg.CAS.GatewayURL == "" {
		return cas.NewMemoryStore(), nil
	}
	return cas.NewGatewayStore(cas.Config{
		GatewayURL:     cfg.CAS.GatewayURL,
		GatewayTimeout: time.Duration(cfg.CAS.GatewayTimeoutSecs) * time.Second,
		CacheEntries:   cfg.CAS.CacheEntries,
	}, logger)
}

func buildLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.RPCURL == "" {
		return ledger.NewMemoryLedger(), nil
	}
	return ledger.NewEthereumLedger(ctx, ledger.EthereumConfig{
		RPCURL:        cfg.Ledger.RPCURL,
		AnchorAddress: cfg.Ledger.AnchorAddress,
		PrivateKeyHex: cfg.Ledger.PrivateKeyHex,
		ChainID:       cfg.Ledger.ChainID,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP surface alongside the periodic rooter and observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := buildStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("build store: %w", err)
			}
			led, err := buildLedger(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build ledger: %w", err)
			}

			protoTable := protocol.Default()
			r := rooter.New(store, led, protoTable, logger)
			proj := projection.New(store, protoTable, cfg.Projection.DIDMethodName)

			obs, ok := led.(ledger.Observable)
			if !ok {
				return fmt.Errorf("ledger does not support observation")
			}
			o := observer.New(obs, store, proj, logger)

			r.StartPeriodicRooting(ctx, time.Duration(cfg.Rooter.BatchIntervalSeconds)*time.Second)
			go o.Run(ctx, time.Duration(cfg.Rooter.BatchIntervalSeconds)*time.Second)

			srv := api.NewServer(r, proj, logger)
			httpServer := &http.Server{
				Addr:    cfg.HTTP.ListenAddr,
				Handler: srv.Router(),
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logger.WithField("addr", cfg.HTTP.ListenAddr).Info("sidetreed listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func rooterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooter",
		Short: "run only the batching and anchoring pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := buildStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("build store: %w", err)
			}
			led, err := buildLedger(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build ledger: %w", err)
			}

			r := rooter.New(store, led, protocol.Default(), logger)
			r.StartPeriodicRooting(ctx, time.Duration(cfg.Rooter.BatchIntervalSeconds)*time.Second)
			<-ctx.Done()
			r.Stop()
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [did]",
		Short: "resolve a DID against a running node's HTTP surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("address")
			url := fmt.Sprintf("%s/identifiers/%s", addr, args[0])
			resp, err := http.Get(url)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			defer resp.Body.Close()
			buf, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			fmt.Println(string(buf))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("resolve failed: status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().String("address", "http://127.0.0.1:8080", "base URL of the running node's HTTP surface")
	return cmd
}
