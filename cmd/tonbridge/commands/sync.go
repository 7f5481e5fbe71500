package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/config"
	"github.com/tonred/ton-trustless-bridge/libs/log"
	"github.com/tonred/ton-trustless-bridge/light"
)

// MakeSyncCommand returns the command preparing the new_key_block messages
// that bring the light client to the newest key block.
func MakeSyncCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [target-seqno]",
		Short: "Prepare the key block updates up to the target (newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target uint32
			if len(args) == 1 {
				if _, err := fmt.Sscan(args[0], &target); err != nil {
					return fmt.Errorf("target seqno: %w", err)
				}
			}
			outDir, _ := cmd.Flags().GetString(outFlag)
			if outDir == "" {
				return errors.New("--out is required")
			}
			interval, _ := cmd.Flags().GetDuration("interval")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
			defer signal.Stop(c)
			go func() {
				select {
				case <-c:
					cancel()
				case <-ctx.Done():
				}
			}()

			metrics := light.NopMetrics()
			if conf.Instrumentation.Prometheus {
				metrics = light.PrometheusMetrics(conf.Instrumentation.Namespace, "network", conf.Light.Network)
				srv := startPrometheusServer(conf.Instrumentation.PrometheusListenAddr, logger)
				defer func() {
					if err := srv.Shutdown(context.Background()); err != nil {
						logger.Error("Prometheus HTTP server Shutdown", "err", err)
					}
				}()
			}

			client, closeStore, err := newClient(ctx, cmd, conf, logger, light.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer closeStore()

			for {
				if err := syncOnce(ctx, client, target, outDir, logger); err != nil {
					return err
				}
				if interval <= 0 {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String(outFlag, "", "directory to write new_key_block_<seqno>.boc messages to")
	cmd.Flags().Duration("interval", 0, "repeat the sync with this interval until interrupted")
	return cmd
}

func syncOnce(ctx context.Context, client *light.Client, target uint32, outDir string, logger log.Logger) error {
	updates, err := client.Sync(ctx, target)
	// updates accepted before a failure are still written
	for _, upd := range updates {
		path := filepath.Join(outDir, fmt.Sprintf("new_key_block_%d.boc", upd.Seqno))
		if werr := writeCell(nil, path, upd.Body); werr != nil {
			return werr
		}
		logger.Info("Wrote key block update", "seqno", upd.Seqno, "path", path)
	}
	return err
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on addr.
func startPrometheusServer(addr string, logger log.Logger) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}
