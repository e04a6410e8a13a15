package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/healthmonitor"
	"github.com/lsst/qserv-replica/pkg/ingest"
	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/lsst/qserv-replica/pkg/manager"
	"github.com/lsst/qserv-replica/pkg/metrics"
	"github.com/lsst/qserv-replica/pkg/replicationloop"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/spf13/cobra"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the controller, replication loop, health monitor and ingest endpoints",
	RunE:  runMaster,
}

func init() {
	masterCmd.Flags().String("ledger-dir", "./qservctl-ledger", "BoltDB directory for the job ledger")
	masterCmd.Flags().String("ingest-addr", ":25080", "HTTP listen address for ingest endpoints")
	masterCmd.Flags().String("metrics-addr", ":25081", "HTTP listen address for /metrics")
	masterCmd.Flags().Bool("purge", false, "enable PurgeJob in the replication loop")
	masterCmd.Flags().Int("num-iterations", 0, "stop the replication loop after this many iterations (0 = run forever)")
	masterCmd.Flags().Bool("permanent-delete-on-evict", false, "permanently remove a worker's registration after an automated eviction")
	masterCmd.Flags().Bool("ha-enabled", false, "replicate configuration mutations across controller replicas through Raft (controller.ha_enabled)")
	masterCmd.Flags().String("ha-node-id", "node-1", "this replica's Raft node id, used when --ha-enabled")
	masterCmd.Flags().String("ha-bind-addr", "127.0.0.1:25090", "Raft transport bind address, used when --ha-enabled")
	masterCmd.Flags().String("ha-data-dir", "./qservctl-raft", "Raft log/snapshot directory, used when --ha-enabled")
	masterCmd.Flags().Bool("ha-bootstrap", true, "bootstrap a new single-node Raft cluster rooted at this replica, used when --ha-enabled")
}

func runMaster(cmd *cobra.Command, args []string) error {
	configURL, _ := cmd.Flags().GetString("config")
	ledgerDir, _ := cmd.Flags().GetString("ledger-dir")
	ingestAddr, _ := cmd.Flags().GetString("ingest-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	purge, _ := cmd.Flags().GetBool("purge")
	numIter, _ := cmd.Flags().GetInt("num-iterations")
	permanentDelete, _ := cmd.Flags().GetBool("permanent-delete-on-evict")
	haEnabled, _ := cmd.Flags().GetBool("ha-enabled")
	haNodeID, _ := cmd.Flags().GetString("ha-node-id")
	haBindAddr, _ := cmd.Flags().GetString("ha-bind-addr")
	haDataDir, _ := cmd.Flags().GetString("ha-data-dir")
	haBootstrap, _ := cmd.Flags().GetBool("ha-bootstrap")

	store, err := config.Open(configURL)
	if err != nil {
		return err
	}
	defer store.Close()

	var mgr *manager.Manager
	if haEnabled {
		mgr, err = manager.NewManager(manager.Config{
			NodeID:   haNodeID,
			BindAddr: haBindAddr,
			DataDir:  haDataDir,
			Store:    store,
		})
		if err != nil {
			return err
		}
		if haBootstrap {
			if err := mgr.Bootstrap(); err != nil {
				return err
			}
		} else if err := mgr.Join(); err != nil {
			return err
		}
		defer mgr.Shutdown()
		if err := mgr.WaitForLeader(10 * time.Second); err != nil {
			return err
		}
		store = manager.NewRaftStore(mgr)
		metrics.RegisterComponent("raft", true, "bootstrapped")
		log.Component("qservctl").Info().Str("node_id", haNodeID).Str("bind_addr", haBindAddr).Msg("configuration mutations are now Raft-replicated")
	}

	ledger, err := storage.NewBoltStore(ledgerDir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctl := controller.New(store, ledger)
	defer ctl.Shutdown()

	loop := replicationloop.New(ctl, nil, purge, numIter)
	monitor := healthmonitor.New(ctl, loop, healthmonitor.NewTCPQservProbe(store), permanentDelete)

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	metrics.RegisterComponent("configuration-store", true, "loaded")
	metrics.RegisterComponent("job-ledger", true, "opened")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestSvc := ingest.NewService(store, ctl)
	ingestSrv := &http.Server{Addr: ingestAddr, Handler: ingest.NewMux(ingestSvc)}
	go func() {
		log.Component("qservctl").Info().Str("addr", ingestAddr).Msg("ingest endpoints listening")
		if err := ingestSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Component("qservctl").Error().Err(err).Msg("ingest server stopped")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.Handle("/health", metrics.HealthHandler())
	metricsMux.Handle("/ready", metrics.ReadyHandler())
	metricsMux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		log.Component("qservctl").Info().Str("addr", metricsAddr).Msg("metrics endpoints listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Component("qservctl").Error().Err(err).Msg("metrics server stopped")
		}
	}()

	go monitor.Run(ctx)
	go loop.Run(ctx)

	<-ctx.Done()
	log.Component("qservctl").Info().Msg("shutting down")
	monitor.Stop()
	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ingestSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}
