package main

import (
	"encoding/json"
	"os"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/controller"
	"github.com/lsst/qserv-replica/pkg/storage"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run a one-shot control-plane job against the configuration store",
}

var jobDeleteWorkerCmd = &cobra.Command{
	Use:   "delete-worker <worker>",
	Short: "Drain and evict a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		permanent, _ := cmd.Flags().GetBool("permanent")
		return withController(cmd, func(ctl *controller.Controller) (interface{}, error) {
			return ctl.DeleteWorker(cmd.Context(), args[0], permanent)
		})
	},
}

var jobPurgeCmd = &cobra.Command{
	Use:   "purge <family>",
	Short: "Purge over-replicated chunks within a family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctl *controller.Controller) (interface{}, error) {
			level, err := ctl.Store.ReplicationLevel(args[0])
			if err != nil {
				return nil, err
			}
			findAll, err := ctl.FindAll(cmd.Context(), args[0], true, false)
			if err != nil {
				return nil, err
			}
			return ctl.Purge(cmd.Context(), args[0], level, findAll)
		})
	},
}

var jobFindAllCmd = &cobra.Command{
	Use:   "find-all <family>",
	Short: "Probe every worker's replicas for a family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctl *controller.Controller) (interface{}, error) {
			return ctl.FindAll(cmd.Context(), args[0], true, false)
		})
	},
}

func init() {
	jobDeleteWorkerCmd.Flags().Bool("permanent", false, "remove the worker's registration entirely once drained")
	jobCmd.AddCommand(jobDeleteWorkerCmd)
	jobCmd.AddCommand(jobPurgeCmd)
	jobCmd.AddCommand(jobFindAllCmd)
}

// withController opens the configuration store and an ephemeral job
// ledger, runs fn against a fresh Controller, prints its result as
// JSON, and cleans up both regardless of outcome.
func withController(cmd *cobra.Command, fn func(ctl *controller.Controller) (interface{}, error)) error {
	configURL, _ := cmd.Flags().GetString("config")
	store, err := config.Open(configURL)
	if err != nil {
		return err
	}
	defer store.Close()

	ledgerDir, err := os.MkdirTemp("", "qservctl-job-ledger-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(ledgerDir)

	ledger, err := storage.NewBoltStore(ledgerDir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctl := controller.New(store, ledger)
	defer ctl.Shutdown()

	result, err := fn(ctl)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
