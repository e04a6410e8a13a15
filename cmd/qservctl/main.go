// Command qservctl is the replication control plane's entrypoint: it
// runs the master process (controller + replication loop + health
// monitor + ingest endpoints) or drives one-shot administrative jobs
// against an already-running configuration store.
package main

import (
	"fmt"
	"os"

	"github.com/lsst/qserv-replica/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qservctl",
	Short: "Replication control plane for a sharded Qserv cluster",
	Long: `qservctl runs and administers the replication control plane:
the Configuration Store, the Controller, the Replication Loop, the
Health Monitor and the Ingest Coordination endpoints described by the
control plane's design.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "map:", "configuration store URL (file:<path>, mysql://<dsn>, map:)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(jobCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}
