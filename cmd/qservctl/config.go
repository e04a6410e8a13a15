package main

import (
	"fmt"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration store",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Open the configuration store and report any error",
	RunE: func(cmd *cobra.Command, args []string) error {
		configURL, _ := cmd.Flags().GetString("config")
		store, err := config.Open(configURL)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Println("configuration store is valid")
		return nil
	},
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print workers, families and databases from the configuration store",
	RunE: func(cmd *cobra.Command, args []string) error {
		configURL, _ := cmd.Flags().GetString("config")
		store, err := config.Open(configURL)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Println("Workers:")
		for _, w := range store.AllWorkers() {
			fmt.Printf("  %-20s enabled=%-5v readOnly=%-5v svc=%s:%d fs=%s:%d\n",
				w.Name, w.IsEnabled, w.IsReadOnly, w.SvcHost, w.SvcPort, w.FsHost, w.FsPort)
		}

		fmt.Println("Families:")
		for _, name := range store.Families() {
			f, err := store.Family(name)
			if err != nil {
				continue
			}
			fmt.Printf("  %-20s stripes=%d subStripes=%d overlap=%g replicationLevel=%d\n",
				f.Name, f.NumStripes, f.NumSubStripes, f.Overlap, f.ReplicationLevel)
			for _, dbName := range store.Databases(f.Name) {
				db, err := store.Database(dbName)
				if err != nil {
					continue
				}
				fmt.Printf("    %-20s published=%v tables=%d\n", db.Name, db.IsPublished, len(store.Tables(db.Name)))
			}
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configDumpCmd)
}
