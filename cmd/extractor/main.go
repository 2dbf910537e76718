package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/registry"

	// Register the HubSpot resources
	_ "github.com/ajitpratap0/nebula-hubspot/pkg/connector/sources/hubspot"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	viper.SetDefault("data_dir", "/data")
	_ = viper.BindEnv("data_dir", "KBC_DATADIR")

	root := &cobra.Command{
		Use:   "extractor",
		Short: "HubSpot CRM extractor",
		Long: `Extracts HubSpot CRM companies and deals into CSV tables with manifests.
Configuration is read from config.json in the data directory.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("data-dir", "", "Data directory holding config.json, in/ and out/ (env KBC_DATADIR, default /data)")
	_ = viper.BindPFlag("data_dir", root.PersistentFlags().Lookup("data-dir"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("extractor v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List extractable resources",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available resources:")
			for _, name := range registry.ListResources() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the extraction configured in config.json",
		Long: `Run the action configured in config.json. The default action extracts
every configured endpoint; the "rownumber" action runs the row number
transformation instead.

Example:
  KBC_DATADIR=./data extractor run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), viper.GetString("data_dir"), "")
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "rownumber",
		Short: "Copy the input table to the output table adding a row_number column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), viper.GetString("data_dir"), ActionRowNumber)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
