// Package app provides the entry point for the gateway command-line
// application.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcp-gateway/pkg/gateway/composition"
	"github.com/stacklok/mcp-gateway/pkg/gateway/config"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

var rootCmd = &cobra.Command{
	Use:               "gateway",
	DisableAutoGenTag: true,
	Short:             "Virtual Gateway Core - aggregate and route multiple tool-invocation backends",
	Long: `gateway aggregates a set of tool-invocation (MCP-style) backend servers behind
a single routing surface. It discovers each backend's tools, resources, and
prompts, routes calls by capability/path/fallback strategy, tracks per-backend
health with a circuit breaker, and supervises any backend started as a local
child process.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			glog.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		glog.Initialize()
	},
}

// NewRootCmd creates a new root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the desired-state backends file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		glog.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway: load the desired-state file, register and start every
configured backend, and block while the health prober, process monitor, and
config watcher run in the background, until interrupted.`,
		RunE: runServe,
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the desired-state configuration file",
		Long:  "Load the desired-state file and check that every entry has a name and a valid source string, without starting anything. Other field values are not checked.",
		RunE:  runValidate,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			glog.Infof("gateway version: %s", getVersion())
		},
	}
}

func getVersion() string {
	return "dev"
}

func configPath() (string, error) {
	path := viper.GetString("config")
	if path == "" {
		path = os.Getenv("MCP_BACKENDS_CONFIG")
	}
	if path == "" {
		return "", fmt.Errorf("no configuration file specified, use --config flag or MCP_BACKENDS_CONFIG")
	}
	return path, nil
}

func runValidate(_ *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	glog.Infof("validating configuration: %s", path)
	source := config.NewSource(path)
	backends, err := source.Load()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	glog.Infof("configuration is valid: %d backend(s) defined", len(backends))
	for _, b := range backends {
		glog.Infof("  - %s (namespace: %s, priority: %d, auto_start: %t)", b.Name, b.Namespace, b.Priority, b.AutoStart)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, err := configPath()
	if err != nil {
		return err
	}

	source := config.NewSource(path)
	if _, err := source.Load(); err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	env, err := config.LoadEnvOverrides()
	if err != nil {
		return fmt.Errorf("failed to load environment overrides: %w", err)
	}

	gw := composition.New(source, env)
	glog.Infof("gateway running, watching %s", path)
	return gw.Run(ctx)
}
