// Command commissaire runs the control-plane process: the management
// HTTP API, the investigator worker, and the cluster-exec pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/commissaire/commissaire/pkg/clusterexec"
	"github.com/commissaire/commissaire/pkg/config"
	"github.com/commissaire/commissaire/pkg/containermgr"
	"github.com/commissaire/commissaire/pkg/httpapi"
	"github.com/commissaire/commissaire/pkg/investigator"
	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/log"
	"github.com/commissaire/commissaire/pkg/metrics"
	"github.com/commissaire/commissaire/pkg/queue"
	"github.com/commissaire/commissaire/pkg/transport"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "commissaire",
	Short:   "commissaire manages fleets of container hosts grouped into clusters",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the management API, investigator, and cluster-exec pool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(configPath)
	},
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := kv.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening kv store: %w", err)
	}
	defer store.Close()

	investigateQueue := queue.New(cfg.InvestigateQueueCapacity)
	sshTransport := transport.NewAnsibleSSHTransport(cfg.SSH.User, cfg.SSH.Port)
	containerMgr := containermgr.NewHTTPContainerManager(newKubernetesCheck(cfg.KubernetesAPI))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := investigator.New(investigateQueue, store, sshTransport, containerMgr, cfg)
	go worker.Run(ctx)

	execPool := clusterexec.NewPool(store, sshTransport, cfg, cfg.ClusterExecPoolSize)
	defer execPool.Stop()

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	server := httpapi.New(store, investigateQueue, execPool)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("shutdown signal received")
		cancel()
		worker.Stop()
		execPool.Stop()
		os.Exit(0)
	}()

	return server.ListenAndServe(cfg.HTTPBindAddr)
}

// newKubernetesCheck builds the default node_registered probe, a plain
// HTTP GET against the configured container manager endpoint.
func newKubernetesCheck(apiBase string) func(ctx context.Context, address string) (bool, error) {
	return func(ctx context.Context, address string) (bool, error) {
		return checkNodeRegistered(ctx, apiBase, address)
	}
}
