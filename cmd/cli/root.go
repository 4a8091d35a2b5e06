package cli

import (
	"context"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/storacha/queuectl/cmd/cli/config"
	"github.com/storacha/queuectl/cmd/cli/dlq"
	"github.com/storacha/queuectl/cmd/cli/enqueue"
	"github.com/storacha/queuectl/cmd/cli/history"
	"github.com/storacha/queuectl/cmd/cli/initialize"
	"github.com/storacha/queuectl/cmd/cli/list"
	"github.com/storacha/queuectl/cmd/cli/status"
	"github.com/storacha/queuectl/cmd/cli/worker"
	"github.com/storacha/queuectl/pkg/build"
	"github.com/storacha/queuectl/pkg/config"
	"github.com/storacha/queuectl/pkg/telemetry"
)

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var log = logging.Logger("cmd")

const queuectlShortDescription = `
queuectl is a persistent background job queue for shell commands
`

const queuectlLongDescription = `
queuectl - persistent background job queue
Jobs live in a SQLite database shared by every queuectl process: enqueuing,
working, and inspecting the queue are independent processes coordinating
through the store. Workers execute shell commands with exponential backoff
retries and park exhausted jobs in a dead letter queue.
`

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "queuectl",
		Short: queuectlShortDescription,
		Long:  queuectlLongDescription,
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig, initTelemetry)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.PersistentFlags().String("db", "queue.db", "Path of the queue database")
	cobra.CheckErr(viper.BindPFlag(string(config.DBPath), rootCmd.PersistentFlags().Lookup("db")))

	rootCmd.PersistentFlags().String("registry-dir", "", "Directory holding one PID file per running worker")
	cobra.CheckErr(viper.BindPFlag(string(config.RegistryDir), rootCmd.PersistentFlags().Lookup("registry-dir")))

	// register all commands and their subcommands
	rootCmd.AddCommand(initialize.Cmd)
	rootCmd.AddCommand(enqueue.Cmd)
	rootCmd.AddCommand(worker.Cmd)
	rootCmd.AddCommand(status.Cmd)
	rootCmd.AddCommand(list.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(dlq.Cmd)
	rootCmd.AddCommand(history.Cmd)
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("QUEUECTL")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	}
}

func initTelemetry() {
	endpoint := viper.GetString(string(config.TelemetryEndpoint))
	if endpoint == "" {
		return
	}
	telCfg := telemetry.Config{
		ServiceName:     "queuectl",
		ServiceVersion:  build.Version,
		Endpoint:        endpoint,
		Insecure:        viper.GetBool(string(config.TelemetryInsecure)),
		PublishInterval: viper.GetDuration(string(config.TelemetryPublishInterval)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := telemetry.Initialize(ctx, telCfg); err != nil {
		log.Warnf("failed to initialize telemetry: %s", err)
	}
}

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
	} else {
		logging.SetLogLevel("cmd", "info")
		logging.SetLogLevel("worker", "info")
		logging.SetLogLevel("worker/telemetry", "error")
		logging.SetLogLevel("supervisor", "info")
		logging.SetLogLevel("store", "warn")
		logging.SetLogLevel("registry", "warn")
		logging.SetLogLevel("qconfig", "warn")
		logging.SetLogLevel("database/gorm", "error")
		logging.SetLogLevel("database", "warn")
	}
}
