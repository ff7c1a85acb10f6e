package serve

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	cmdUtil "github.com/vkolb/waldb/cmd/util"
	"github.com/vkolb/waldb/internal/daemon"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vkolb/waldb/rpc/common"
)

var (
	serveCmdConfig = &common.ServerConfig{}

	// ServeCmd starts the daemon against a single data directory or
	// database file, named positionally or via --data-dir.
	ServeCmd = &cobra.Command{
		Use:   "serve [data-dir]",
		Short: "Start the waldb daemon",
		Long: `Start the waldb daemon against the given data directory (or database
file). Configuration can be set via command line flags or environment
variables in the form WALDB_<flag> (e.g. WALDB_LOG_LEVEL=debug).`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	key := "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("The data directory (or database file) the daemon manages"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Unix socket path the daemon listens on (default: <data-dir>/.waldb.sock)"))

	key = "router-idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, 30*time.Minute, cmdUtil.WrapString("How long the router waits with no connections and no live workers before exiting"))

	key = "worker-idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, 5*time.Minute, cmdUtil.WrapString("How long a worker waits with an empty inbox, in the Open state, before closing its database and exiting"))

	key = "worker-inbox-capacity"
	ServeCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("How many queued commands a worker holds before returning Busy to new callers"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Uint32(key, 10*1024*1024, cmdUtil.WrapString("Maximum size, in bytes, of a single framed request or response"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Read/write deadline applied to client connections, in seconds (0 disables it)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them to the daemon's server
// configuration.
func processConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	dataDir := viper.GetString("data-dir")
	if len(args) == 1 {
		dataDir = args[0]
	}

	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		endpoint = filepath.Join(dataDir, ".waldb.sock")
	}

	serveCmdConfig.DataDir = dataDir
	serveCmdConfig.Endpoint = endpoint
	serveCmdConfig.RouterIdleTimeout = viper.GetDuration("router-idle-timeout")
	serveCmdConfig.WorkerIdleTimeout = viper.GetDuration("worker-idle-timeout")
	serveCmdConfig.WorkerInboxCapacity = viper.GetInt("worker-inbox-capacity")
	serveCmdConfig.MaxFrameSize = viper.GetUint32("max-frame-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the daemon and blocks until it exits, translating its exit
// code into the process's own exit status.
func run(_ *cobra.Command, _ []string) error {
	logger := common.CreateLogger("daemon")
	logger.SetLevel(common.ParseLogLevel(serveCmdConfig.LogLevel))
	logger.Infof("%s", serveCmdConfig.String())

	code := daemon.Run(*serveCmdConfig, logger)
	if code != daemon.ExitOK {
		os.Exit(code)
	}
	return nil
}

// initConfig reads env files and ENV variables if set.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("waldb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
