package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fansqz/lua-inspector/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 定义版本号
const Version = "2.0.0"

const envPrefix = "LUA_INSPECTOR"

// Config 启动配置，来源依次为命令行参数、环境变量、配置文件
type Config struct {
	LogLevel       string
	LogFile        string
	TCPAddr        string
	HTTPAddr       string
	Port           int
	PauseInterval  time.Duration
	ContextGroupID int
	ContextName    string
	IdleTimeout    time.Duration
	ConnectOnStart bool
}

func loadConfig() *Config {
	return &Config{
		LogLevel:       viper.GetString("log-level"),
		LogFile:        viper.GetString("log-file"),
		TCPAddr:        viper.GetString("tcp-addr"),
		HTTPAddr:       viper.GetString("http-addr"),
		Port:           viper.GetInt("port"),
		PauseInterval:  viper.GetDuration("pause-interval"),
		ContextGroupID: viper.GetInt("context-group-id"),
		ContextName:    viper.GetString("context-name"),
		IdleTimeout:    viper.GetDuration("idle-timeout"),
		ConnectOnStart: viper.GetBool("connect-on-start"),
	}
}

var rootCmd = &cobra.Command{
	Use:   "lua-inspector",
	Short: "Debug a Lua script over an inspector style protocol",
	Long: `lua-inspector runs a Lua script and lets a remote debugging client attach to it,
pause it and inspect it while it is paused.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		config := loadConfig()
		return SetupLogger(config.LogFile, config.LogLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		CloseLogger()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file")
	flags.String("log-level", "info", "Log level")
	flags.String("log-file", defaultLogPath, "Log file, falls back to stderr when it cannot be opened")
	flags.Int("port", constants.DefaultPort, "Port reported for debug sessions")
	flags.Duration("pause-interval", constants.DefaultPauseInterval, "Longest wait of one pause loop round")
	flags.Int("context-group-id", constants.DefaultContextGroupID, "Context group id")
	flags.String("context-name", constants.DefaultContextName, "Context name reported to the client")
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(newServeCmd(), newReplCmd(), versionCmd)
}

// initConfig 读取环境变量和配置文件
func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
