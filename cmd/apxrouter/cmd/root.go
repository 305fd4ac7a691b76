package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "apxrouter",
	Short: "Signal router for apx nodes",
	Long: `apxrouter accepts apx client connections over TCP and Unix
sockets and routes provide-port data to matching require-ports on other
connected nodes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		log.AddLogger("stderr", os.Stderr, level, true)
		if file := viper.GetString("log.file"); file != "" {
			f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			log.AddLogger("file", f, level, false)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// keep a debug-level tail in memory for the post-mortem dump below
		diagnostics := log.AddRing("diagnostics", 256, log.DEBUG)

		s := server.New(server.Config{
			TCPAddress:     viper.GetString("listen"),
			UnixSocketPath: viper.GetString("unix-socket"),
			MaxConnections: viper.GetInt("max-connections"),
		})
		if err := s.Listen(); err != nil {
			return err
		}
		log.Info("apxrouter listening on %s", viper.GetString("listen"))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			log.Info("apxrouter shutting down")
			s.Close()
		}()

		err := s.Wait()
		if err != nil {
			// an acceptor died; replay the buffered diagnostics
			fmt.Fprintln(os.Stderr, "recent diagnostics:")
			for _, entry := range diagnostics.Dump() {
				fmt.Fprintln(os.Stderr, entry)
			}
		}
		return err
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("listen", ":5000", "TCP listen address")
	rootCmd.PersistentFlags().String("unix-socket", "", "Unix socket path (disabled when empty)")
	rootCmd.PersistentFlags().Int("max-connections", apx.ServerMaxConcurrentConnections, "maximum concurrent connections")
	rootCmd.PersistentFlags().String("log.level", "warn", "log level: [debug, info, warn, error, critical]")
	rootCmd.PersistentFlags().String("log.file", "", "also log to file")
	rootCmd.PersistentFlags().String("config", "", "config file path")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("apxrouter")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/apx")
	}
	viper.SetEnvPrefix("apx")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug("using config file %s", viper.ConfigFileUsed())
	}
}
