package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/vendorwatch/cmd/vendorwatch/servecmd"
	"github.com/quailyquaily/vendorwatch/cmd/vendorwatch/socketcmd"
)

func main() {
	root := &cobra.Command{
		Use:           "vendorwatch",
		Short:         "Post threaded alerts for vendor maintenance, outage, and breaking-change announcements",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "Path to a config file (yaml, json, or toml).")

	root.AddCommand(servecmd.NewCommand())
	root.AddCommand(socketcmd.NewCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("VENDORWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPath, _ := cmd.Flags().GetString("config")
	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		return nil
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}
	return nil
}
