// Package configutil resolves configuration values that can come from
// either a cobra flag or a viper key. An explicitly set flag wins; the
// viper key (file or environment) is the fallback; the flag default
// applies last.
package configutil

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	if strings.TrimSpace(viperKey) != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd == nil {
		return ""
	}
	v, _ := cmd.Flags().GetString(flagName)
	return v
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetStringArray(flagName)
		return v
	}
	if strings.TrimSpace(viperKey) != "" && viper.IsSet(viperKey) {
		return viper.GetStringSlice(viperKey)
	}
	if cmd == nil {
		return nil
	}
	v, _ := cmd.Flags().GetStringArray(flagName)
	return v
}

// SplitList flattens entries that may themselves hold comma-separated
// values, trimming whitespace and dropping empties. Environment variables
// deliver lists as a single comma-joined string; flags deliver them as
// repeated values. Both shapes normalize to the same slice.
func SplitList(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	if strings.TrimSpace(viperKey) != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd == nil {
		return false
	}
	v, _ := cmd.Flags().GetBool(flagName)
	return v
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetDuration(flagName)
		return v
	}
	if strings.TrimSpace(viperKey) != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetDuration(flagName)
	return v
}
