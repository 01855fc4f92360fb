// Package configutil resolves configuration values that can arrive either as
// a cobra flag or as a viper key (config file / environment). An explicitly
// set flag wins; otherwise the viper value applies when present; the flag
// default is the last resort.
package configutil

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd == nil {
		return ""
	}
	v, _ := cmd.Flags().GetString(flagName)
	return v
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetStringArray(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetStringSlice(viperKey)
	}
	if cmd == nil {
		return nil
	}
	v, _ := cmd.Flags().GetStringArray(flagName)
	return v
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd == nil {
		return false
	}
	v, _ := cmd.Flags().GetBool(flagName)
	return v
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetInt(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetInt(flagName)
	return v
}

func FlagOrViperFloat64(cmd *cobra.Command, flagName, viperKey string) float64 {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetFloat64(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetFloat64(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetFloat64(flagName)
	return v
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if flagChanged(cmd, flagName) {
		v, _ := cmd.Flags().GetDuration(flagName)
		return v
	}
	if viperHas(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetDuration(flagName)
	return v
}

func flagChanged(cmd *cobra.Command, flagName string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(flagName)
	return f != nil && f.Changed
}

func viperHas(viperKey string) bool {
	return strings.TrimSpace(viperKey) != "" && viper.IsSet(viperKey)
}
