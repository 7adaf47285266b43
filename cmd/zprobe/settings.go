package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print the configured probe settings as an M670 line",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Enabled() {
			log.Warn("zprobe is disabled")
			return nil
		}
		sys, err := cfg.Build(log.StandardLogger())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), sys.Engine.Settings().String())
		return nil
	},
}
