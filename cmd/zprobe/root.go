package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/zprobe/config"
)

var (
	configFile string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "HCL config file, the built-in simulation (surface at Z-10, max_z 20) is used if empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:   "zprobe",
	Short: "Z probe controller for a simulated GRBL style machine",
	Long:  "zprobe runs a simulated machine with a Z probe and serves its GRBL style console over a serial port, stdio and HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
		return nil
	},
	SilenceUsage: true,
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		log.Info("no config file, using defaults")
		return config.Default(), nil
	}
	return config.Load(configFile)
}
