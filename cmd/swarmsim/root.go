package main

import (
	"os"

	"swarmsim/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarmsim",
	Short: "BitTorrent swarm simulator",
	Long:  `An event-driven BitTorrent swarm simulator studying rarest-first piece selection and tit-for-tat choking.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}
