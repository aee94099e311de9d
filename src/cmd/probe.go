package cmd

import (
	"github.com/filstation/spprobe/src/probe"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Continuously store test deals with the configured providers and retrieve them back",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		controller, err := probe.NewController(conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		select {
		case <-controller.CtxRunning.Done():
		case <-applicationCtx.Done():
		}

		controller.StopWait()

		return
	},
	PostRunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("root-cmd")
		log.Debug("Finished probe command")
		applicationCtxCancel()
		return
	},
}
