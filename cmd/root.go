package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "modelgw",
		Short:         "modelgw: authentication broker for the model gateway",
		Long:          "modelgw connects the gateway to AI providers: it runs browser OAuth flows, stores API keys, and serves the dashboard's auth and settings endpoints.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newLoginCmd(app),
		newAuthCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}
