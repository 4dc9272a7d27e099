package cli

import (
	"github.com/hlachaal/24hkids-platform/internal/appServer"

	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			return appServer.NewServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "override server.port")
	return cmd
}
