package cli

import (
	"github.com/hlachaal/24hkids-platform/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	Driver   string
}

// NewRootCommand creates the root command of the booking service.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "kidsbooking",
		Short:         "Workshop booking service",
		Long:          "Books children into age-restricted workshops with a FIFO waitlist.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "override database.driver (postgres|sqlite|memory)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// loadConfig reads config.yaml and the environment, then applies flag
// overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	v, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	applyOverrides(v, opts)
	return config.ParseConfig(v)
}

func applyOverrides(v *viper.Viper, opts *RootOptions) {
	if opts.LogLevel != "" {
		v.Set("log.level", opts.LogLevel)
	}
	if opts.Driver != "" {
		v.Set("database.driver", opts.Driver)
	}
}
