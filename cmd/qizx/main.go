// Command qizx is the command line interface to a Qizx XML database server.
// The target server is selected with --url, either a literal service URL or
// the name of a section in the .qizx configuration file.
package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qizxdb/qizx-go/pkg/qizx"
)

type rootFlags struct {
	url     string
	config  string
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "qizx",
		Short:         "Qizx XML database command line interface",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.url, "url", qizx.DefaultSection,
		"service URL or configuration section name")
	root.PersistentFlags().StringVar(&flags.config, "config", "",
		"configuration file path (overrides discovery)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0,
		"request timeout (0 uses the default)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(
		newEvalCmd(flags),
		newInfoCmd(flags),
		newGetCmd(flags),
		newPutCmd(flags),
		newMkColCmd(flags),
		newMoveCmd(flags),
		newCopyCmd(flags),
		newDeleteCmd(flags),
		newGetPropCmd(flags),
		newSetPropCmd(flags),
		newListLibCmd(flags),
		newMkLibCmd(flags),
		newDelLibCmd(flags),
		newServerCmd(flags),
		newReindexCmd(flags),
		newOptimizeCmd(flags),
		newBackupCmd(flags),
		newProgressCmd(flags),
		newWaitCmd(flags),
	)
	return root
}

// newLogger builds the CLI logger; the SDK itself never logs.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// newClient resolves the target and constructs the SDK client shared by all
// subcommands.
func newClient(flags *rootFlags) (*qizx.Client, error) {
	logger, err := newLogger(flags.verbose)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	var opts []qizx.Option
	if flags.config != "" {
		opts = append(opts, qizx.WithConfigPath(flags.config))
	}
	if flags.timeout > 0 {
		opts = append(opts, qizx.WithTimeout(flags.timeout))
	}

	client, err := qizx.New(flags.url, opts...)
	if err != nil {
		return nil, err
	}

	cfg := client.Config()
	logger.Debug("resolved connection",
		zap.String("endpoint", cfg.Endpoint.String()),
		zap.String("verify", cfg.Verify.String()))
	if cfg.Verify.Disabled() {
		logger.Warn("TLS certificate verification is disabled; the connection is insecure",
			zap.String("endpoint", cfg.Endpoint.String()))
	}
	return client, nil
}

// printProperties renders a name/value mapping in sorted order.
func printProperties(out *os.File, props qizx.Properties) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %v\n", name, props[name])
	}
}
