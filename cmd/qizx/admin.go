package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qizxdb/qizx-go/pkg/qizx"
)

func newListLibCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "listlib",
		Short: "List XML libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			libraries, err := client.ListLibraries(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range libraries {
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}

func newMkLibCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mklib <name>",
		Short: "Create an XML library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			_, err = client.MkLib(cmd.Context(), args[0])
			return err
		},
	}
}

func newDelLibCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dellib <name>",
		Short: "Delete an XML library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			_, err = client.DelLib(cmd.Context(), args[0])
			return err
		},
	}
}

func newServerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "server <status|online|offline|reload>",
		Short:     "Control the XML engine",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{qizx.ServerStatus, qizx.ServerOnline, qizx.ServerOffline, qizx.ServerReload},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			state, err := client.ServerControl(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, state)
			return nil
		},
	}
}

func newReindexCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Reindex an XML library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			id, err := client.Reindex(cmd.Context(), library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newOptimizeCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize an XML library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			id, err := client.Optimize(cmd.Context(), library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	var library string
	var wait bool
	cmd := &cobra.Command{
		Use:   "backup <directory>",
		Short: "Back up libraries into a server-side directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			id, err := client.Backup(cmd.Context(), args[0], library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, id)
			if wait {
				return client.Wait(cmd.Context(), id, 0)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", qizx.AllLibraries, "library name ('*' backs up all libraries)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the backup to finish")
	return cmd
}

func newProgressCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Show progress of a long-running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			task, done, err := client.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s %g\n", task, done)
			return nil
		},
	}
}

func newWaitCmd(flags *rootFlags) *cobra.Command {
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait for a long-running task to complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			return client.Wait(cmd.Context(), args[0], poll)
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 0, "delay between progress checks")
	return cmd
}
