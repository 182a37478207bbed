package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qizxdb/qizx-go/pkg/qizx"
)

func newEvalCmd(flags *rootFlags) *cobra.Command {
	opts := qizx.EvalOptions{}
	var maxtime time.Duration

	cmd := &cobra.Command{
		Use:   "eval <query>",
		Short: "Evaluate an XQuery expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			opts.MaxTime = maxtime
			// The CLI always prints the serialized form; parsing
			// happens only for the items format.
			if opts.Format != qizx.FormatItems {
				opts.Raw = true
			}
			result, err := client.Eval(cmd.Context(), args[0], &opts)
			if err != nil {
				return err
			}
			if opts.Format == qizx.FormatItems {
				for _, item := range result.Items {
					fmt.Fprintf(os.Stdout, "%v\n", item.Value)
				}
				return nil
			}
			os.Stdout.Write(result.Raw)
			fmt.Fprintln(os.Stdout)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Library, "library", "", "library name")
	cmd.Flags().StringVar(&opts.Format, "format", "", "response format (items, xml, html, xhtml)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "execution mode (profile)")
	cmd.Flags().DurationVar(&maxtime, "maxtime", 0, "maximum execution time")
	cmd.Flags().StringVar(&opts.Counting, "counting", "", "items counting method (exact, estimated, none)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "maximum number of items")
	cmd.Flags().IntVar(&opts.First, "first", 0, "rank of first item")
	return cmd
}

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Get server information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			info, err := client.Info(cmd.Context())
			if err != nil {
				return err
			}
			printProperties(os.Stdout, info)
			return nil
		},
	}
}

func newGetCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Retrieve a document or collection listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			content, err := client.Get(cmd.Context(), args[0], library)
			if err != nil {
				return err
			}
			os.Stdout.Write(content)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newPutCmd(flags *rootFlags) *cobra.Command {
	var library string
	var nonXML bool
	cmd := &cobra.Command{
		Use:   "put <src> <dst>",
		Short: "Upload a document ('-' reads standard input)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			src, dst := args[0], args[1]

			content := os.Stdin
			if src != "-" {
				file, err := os.Open(src)
				if err != nil {
					return err
				}
				defer file.Close()
				content = file
			}
			return client.Put(cmd.Context(),
				[]qizx.Storable{{Path: dst, Content: content}},
				&qizx.PutOptions{NonXML: nonXML, Library: library})
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	cmd.Flags().BoolVar(&nonXML, "nonxml", false, "store as non-XML data")
	return cmd
}

func newMkColCmd(flags *rootFlags) *cobra.Command {
	var library string
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkcol <path>",
		Short: "Make a document collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			path, err := client.MkCol(cmd.Context(), args[0], parents, library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	cmd.Flags().BoolVar(&parents, "parents", false, "create parent collections")
	return cmd
}

func newMoveCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "move <src> <dst>",
		Short: "Move a document or collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			dst, err := client.Move(cmd.Context(), args[0], args[1], library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newCopyCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a document or collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			dst, err := client.Copy(cmd.Context(), args[0], args[1], library)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a document or collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			_, err = client.Delete(cmd.Context(), args[0], library)
			return err
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	return cmd
}

func newGetPropCmd(flags *rootFlags) *cobra.Command {
	var library string
	var depth int
	cmd := &cobra.Command{
		Use:   "getprop <path> [name...]",
		Short: "Get document or collection properties",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			members, err := client.GetProp(cmd.Context(), args[0], args[1:], depth, library)
			if err != nil {
				return err
			}
			for path, props := range members {
				fmt.Fprintf(os.Stdout, "%s:\n", path)
				printProperties(os.Stdout, props)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	cmd.Flags().IntVar(&depth, "depth", 0, "depth to descend into a collection")
	return cmd
}

func newSetPropCmd(flags *rootFlags) *cobra.Command {
	var library, propType string
	cmd := &cobra.Command{
		Use:   "setprop <path> <name> [value]",
		Short: "Set a document or collection property",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			prop := qizx.Property{Name: args[1], Type: propType}
			if len(args) > 2 {
				prop.Value = args[2]
			}
			_, err = client.SetProp(cmd.Context(), args[0], []qizx.Property{prop}, library)
			return err
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library name")
	cmd.Flags().StringVar(&propType, "type", "", "property type")
	return cmd
}
