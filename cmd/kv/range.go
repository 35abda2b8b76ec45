package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/leftmike/kvstore"
)

var (
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "List keys in ascending order",
		Args:  cobra.NoArgs,
		RunE:  keysRun,
	}

	itemsCmd = &cobra.Command{
		Use:   "items",
		Short: "List keys and values in ascending key order",
		Args:  cobra.NoArgs,
		RunE:  itemsRun,
	}

	keyFrom = ""
	keyTo   = ""
)

func init() {
	for _, cmd := range []*cobra.Command{keysCmd, itemsCmd} {
		cmd.Flags().StringVar(&keyFrom, "from", keyFrom, "inclusive lower `bound`")
		cmd.Flags().StringVar(&keyTo, "to", keyTo, "inclusive upper `bound`")
		kvCmd.AddCommand(cmd)
	}
}

// rangeBounds turns the --from and --to flags into bounds; an unset flag is
// unbounded, while an explicitly empty one is the empty key.
func rangeBounds(cmd *cobra.Command) (from, to []byte) {
	if cmd.Flags().Changed("from") {
		from = []byte(keyFrom)
	}
	if cmd.Flags().Changed("to") {
		to = []byte(keyTo)
	}
	return from, to
}

func keysRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	from, to := rangeBounds(cmd)
	return writeKeys(os.Stdout, st, from, to)
}

func itemsRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	from, to := rangeBounds(cmd)
	return writeItems(os.Stdout, st, from, to)
}

func writeKeys(w io.Writer, st kvstore.Store, from, to []byte) error {
	kit, err := st.Keys(from, to)
	if err != nil {
		return err
	}
	defer kit.Close()

	for {
		err = kit.Key(
			func(key []byte) error {
				_, err := fmt.Fprintf(w, "%s\n", key)
				return err
			})
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func writeItems(w io.Writer, st kvstore.Store, from, to []byte) error {
	it, err := st.Items(from, to)
	if err != nil {
		return err
	}
	defer it.Close()

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"key", "value"})

	for {
		err = it.Item(
			func(key, val []byte) error {
				tw.Append([]string{string(key), string(val)})
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
	}

	tw.Render()
	return nil
}
