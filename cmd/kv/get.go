package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get key",
		Short: "Look up the value stored for a key",
		Args:  cobra.ExactArgs(1),
		RunE:  getRun,
	}

	getDefault = ""
)

func init() {
	getCmd.Flags().StringVar(&getDefault, "default", getDefault,
		"`value` to print when the key is absent")
	kvCmd.AddCommand(getCmd)
}

func getRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	val, err := st.Get([]byte(args[0]), nil)
	if err != nil {
		return err
	}
	if val == nil {
		if !cmd.Flags().Changed("default") {
			return fmt.Errorf("kv: %s: not found", args[0])
		}
		fmt.Println(getDefault)
		return nil
	}
	fmt.Printf("%s\n", val)
	return nil
}
