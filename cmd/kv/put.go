package main

import (
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put key value",
		Short: "Store a value for a key, replacing any existing value",
		Args:  cobra.ExactArgs(2),
		RunE:  putRun,
	}
)

func init() {
	kvCmd.AddCommand(putCmd)
}

func putRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Put([]byte(args[0]), []byte(args[1]))
}
