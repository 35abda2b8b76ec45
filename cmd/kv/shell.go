package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/leftmike/kvstore"
)

const kvHistory = ".kv_history"

var (
	shellCmd = &cobra.Command{
		Use:   "shell",
		Short: "Run an interactive session",
		Args:  cobra.NoArgs,
		RunE:  shellRun,
	}
)

func init() {
	kvCmd.AddCommand(shellCmd)
}

func shellRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	line := liner.NewLiner()
	defer line.Close()

	if f, err := os.Open(kvHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	for {
		s, err := line.Prompt("kv: ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Println()
			break
		} else if err != nil {
			return err
		}

		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		line.AppendHistory(s)

		if s == "exit" || s == "quit" {
			break
		}
		err = shellEval(st, os.Stdout, s)
		if err != nil {
			fmt.Fprintln(os.Stdout, err)
		}
	}

	if f, err := os.Create(kvHistory); err != nil {
		fmt.Fprintf(os.Stderr, "kv: error writing history file, %s: %s\n", kvHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

func shellEval(st kvstore.Store, w io.Writer, s string) error {
	fields := strings.Fields(s)
	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("get key")
		}
		val, err := st.Get([]byte(fields[1]), nil)
		if err != nil {
			return err
		}
		if val == nil {
			return fmt.Errorf("%s: not found", fields[1])
		}
		fmt.Fprintf(w, "%s\n", val)
		return nil

	case "put":
		if len(fields) != 3 {
			return fmt.Errorf("put key value")
		}
		return st.Put([]byte(fields[1]), []byte(fields[2]))

	case "keys":
		from, to, err := shellBounds(fields)
		if err != nil {
			return err
		}
		return writeKeys(w, st, from, to)

	case "items":
		from, to, err := shellBounds(fields)
		if err != nil {
			return err
		}
		return writeItems(w, st, from, to)

	case "sync":
		return st.Sync()

	case "help":
		fmt.Fprintln(w, "commands: get key | put key value | keys [from [to]] |")
		fmt.Fprintln(w, "    items [from [to]] | sync | help | exit")
		return nil
	}

	return fmt.Errorf("%s: unknown command; try help", fields[0])
}

func shellBounds(fields []string) ([]byte, []byte, error) {
	var from, to []byte
	switch len(fields) {
	case 1:
	case 2:
		from = []byte(fields[1])
	case 3:
		from = []byte(fields[1])
		to = []byte(fields[2])
	default:
		return nil, nil, fmt.Errorf("%s [from [to]]", fields[0])
	}
	return from, to, nil
}
