package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/kvstore"
)

var (
	loadCmd = &cobra.Command{
		Use:   "load file",
		Short: "Bulk load tab separated key-value lines as one batch",
		Args:  cobra.ExactArgs(1),
		RunE:  loadRun,
	}
)

func init() {
	kvCmd.AddCommand(loadCmd)
}

func loadRun(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("kv: load: %s", err)
	}
	defer f.Close()

	var entries []kvstore.Entry
	lineno := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineno += 1
		line := scanner.Text()
		if line == "" {
			continue
		}
		ndx := strings.IndexByte(line, '\t')
		if ndx < 0 {
			return fmt.Errorf("kv: %s:%d: missing tab separator", args[0], lineno)
		}
		entries = append(entries,
			kvstore.Entry{
				Key:   []byte(line[:ndx]),
				Value: []byte(line[ndx+1:]),
			})
	}
	err = scanner.Err()
	if err != nil {
		return fmt.Errorf("kv: load: %s", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.PutMany(entries)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"file": args[0], "entries": len(entries)}).Info("loaded")
	fmt.Printf("%d entries loaded\n", len(entries))
	return nil
}
