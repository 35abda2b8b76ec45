package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/hcl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/kvstore"
)

var (
	kvCmd = &cobra.Command{
		Use:   "kv",
		Short: "A sorted key-value store tool",
		Long: "Kv reads and writes sorted key-value stores backed by bbolt, badger,\n" +
			"pebble, sqlite, or an in-memory btree.",
		PersistentPreRunE: kvPreRun,
		PersistentPostRun: kvPostRun,
	}

	store = "bbolt"
	data  = "kv.db"

	logFile   = ""
	logLevel  = "warn"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "kv.hcl"
	noConfig   = false

	cfgVars   = map[string]*pflag.Flag{}
	cfg       = map[string]interface{}{}
	usedFlags = map[string]struct{}{}
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := kvCmd.PersistentFlags()

	fs.StringVar(&store, "store", store,
		"storage engine to use: bbolt, badger, pebble, sqlite, or btree")
	cfgVars["store"] = fs.Lookup("store")

	fs.StringVar(&data, "data", data, "`path` of the backing storage")
	cfgVars["data"] = fs.Lookup("data")

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfgVars["log-file"] = fs.Lookup("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfgVars["log-level"] = fs.Lookup("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

func kvPreRun(cmd *cobra.Command, args []string) error {
	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			usedFlags[flg.Name] = struct{}{}
		})

	if configFile != "" && !noConfig {
		err := loadConfig()
		if err != nil {
			return fmt.Errorf("kv: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("kv: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("kv: %s", err)
	}
	log.SetLevel(ll)
	return nil
}

func kvPostRun(cmd *cobra.Command, args []string) {
	if logWriter != nil {
		logWriter.Close()
	}
}

func loadConfig() error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) && !usedFlag("config-file") {
			return nil
		}
		return err
	}

	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}

	for name, val := range cfg {
		flg, ok := cfgVars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if _, ok := usedFlags[flg.Name]; ok {
			continue
		}
		err := flg.Value.Set(fmt.Sprintf("%v", val))
		if err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}
	return nil
}

func usedFlag(name string) bool {
	_, ok := usedFlags[name]
	return ok
}

func openStore() (kvstore.Store, error) {
	var st kvstore.Store
	var err error
	switch store {
	case "bbolt":
		st, err = kvstore.NewBBoltStore(data)
	case "badger":
		st, err = kvstore.NewBadgerStore(data, log.StandardLogger())
	case "pebble":
		st, err = kvstore.NewPebbleStore(data, log.StandardLogger())
	case "sqlite":
		st, err = kvstore.NewSqliteStore(data)
	case "btree":
		st, err = kvstore.NewBTreeStore()
	default:
		return nil,
			fmt.Errorf("kv: got %s for store; want bbolt, badger, pebble, sqlite, or btree",
				store)
	}
	if err != nil {
		return nil, fmt.Errorf("kv: %s", err)
	}

	log.WithFields(log.Fields{"store": store, "data": data}).Debug("store opened")
	return st, nil
}

func main() {
	if err := kvCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
