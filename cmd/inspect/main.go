package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"strings"

	"chatledger/pkg/logger"
	"chatledger/pkg/store"
)

// inspect dumps the raw keyspace of a chatledger database. Useful for
// debugging derived-state problems without starting the server.
func main() {
	var dbPath, prefix string
	var showValues bool
	flag.StringVar(&dbPath, "db", "", "path to the pebble store directory")
	flag.StringVar(&prefix, "prefix", "", "only list keys with this prefix")
	flag.BoolVar(&showValues, "values", false, "print values alongside keys")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init()

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	keys, err := st.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !showValues {
			fmt.Println(k)
			continue
		}
		v, err := st.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, renderValue(k, v))
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}

// renderValue decodes the 8-byte big-endian counters, leaves everything
// else as-is.
func renderValue(key, val string) string {
	switch {
	case strings.HasPrefix(key, "meta:"),
		strings.HasPrefix(key, "chatter:"),
		strings.Contains(key, ":msg:") && len(val) == 8:
		if len(val) == 8 {
			return fmt.Sprintf("%d", binary.BigEndian.Uint64([]byte(val)))
		}
	}
	return val
}
