// Command bkl is a small debug CLI over the booklet store, in the spirit
// of the single optional CLI spec.md §6 allows alongside the core ("None
// in the core; a small optional CLI is outside the scope of this spec").
// Flag parsing follows the pack's idiomatic choice of
// github.com/spf13/pflag (see calvinalkan-agent-task and
// rpcpool-yellowstone-faithful in the example corpus).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mullenkamp/booklet-go"
	"github.com/mullenkamp/booklet-go/serial"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bkl <command> <file> [args]

commands:
  get <file> <key>            print the value stored for key
  set <file> <key> <value>    set key to value (strings)
  delete <file> <key>         delete key
  dump <file>                 print every (key, value) pair, one per line
  stat <file>                 print live key count and file size
  prune <file>                compact the file, print blocks removed`)
}

func main() {
	args := os.Args[1:]
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := args[0]
	flags := pflag.NewFlagSet("bkl", pflag.ExitOnError)
	bucketCount := flags.Uint32("bucket-count", 0, "initial bucket count (create only)")
	timestamps := flags.Bool("timestamps", false, "enable per-entry timestamps (create only)")
	if err := flags.Parse(args[1:]); err != nil {
		os.Exit(2)
	}

	rest := flags.Args()
	if len(rest) < 1 {
		usage()
		os.Exit(2)
	}
	path := rest[0]
	rest = rest[1:]

	var err error
	switch cmd {
	case "get":
		err = runGet(path, rest)
	case "set":
		err = runSet(path, rest, *bucketCount, *timestamps)
	case "delete":
		err = runDelete(path, rest)
	case "dump":
		err = runDump(path)
	case "stat":
		err = runStat(path)
	case "prune":
		err = runPrune(path)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "bkl:", err)
		os.Exit(1)
	}
}

func openReadOnly(path string) (*booklet.Booklet, error) {
	return booklet.Open(path, booklet.Options{
		Flag:     booklet.FlagRead,
		KeyCodec: serial.UTF8String{},
		ValCodec: serial.UTF8String{},
	})
}

func openWritable(path string, bucketCount uint32, timestamps bool) (*booklet.Booklet, error) {
	return booklet.Open(path, booklet.Options{
		Flag:             booklet.FlagCreate,
		KeyCodec:         serial.UTF8String{},
		ValCodec:         serial.UTF8String{},
		BucketCount:      bucketCount,
		TimestampEnabled: timestamps,
	})
}

func runGet(path string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("get: expected <key>")
	}
	b, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer b.Close()

	v, err := b.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runSet(path string, args []string, bucketCount uint32, timestamps bool) error {
	if len(args) != 2 {
		return fmt.Errorf("set: expected <key> <value>")
	}
	b, err := openWritable(path, bucketCount, timestamps)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Set(args[0], args[1], nil); err != nil {
		return err
	}
	return b.Sync()
}

func runDelete(path string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete: expected <key>")
	}
	b, err := booklet.Open(path, booklet.Options{
		Flag:     booklet.FlagWrite,
		KeyCodec: serial.UTF8String{},
		ValCodec: serial.UTF8String{},
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Delete(args[0]); err != nil {
		return err
	}
	return b.Sync()
}

func runDump(path string) error {
	b, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer b.Close()

	entries, err := b.Iterate(booklet.IterateOptions{IncludeKeys: true, IncludeValues: true})
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%v\t%v\n", e.Key, e.Value)
	}
	return nil
}

func runStat(path string) error {
	b, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := b.Len()
	if err != nil {
		return err
	}
	size, err := b.FileSize()
	if err != nil {
		return err
	}

	stat := struct {
		Keys int64 `json:"keys"`
		Size int64 `json:"size_bytes"`
	}{Keys: int64(n), Size: size}

	enc, _ := json.MarshalIndent(stat, "", "  ")
	fmt.Println(string(enc))
	return nil
}

func runPrune(path string) error {
	b, err := booklet.Open(path, booklet.Options{
		Flag:     booklet.FlagWrite,
		KeyCodec: serial.UTF8String{},
		ValCodec: serial.UTF8String{},
	})
	if err != nil {
		return err
	}
	defer b.Close()

	n, err := b.Prune(booklet.PruneOptions{})
	if err != nil {
		return err
	}
	fmt.Println(n, "blocks removed")
	return nil
}
