package kv

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/client"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lockTime, _ := cmd.Flags().GetUint32("lock")
			replica, _ := cmd.Flags().GetInt("replica")

			var (
				res *result.Result
				err error
			)
			switch {
			case cmd.Flags().Changed("replica"):
				res, err = rpcBucket.GetReplica(args[0], replica)
			case lockTime > 0:
				res, err = rpcBucket.GetAndLock(args[0], lockTime)
			default:
				res, err = rpcBucket.Get(args[0])
			}
			return printResult(res, err)
		},
	}

	storeCmds = []*cobra.Command{
		newStoreCmd(engine.StoreSet, "set", "Sets the value of a key"),
		newStoreCmd(engine.StoreAdd, "add", "Sets the value of a key if the key does not exist"),
		newStoreCmd(engine.StoreReplace, "replace", "Sets the value of a key if the key exists"),
		newStoreCmd(engine.StoreAppend, "append", "Appends raw bytes to the value of a key"),
		newStoreCmd(engine.StorePrepend, "prepend", "Prepends raw bytes to the value of a key"),
	}

	rmCmd = &cobra.Command{
		Use:   "rm [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, _ := cmd.Flags().GetUint64("cas")
			return printResult(rpcBucket.Remove(args[0], cas, durabilityFlags(cmd)))
		},
	}

	touchCmd = &cobra.Command{
		Use:   "touch [key] [expiry]",
		Short: "Updates the expiry (in seconds) of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("expiry must be a number: %w", err)
			}
			return printResult(rpcBucket.Touch(args[0], uint32(expiry)))
		},
	}

	unlockCmd = &cobra.Command{
		Use:   "unlock [key] [cas]",
		Long:  "Releases the lock of a key. The cas is printed by get --lock, it may be given in decimal or 0x hex notation.",
		Short: "Releases the lock of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			return printResult(rpcBucket.Unlock(args[0], cas))
		},
	}

	incrCmd = &cobra.Command{
		Use:   "incr [key] [delta]",
		Short: "Adds delta (may be negative) to a counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			opts := client.CounterOptions{}
			opts.Create = cmd.Flags().Changed("initial")
			opts.Initial, _ = cmd.Flags().GetUint64("initial")
			opts.Expiry, _ = cmd.Flags().GetUint32("expiry")
			return printResult(rpcBucket.Counter(args[0], delta, opts))
		},
	}

	observeCmd = &cobra.Command{
		Use:   "observe [key...]",
		Short: "Reports the state of keys on every node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBatch(rpcBucket.Observe(args...))
		},
	}

	endureCmd = &cobra.Command{
		Use:   "endure [key] [cas]",
		Short: "Waits until a mutation is persisted and replicated",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			deleted, _ := cmd.Flags().GetBool("delete")
			return printBatch(rpcBucket.Endure(map[string]uint64{args[0]: cas}, durabilityFlags(cmd), deleted))
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats [group]",
		Short: "Prints the statistics of every node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := ""
			if len(args) == 1 {
				group = args[0]
			}
			mres, err := rpcBucket.Stats(group)
			if err != nil {
				return err
			}
			stats := mres.Stats()
			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				for node, value := range stats[name] {
					fmt.Printf("%-30s %-10s %v\n", name, node, value)
				}
			}
			return mres.Err()
		},
	}
)

func init() {
	getCmd.Flags().Uint32("lock", 0, "Lock the key for the given number of seconds")
	getCmd.Flags().Int("replica", -1, "Read from a replica (-1 = first replica that answers)")

	rmCmd.Flags().Uint64("cas", 0, "Only remove the key if its cas matches")
	addDurabilityFlags(rmCmd)

	incrCmd.Flags().Uint64("initial", 0, "Create the counter with this value if it does not exist")
	incrCmd.Flags().Uint32("expiry", 0, "Expiry of a created counter (in seconds)")

	endureCmd.Flags().Bool("delete", false, "Wait for the removal of the key")
	addDurabilityFlags(endureCmd)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// newStoreCmd creates the command of one store mode
func newStoreCmd(mode engine.StoreMode, name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [key] [value]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			format, err := codec.ParseFormat(formatName)
			if err != nil {
				return err
			}
			opts := client.StoreOptions{Format: format, Durability: durabilityFlags(cmd)}
			opts.Expiry, _ = cmd.Flags().GetUint32("expiry")
			opts.Cas, _ = cmd.Flags().GetUint64("cas")
			return printResult(rpcBucket.Store(mode, args[0], parseValue(args[1], format), opts))
		},
	}

	defaultFormat := "json"
	if mode == engine.StoreAppend || mode == engine.StorePrepend {
		defaultFormat = "bytes"
	}
	cmd.Flags().String("format", defaultFormat, "Encoding of the value (json, cbor, bytes, utf8, optionally with +zstd)")
	cmd.Flags().Uint32("expiry", 0, "Expiry of the key (in seconds)")
	cmd.Flags().Uint64("cas", 0, "Only store if the cas of the key matches")
	addDurabilityFlags(cmd)
	return cmd
}

func addDurabilityFlags(cmd *cobra.Command) {
	cmd.Flags().Int("persist-to", 0, "Number of nodes the mutation has to be persisted on (-1 = all)")
	cmd.Flags().Int("replicate-to", 0, "Number of replicas the mutation has to reach (-1 = all)")
}

func durabilityFlags(cmd *cobra.Command) batch.Durability {
	var dur batch.Durability
	dur.PersistTo, _ = cmd.Flags().GetInt("persist-to")
	dur.ReplicateTo, _ = cmd.Flags().GetInt("replicate-to")
	return dur
}

// parseValue converts a command line argument into a value of the given format.
// JSON and CBOR values are parsed as JSON, arguments that are not valid JSON are
// stored as strings.
func parseValue(arg string, format uint32) any {
	switch format & codec.FormatMask {
	case codec.FormatJSON, codec.FormatCBOR:
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err == nil {
			return v
		}
		return arg
	case codec.FormatBytes:
		return []byte(arg)
	default:
		return arg
	}
}

func printResult(res *result.Result, err error) error {
	if res != nil {
		fmt.Println(res.String())
	}
	return err
}

func printBatch(mres *batch.MultiResult, err error) error {
	if mres == nil {
		return err
	}
	for _, key := range mres.Keys() {
		res, _ := mres.Get(key)
		fmt.Println(res.String())
		for _, info := range res.ObserveInfo() {
			fmt.Printf("  %s\n", info.String())
		}
	}
	if err != nil {
		return err
	}
	return mres.Err()
}
