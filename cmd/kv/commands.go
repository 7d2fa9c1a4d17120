package kv

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/client"
)

// rangeArgs returns the optional [start] [end] arguments, missing ones are open bounds
func rangeArgs(args []string) (start, end []byte) {
	if len(args) > 0 {
		start = []byte(args[0])
	}
	if len(args) > 1 {
		end = []byte(args[1])
	}
	return start, end
}

func toKeys(args []string) [][]byte {
	keys := make([][]byte, len(args))
	for i, a := range args {
		keys[i] = []byte(a)
	}
	return keys
}

var (
	readCmd = &cobra.Command{
		Use:   "read [key...]",
		Short: "Reads the values of one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			results, err := rpcClient.Read(ctx, util.GetTable(), toKeys(args)...)
			if err != nil {
				return err
			}
			for i, r := range results {
				switch {
				case r.Err != "":
					fmt.Printf("key=%s, error=%s\n", args[i], r.Err)
				case !r.Found:
					fmt.Printf("key=%s, found=false\n", args[i])
				default:
					fmt.Printf("key=%s, found=true, value=%s\n", args[i], r.Value)
				}
			}
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key...]",
		Short: "Checks if one or more keys exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			results, err := rpcClient.Exists(ctx, util.GetTable(), toKeys(args)...)
			if err != nil {
				return err
			}
			for i, r := range results {
				if r.Err != "" {
					fmt.Printf("key=%s, error=%s\n", args[i], r.Err)
					continue
				}
				fmt.Printf("key=%s, found=%t\n", args[i], r.Found)
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value] [key value...]",
		Short: "Writes one or more key value pairs as one batch",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected an even number of arguments (key value pairs), got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			durability, err := util.GetDurability()
			if err != nil {
				return err
			}
			pairs := make([]db.KeyValue, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				pairs = append(pairs, db.KeyValue{Key: []byte(args[i]), Value: []byte(args[i+1])})
			}
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.Put(ctx, util.GetTable(), durability, pairs...); err != nil {
				return err
			}
			fmt.Printf("put %d pair(s) successfully\n", len(pairs))
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key...]",
		Short: "Deletes one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			durability, err := util.GetDurability()
			if err != nil {
				return err
			}
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.Delete(ctx, util.GetTable(), durability, toKeys(args)...); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	delRangeCmd = &cobra.Command{
		Use:   "delrange [start] [end]",
		Short: "Deletes every key in [start, end), missing bounds are open",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			durability, err := util.GetDurability()
			if err != nil {
				return err
			}
			start, end := rangeArgs(args)
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.DeleteRange(ctx, util.GetTable(), durability, start, end); err != nil {
				return err
			}
			fmt.Println("delete range successfully")
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [start] [end]",
		Short: "Counts the keys in [start, end), missing bounds are open",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := rangeArgs(args)
			ctx, cancel := util.RequestContext()
			defer cancel()
			n, err := rpcClient.Count(ctx, util.GetTable(), start, end)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [start] [end]",
		Short: "Prints every pair in [start, end), with --limit at most limit pairs from start",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := rangeArgs(args)
			chunkSize := viper.GetUint32("chunk-size")
			limit := viper.GetInt64("limit")
			if limit >= 0 && end != nil {
				return fmt.Errorf("--limit and an end key are mutually exclusive")
			}

			ctx, cancel := util.RequestContext()
			defer cancel()

			var stream *client.ScanStream
			var err error
			if limit >= 0 {
				stream, err = rpcClient.LimitedScan(ctx, util.GetTable(), start, uint64(limit), chunkSize)
			} else {
				stream, err = rpcClient.Scan(ctx, util.GetTable(), start, end, chunkSize)
			}
			if err != nil {
				return err
			}
			defer stream.Close()

			total := 0
			for {
				pairs, err := stream.Next(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				for _, kv := range pairs {
					fmt.Printf("%s=%s\n", kv.Key, kv.Value)
				}
				total += len(pairs)
			}
			fmt.Printf("(%d pairs)\n", total)
			return nil
		},
	}
	openCmd = &cobra.Command{
		Use:   "open",
		Short: "Opens the table, optionally with a tuned configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := db.DefaultTableConfig()
			for _, f := range []struct {
				flag  string
				field *uint64
			}{
				{"cache-bytes", &config.CacheBytes},
				{"block-bytes", &config.BlockBytes},
				{"write-buffer-bytes", &config.WriteBufferBytes},
				{"bloom-bits", &config.BloomFilterBits},
			} {
				v, err := util.ParseSize(viper.GetString(f.flag))
				if err != nil {
					return fmt.Errorf("--%s: %w", f.flag, err)
				}
				*f.field = v
			}
			switch viper.GetString("compression") {
			case "", "default":
			case "on":
				config.Compression = db.CompressionOn
			case "off":
				config.Compression = db.CompressionOff
			default:
				return fmt.Errorf("invalid compression %q (expected default, on or off)", viper.GetString("compression"))
			}

			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.OpenTable(ctx, util.GetTable(), config); err != nil {
				return err
			}
			fmt.Printf("table %d open (%s)\n", util.GetTable(), config)
			return nil
		},
	}
	closeCmd = &cobra.Command{
		Use:   "close",
		Short: "Flushes and closes the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.CloseTable(ctx, util.GetTable()); err != nil {
				return err
			}
			fmt.Printf("table %d closed\n", util.GetTable())
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the parameters and statistics of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			info, err := rpcClient.TableInfo(ctx, util.GetTable())
			if err != nil {
				return err
			}
			for _, p := range info {
				fmt.Printf("%-20s %s\n", p[0], p[1])
			}
			return nil
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact [start] [end]",
		Short: "Compacts [start, end) of the table, missing bounds are open",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := rangeArgs(args)
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.Compact(ctx, util.GetTable(), start, end); err != nil {
				return err
			}
			fmt.Println("compact successfully")
			return nil
		},
	}
	truncateCmd = &cobra.Command{
		Use:   "truncate",
		Short: "Deletes every key of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			if err := rpcClient.Truncate(ctx, util.GetTable()); err != nil {
				return err
			}
			fmt.Println("truncate successfully")
			return nil
		},
	}
	serverInfoCmd = &cobra.Command{
		Use:   "server-info",
		Short: "Prints the version and the features of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.RequestContext()
			defer cancel()
			features, version, err := rpcClient.ServerInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("version=%s, features=%#x\n", version, uint64(features))
			for _, f := range []struct {
				name string
				bit  db.Feature
			}{
				{"on-the-fly-table-open", db.FeatureOnTheFlyTableOpen},
				{"passive-scan-jobs", db.FeaturePassiveScanJobs},
				{"delete-range", db.FeatureDeleteRange},
				{"compaction", db.FeatureCompaction},
				{"http-frontend", db.FeatureHTTPFrontend},
			} {
				fmt.Printf("  %-22s %t\n", f.name, features&f.bit != 0)
			}
			return nil
		},
	}
)

func init() {
	scanCmd.Flags().Uint32("chunk-size", 0, util.WrapString("Pairs per chunk, 0 = server default"))
	scanCmd.Flags().Int64("limit", -1, util.WrapString("Stream at most limit pairs from start (LimitedScan), -1 = no limit"))

	openCmd.Flags().String("cache-bytes", "default", util.WrapString("Block cache size in bytes"))
	openCmd.Flags().String("block-bytes", "default", util.WrapString("Data block size in bytes"))
	openCmd.Flags().String("write-buffer-bytes", "default", util.WrapString("Memtable size in bytes"))
	openCmd.Flags().String("bloom-bits", "default", util.WrapString("Bloom filter bits per key"))
	openCmd.Flags().String("compression", "default", util.WrapString("Block compression (default, on, off)"))
}
