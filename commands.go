package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/pipeline"
	"github.com/siegeai/jch/shred"
)

type options struct {
	logLevel string
	policy   string
	maxDepth int
	mode     string
	capacity int
	match    string
	ndjson   bool
	source   string

	format string

	compress string
	maxOpen  int
	manifest bool

	addr string

	device   string
	filter   string
	pcapFile string

	publish      string
	publishEvery time.Duration
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "jch",
		Short: "Stream JSON documents into paths, values, schemas and column files",
		Long: `jch walks JSON of any size as a token stream. It never builds the
document in memory and reports every leaf by its path.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(o.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", getEnv("JCH_LOG", "info"), "log level: debug, info, warn, error")
	pf.StringVar(&o.policy, "policy", getEnv("JCH_POLICY", "halt"), "what to do after a syntax error: halt or continue")
	pf.IntVar(&o.maxDepth, "max-depth", getEnvInt("JCH_MAX_DEPTH", handler.DefaultMaxDepth), "maximum container nesting")
	pf.StringVar(&o.mode, "mode", getEnv("JCH_MODE", string(pipeline.Direct)), "delivery: direct, channel or ring")
	pf.IntVar(&o.capacity, "capacity", getEnvInt("JCH_CAPACITY", pipeline.DefaultCapacity), "queue capacity for channel and ring delivery")
	pf.StringVar(&o.match, "match", "", "only report leaves below this slash separated key prefix")
	pf.BoolVar(&o.ndjson, "ndjson", false, "read a stream of top-level values")
	pf.StringVar(&o.source, "source", "scanner", "token source: scanner or decoder")

	schemaCmd := &cobra.Command{
		Use:   "schema [file...]",
		Short: "Print the type schema of every path",
		Long: `Aggregates the types seen at every canonical path. Array indices
collapse to [], so all elements of an array share one entry. Several files
are traversed separately and merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, o, args)
		},
	}
	schemaCmd.Flags().StringVar(&o.format, "format", "text", "report format: text, json, yaml or openapi")

	plainCmd := &cobra.Command{
		Use:   "plain [file]",
		Short: "Print every leaf token with its path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlain(cmd, o, args)
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths [file]",
		Short: "Print the depth and path of every leaf",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths(cmd, o, args)
		},
	}

	valuesCmd := &cobra.Command{
		Use:   "values [file]",
		Short: "Print every leaf as a generic JSON value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValues(cmd, o, args)
		},
	}

	materializeCmd := &cobra.Command{
		Use:   "materialize [file]",
		Short: "Rebuild the document from its leaves",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(cmd, o, args)
		},
	}

	channelsCmd := &cobra.Command{
		Use:   "channels [file]",
		Short: "Schema with raw tokens classified behind a bounded channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueuedSchema(cmd, o, pipeline.Channel, args)
		},
	}
	channelsCmd.Flags().StringVar(&o.format, "format", "text", "report format: text, json, yaml or openapi")

	ringCmd := &cobra.Command{
		Use:   "ringbuffer [file]",
		Short: "Schema with raw tokens classified behind a lock-free ring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueuedSchema(cmd, o, pipeline.Ring, args)
		},
	}
	ringCmd.Flags().StringVar(&o.format, "format", "text", "report format: text, json, yaml or openapi")

	shredCmd := &cobra.Command{
		Use:   "shred DIR [file]",
		Short: "Write every leaf to one MessagePack column file per path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShred(cmd, o, args)
		},
	}
	shredCmd.Flags().StringVar(&o.compress, "compress", "none", "column compression: none, s2, zstd or lz4")
	shredCmd.Flags().IntVar(&o.maxOpen, "max-open", shred.DefaultMaxOpen, "column files held open at once")
	shredCmd.Flags().BoolVar(&o.manifest, "manifest", false, "write manifest.json next to the columns")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve schema reports over http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o)
		},
	}
	serveCmd.Flags().StringVar(&o.addr, "addr", getEnv("JCH_ADDR", ":8080"), "listen address")

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Infer schemas of json bodies in captured http traffic",
		Long: `Sniffs http traffic, pairs requests with responses and folds their
json bodies into one schema keyed by method and route. The report is printed
on interrupt or at the end of a pcap file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, o)
		},
	}
	captureCmd.Flags().StringVar(&o.device, "device", getEnv("JCH_DEVICE", "lo"), "interface to capture on")
	captureCmd.Flags().StringVar(&o.filter, "filter", getEnv("JCH_FILTER", "tcp and port 80"), "bpf filter")
	captureCmd.Flags().StringVar(&o.pcapFile, "file", "", "read packets from a pcap dump instead of a device")
	captureCmd.Flags().StringVar(&o.format, "format", "text", "report format: text, json, yaml or openapi")
	captureCmd.Flags().StringVar(&o.publish, "publish", getEnv("JCH_PUBLISH", ""), "server to push the openapi document to")
	captureCmd.Flags().DurationVar(&o.publishEvery, "publish-every", time.Minute, "how often to push while capturing")

	root.AddCommand(schemaCmd, plainCmd, pathsCmd, valuesCmd, materializeCmd,
		channelsCmd, ringCmd, shredCmd, serveCmd, captureCmd)
	return root
}
