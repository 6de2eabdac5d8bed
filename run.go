package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"
	"golang.org/x/sync/errgroup"

	"github.com/siegeai/jch/capture"
	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/pipeline"
	"github.com/siegeai/jch/publish"
	"github.com/siegeai/jch/schema"
	"github.com/siegeai/jch/sender"
	"github.com/siegeai/jch/server"
	"github.com/siegeai/jch/shred"
	"github.com/siegeai/jch/valuer"
)

func (o *options) config() (pipeline.Config, error) {
	mode, err := pipeline.ParseMode(o.mode)
	if err != nil {
		return pipeline.Config{}, err
	}
	policy, err := handler.ParsePolicy(o.policy)
	if err != nil {
		return pipeline.Config{}, err
	}
	hopts := []handler.Option{handler.WithMaxDepth(o.maxDepth), handler.WithErrorPolicy(policy)}
	if o.ndjson {
		hopts = append(hopts, handler.WithMultipleDocuments())
	}
	return pipeline.Config{Mode: mode, Capacity: o.capacity, Handler: hopts}, nil
}

// withSource opens name, or stdin for "" and "-", as a token source.
func (o *options) withSource(cmd *cobra.Command, name string, fn func(parser.EventSource) error) error {
	r := cmd.InOrStdin()
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var popts []parser.Option
	if o.ndjson {
		popts = append(popts, parser.WithMultipleDocuments())
	}
	switch o.source {
	case "", "scanner":
		return fn(parser.NewScanner(r, popts...))
	case "decoder":
		return fn(parser.NewDecoderSource(r, popts...))
	}
	return fmt.Errorf("unknown source %q", o.source)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printer[V any](w io.Writer) sender.Sender[V] {
	return sender.Func[V](func(ev sender.Event[V]) error {
		if ev.Kind == sender.Finished {
			return nil
		}
		_, err := fmt.Fprintln(w, ev.String())
		return err
	})
}

// printEvents runs one traversal and prints every event but Finished.
func printEvents[V any](cmd *cobra.Command, o *options, cfg pipeline.Config, args []string, v handler.Visitor[V]) error {
	out := bufio.NewWriter(cmd.OutOrStdout())
	err := o.withSource(cmd, firstArg(args), func(src parser.EventSource) error {
		return pipeline.Run(cmd.Context(), cfg, src, v, printer[V](out))
	})
	return errors.Join(err, out.Flush())
}

func runPlain(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	return printEvents[parser.Token](cmd, o, cfg, args, handler.Plain{Match: handler.ParseMatch(o.match)})
}

func runPaths(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	cfg.Handler = append(cfg.Handler, handler.WithPathEvents())
	return printEvents[struct{}](cmd, o, cfg, args, handler.Paths{})
}

func runValues(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	return printEvents[*fastjson.Value](cmd, o, cfg, args, valuer.Visitor{Match: handler.ParseMatch(o.match)})
}

func runMaterialize(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	m := valuer.NewMaterializer()
	err = o.withSource(cmd, firstArg(args), func(src parser.EventSource) error {
		return pipeline.Run[*fastjson.Value](cmd.Context(), cfg, src, valuer.Visitor{Match: handler.ParseMatch(o.match)}, m)
	})
	for _, e := range m.Errors() {
		slog.Warn("skipped", "event", e)
	}
	if v := m.Result(); v != nil {
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	}
	return err
}

func runSchema(cmd *cobra.Command, o *options, args []string) error {
	format, err := schema.ParseFormat(o.format)
	if err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}
	files := args
	if len(files) == 0 {
		files = []string{"-"}
	}

	total := schema.NewCollector()
	var errs []error
	for _, name := range files {
		c := schema.NewCollector()
		v := schema.Visitor{Match: handler.ParseMatch(o.match)}
		err := o.withSource(cmd, name, func(src parser.EventSource) error {
			return pipeline.Run[schema.SchemaType](cmd.Context(), cfg, src, v, c)
		})
		if err != nil {
			slog.Error("traversal failed", "file", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		total.Merge(c)
	}
	if err := total.Write(cmd.OutOrStdout(), format); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// runQueuedSchema hands raw tokens across the queue and classifies them on
// the consuming side.
func runQueuedSchema(cmd *cobra.Command, o *options, mode pipeline.Mode, args []string) error {
	format, err := schema.ParseFormat(o.format)
	if err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}
	cfg.Mode = mode

	c := schema.NewCollector()
	err = o.withSource(cmd, firstArg(args), func(src parser.EventSource) error {
		return pipeline.Run[parser.Token](cmd.Context(), cfg, src, handler.Plain{Match: handler.ParseMatch(o.match)}, schema.TokenCollector(c))
	})
	if werr := c.Write(cmd.OutOrStdout(), format); werr != nil {
		return werr
	}
	return err
}

func runShred(cmd *cobra.Command, o *options, args []string) error {
	codec, err := shred.ParseCompression(o.compress)
	if err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}

	wopts := []shred.Option{shred.WithMaxOpen(o.maxOpen), shred.WithCompression(codec)}
	if o.manifest {
		wopts = append(wopts, shred.WithManifest())
	}
	w, err := shred.NewWriter(args[0], wopts...)
	if err != nil {
		return err
	}

	v := shred.Packer{Encoder: shred.MsgPack{}, Match: handler.ParseMatch(o.match)}
	err = o.withSource(cmd, firstArg(args[1:]), func(src parser.EventSource) error {
		return pipeline.Run[[]byte](cmd.Context(), cfg, src, v, w)
	})
	err = errors.Join(err, w.Close())

	m := w.Manifest()
	slog.Info("shredded", "dir", args[0], "columns", len(m.Columns), "errors", w.Errors(), "collisions", w.Collisions())
	return err
}

func runServe(cmd *cobra.Command, o *options) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.New(server.Config{Addr: o.addr, Pipeline: cfg})
	return s.ListenAndServe(ctx)
}

func runCapture(cmd *cobra.Command, o *options) error {
	format, err := schema.ParseFormat(o.format)
	if err != nil {
		return err
	}

	var src capture.PacketSource
	if o.pcapFile != "" {
		src, err = capture.NewPacketSourceFile(o.pcapFile, o.filter)
	} else {
		src, err = capture.NewPacketSourceLive(o.device, o.filter)
	}
	if err != nil {
		return fmt.Errorf("could not init packet source: %w", err)
	}

	var client *publish.Client
	if o.publish != "" {
		if client, err = publish.NewClient(getEnv("JCH_APIKEY", ""), o.publish); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := capture.NewListener(src, handler.WithMaxDepth(o.maxDepth))
	runID := uuid.NewString()
	slog.Info("listening", "device", o.device, "filter", o.filter, "run", runID)

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return l.Run(runCtx)
	})
	if client != nil {
		g.Go(func() error {
			every := o.publishEvery
			if every <= 0 {
				every = time.Minute
			}
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case <-ticker.C:
					publishDocument(runCtx, client, runID, l)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("capture done", "exchanges", l.Exchanges())

	if client != nil {
		pctx, pcancel := context.WithTimeout(context.Background(), 30*time.Second)
		publishDocument(pctx, client, runID, l)
		pcancel()
	}

	if format == schema.FormatOpenAPI {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(l.Document())
	}
	return l.Report(cmd.OutOrStdout(), format)
}

func publishDocument(ctx context.Context, c *publish.Client, runID string, l *capture.Listener) {
	err := c.Update(ctx, publish.Update{RunID: runID, Exchanges: l.Exchanges(), Document: l.Document()})
	if err != nil {
		slog.Warn("could not publish document", "err", err)
	}
}
