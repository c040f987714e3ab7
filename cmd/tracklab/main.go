// Command tracklab is a small CLI over the tracking client: manage
// experiments and runs, log values, and print run tables from any backend
// the tracking URI can reach.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/runtable"
	"github.com/tracklab-io/tracklab/tracking"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() error {
	fmt.Fprintln(os.Stderr, `usage: tracklab <command> [flags]

commands:
  experiments            list experiments
  create-experiment      create an experiment
  create-run             start a run in an experiment
  get-run                show one run
  log-metric             log a metric point to a run
  log-param              log a parameter to a run
  set-tag                set a tag on a run
  finish-run             mark a run finished
  search                 search runs and print the pivoted table

The backend comes from -tracking-uri, $TRACKLAB_TRACKING_URI, or the
config file.`)
	return fmt.Errorf("missing or unknown command")
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage()
	}
	command, args := args[0], args[1:]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	trackingURI := fs.String("tracking-uri", "", "tracking backend URI (mem://, postgres://, http://)")

	switch command {
	case "experiments":
		view := fs.String("view", string(domain.ViewActiveOnly), "lifecycle view: ACTIVE_ONLY, DELETED_ONLY, ALL")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			experiments, err := c.ListExperiments(ctx, domain.ViewType(*view))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTAGE\tARTIFACT LOCATION")
			for _, exp := range experiments {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", exp.ExperimentID, exp.Name, exp.LifecycleStage, exp.ArtifactLocation)
			}
			return tw.Flush()
		})

	case "create-experiment":
		name := fs.String("name", "", "experiment name")
		location := fs.String("artifact-location", "", "artifact location URI (optional)")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			id, err := c.CreateExperiment(ctx, *name, *location)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})

	case "create-run":
		experimentID := fs.String("experiment", "", "experiment id")
		runName := fs.String("name", "", "run name (optional)")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			var tags map[string]string
			if *runName != "" {
				tags = map[string]string{domain.TagRunName: *runName}
			}
			run, err := c.CreateRun(ctx, *experimentID, 0, tags)
			if err != nil {
				return err
			}
			fmt.Println(run.Info.RunID)
			return nil
		})

	case "get-run":
		runID := fs.String("run", "", "run id")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			run, err := c.GetRun(ctx, *runID)
			if err != nil {
				return err
			}
			printRun(run)
			return nil
		})

	case "log-metric":
		runID := fs.String("run", "", "run id")
		key := fs.String("key", "", "metric key")
		value := fs.Float64("value", 0, "metric value")
		step := fs.Int64("step", 0, "training step")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			return c.LogMetric(ctx, *runID, *key, *value, 0, *step)
		})

	case "log-param":
		runID := fs.String("run", "", "run id")
		key := fs.String("key", "", "param key")
		value := fs.String("value", "", "param value")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			return c.LogParam(ctx, *runID, *key, *value)
		})

	case "set-tag":
		runID := fs.String("run", "", "run id")
		key := fs.String("key", "", "tag key")
		value := fs.String("value", "", "tag value")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			return c.SetTag(ctx, *runID, *key, *value)
		})

	case "finish-run":
		runID := fs.String("run", "", "run id")
		status := fs.String("status", "", "final status (default FINISHED)")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			_, err := c.SetTerminated(ctx, *runID, domain.RunStatus(*status), 0)
			return err
		})

	case "search":
		experiments := fs.String("experiments", "", "comma-separated experiment ids")
		filter := fs.String("filter", "", `filter expression, e.g. "metrics.loss < 1"`)
		view := fs.String("view", string(domain.ViewActiveOnly), "lifecycle view")
		max := fs.Int("max-results", 0, "result cap (0 = backend default)")
		orderBy := fs.String("order-by", "", "comma-separated order-by clauses")
		fs.Parse(args)
		return withClient(ctx, *trackingURI, func(c *tracking.Client) error {
			table, err := c.SearchRunsTable(
				ctx,
				splitComma(*experiments),
				*filter,
				domain.ViewType(*view),
				*max,
				splitComma(*orderBy),
			)
			if err != nil {
				return err
			}
			printTable(table)
			return nil
		})

	default:
		return usage()
	}
}

func withClient(ctx context.Context, trackingURI string, fn func(*tracking.Client) error) error {
	client, err := tracking.NewClient(ctx, trackingURI)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printRun(run domain.Run) {
	fmt.Printf("run_id:        %s\n", run.Info.RunID)
	fmt.Printf("experiment_id: %s\n", run.Info.ExperimentID)
	fmt.Printf("user_id:       %s\n", run.Info.UserID)
	fmt.Printf("status:        %s\n", run.Info.Status)
	fmt.Printf("artifact_uri:  %s\n", run.Info.ArtifactURI)
	printSection("params", run.Data.Params)
	printSection("tags", run.Data.Tags)
	if len(run.Data.Metrics) > 0 {
		fmt.Println("metrics:")
		keys := make([]string, 0, len(run.Data.Metrics))
		for k := range run.Data.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", k, run.Data.Metrics[k])
		}
	}
}

func printSection(name string, values map[string]string) {
	if len(values) == 0 {
		return
	}
	fmt.Printf("%s:\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, values[k])
	}
}

func printTable(table *runtable.Table) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	columns := table.Columns()
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	for i := 0; i < table.NumRows(); i++ {
		row := table.Row(i)
		cells := make([]string, len(columns))
		for j, col := range columns {
			if row[col] == nil {
				cells[j] = ""
				continue
			}
			cells[j] = fmt.Sprintf("%v", row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}
