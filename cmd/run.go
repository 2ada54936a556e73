package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kathiravelulab/atlastrace/modules/export"
	"github.com/kathiravelulab/atlastrace/modules/metrics"
	"github.com/kathiravelulab/atlastrace/modules/pipeline"
	"github.com/kathiravelulab/atlastrace/modules/retrieval"
	"github.com/kathiravelulab/atlastrace/modules/retrieval/client"
	"github.com/kathiravelulab/atlastrace/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis pipeline",
	Long: `Downloads the measurement results and probe history named in
AtlasTraceConfig.yml (reusing cached raw files and, when configured, the
normalized snapshot), builds the normalized table and prints the derived
per-probe metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		defer log.Sync() // nolint: errcheck

		cfg, err := types.LoadConfig(configFile)
		if err != nil {
			log.Fatalf("loading %s: %v", configFile, err)
		}

		atlasClient := client.NewAtlasClient(os.Getenv("RIPE_ATLAS_API_KEY"))
		service := retrieval.NewService(atlasClient, cfg.DataDir, log)

		start, stop, err := service.Window(cfg)
		if err != nil {
			log.Fatalf("resolving measurement window: %v", err)
		}
		log.Infow("analysis window resolved", "start", start, "stop", stop)

		result, err := pipeline.New(cfg, log).Run(&rawSource{
			cfg:     cfg,
			service: service,
			start:   start,
			stop:    stop,
		}, start, stop)
		if err != nil {
			log.Fatalf("pipeline failed: %v", err)
		}

		printMetrics(result.Records, result.Summary)
		printConnections(result.Connections)

		if cfg.Export.SQLitePath != "" {
			if err := exportMetrics(cfg, result); err != nil {
				log.Fatalf("exporting metrics: %v", err)
			}
			log.Infow("metrics exported", "path", cfg.Export.SQLitePath)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// rawSource adapts the retrieval service to the pipeline's lazy raw-record
// interface.
type rawSource struct {
	cfg         *types.PipelineConfig
	service     *retrieval.Service
	start, stop int64
}

func (s *rawSource) Results() ([]types.TracerouteResult, error) {
	return s.service.Results(s.cfg, s.start, s.stop)
}

func (s *rawSource) ProbeHistory() ([]types.ProbeMetadata, error) {
	return s.service.ProbeHistory(s.cfg, s.start, s.stop)
}

func fmtF64(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func printMetrics(records []metrics.ProbeMetrics, summary metrics.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBE\tCOUNTRY\tCONTINENT\tROUNDS\tREACH\tMEDIAN HOPS\tPATHS\tCHANGES")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ProbeID, r.Country, r.Continent, r.Rounds,
			fmtF64(r.Reachability), fmtF64(r.MedianFinalHop),
			fmtInt(r.DistinctPaths), fmtInt(r.PathChanges))
	}
	w.Flush()

	fmt.Printf("\n%d probes, %d with rounds, %d rounds total",
		summary.Probes, summary.ProbesWithRounds, summary.TotalRounds)
	if summary.MeanReachability != nil {
		fmt.Printf(", mean reachability %.3f, mean path changes %.2f",
			*summary.MeanReachability, *summary.MeanPathChanges)
	}
	fmt.Println()
}

func printConnections(breakdowns []metrics.ConnectionBreakdown) {
	fmt.Println("\nConnection history over the window:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBE\tTARGET NET\tOTHER NET\tDISCONNECTED\tGATEWAY ADDRS")
	for _, b := range breakdowns {
		fmt.Fprintf(w, "%d\t%.1f%%\t%.1f%%\t%.1f%%\t%s\n",
			b.ProbeID,
			b.TargetFraction*100, b.OtherFraction*100, b.DisconnectedFraction*100,
			strings.Join(b.GatewayAddrs, ","))
	}
	w.Flush()
}

func exportMetrics(cfg *types.PipelineConfig, result *pipeline.Result) error {
	var exporter export.Exporter = export.NewSQLiteExporter(cfg.Export.SQLitePath)
	if err := exporter.Init(); err != nil {
		return err
	}
	defer exporter.Close()

	for _, record := range result.Records {
		if err := exporter.WriteProbeMetrics(record); err != nil {
			return err
		}
	}
	return exporter.WriteSummary(result.Summary)
}
