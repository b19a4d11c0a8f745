package main

import (
	"bufio"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/model"
)

var (
	recalcCRNs        []string
	recalcFile        string
	recalcKind        string
	recalcEventType   string
	recalcEnqueue     bool
	recalcConcurrency int
	recalcFormat      string
)

var recalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Recalculate tiers for one or more subjects",
	Long:  "Recalculates tiers in-process, or with --enqueue publishes triggers for the consume workers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		crns := append([]string(nil), recalcCRNs...)
		if recalcFile != "" {
			f, err := os.Open(recalcFile)
			if err != nil {
				return eris.Wrap(err, "open crn file")
			}
			fromFile, err := readCRNs(f)
			f.Close() //nolint:errcheck
			if err != nil {
				return err
			}
			crns = append(crns, fromFile...)
		}
		crns = dedupe(crns)
		if len(crns) == 0 {
			return eris.New("no crns given (use --crn or --file)")
		}

		src, err := parseSource(recalcKind, recalcEventType, len(crns))
		if err != nil {
			return err
		}

		if recalcEnqueue {
			if err := cfg.Validate("store"); err != nil {
				return err
			}
			rdb, err := initRedis(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close() //nolint:errcheck

			triggers := make([]events.Trigger, 0, len(crns))
			now := time.Now()
			for _, crn := range crns {
				triggers = append(triggers, events.NewTrigger(crn, src, now))
			}
			n, err := events.NewPublisher(rdb, cfg.Queue.Stream, cfg.Queue.MaxLen).PublishMany(ctx, triggers)
			if err != nil {
				return err
			}
			zap.L().Info("triggers enqueued", zap.Int("count", n), zap.String("stream", cfg.Queue.Stream))
			return nil
		}

		env, err := initEngine(ctx, "recalculate", false)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := recalcConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		report := env.Service.RecalculateMany(ctx, crns, src, concurrency)
		if err := render(cmd.OutOrStdout(), recalcFormat, report); err != nil {
			return err
		}
		if report.Failed > 0 {
			return eris.Errorf("%d of %d recalculations failed", report.Failed, report.Total)
		}
		return nil
	},
}

// parseSource maps the --kind flag onto a recalculation source. An empty
// kind is on-demand for a single subject and limited otherwise.
func parseSource(kind, eventType string, n int) (model.RecalculationSource, error) {
	switch strings.ToLower(strings.ReplaceAll(kind, "_", "-")) {
	case "":
		if n == 1 {
			return model.OnDemandRecalculation{}, nil
		}
		return model.LimitedRecalculation{}, nil
	case "full":
		return model.FullRecalculation{}, nil
	case "limited":
		return model.LimitedRecalculation{}, nil
	case "on-demand":
		return model.OnDemandRecalculation{}, nil
	case "domain-event":
		if eventType == "" {
			return nil, eris.New("--event-type is required for domain-event")
		}
		return model.DomainEventRecalculation{Type: eventType}, nil
	case "other":
		return model.OtherRecalculation{Type: eventType}, nil
	default:
		return nil, eris.Errorf("unknown kind %q (full, limited, on-demand, domain-event, other)", kind)
	}
}

// readCRNs reads one crn per line, taking the first comma-separated field.
// Blank lines, # comments, and a "crn" header are skipped.
func readCRNs(r io.Reader) ([]string, error) {
	var crns []string
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		crn, _, _ := strings.Cut(line, ",")
		crn = strings.TrimSpace(crn)
		if first && strings.EqualFold(crn, "crn") {
			first = false
			continue
		}
		first = false
		if crn != "" {
			crns = append(crns, crn)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read crns")
	}
	return crns, nil
}

func dedupe(crns []string) []string {
	seen := make(map[string]bool, len(crns))
	out := crns[:0]
	for _, c := range crns {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func init() {
	recalculateCmd.Flags().StringSliceVar(&recalcCRNs, "crn", nil, "crn to recalculate (repeatable)")
	recalculateCmd.Flags().StringVar(&recalcFile, "file", "", "file with one crn per line")
	recalculateCmd.Flags().StringVar(&recalcKind, "kind", "", "recalculation kind: full, limited, on-demand, domain-event, other")
	recalculateCmd.Flags().StringVar(&recalcEventType, "event-type", "", "event type for domain-event and other kinds")
	recalculateCmd.Flags().BoolVar(&recalcEnqueue, "enqueue", false, "publish triggers instead of recalculating in-process")
	recalculateCmd.Flags().IntVar(&recalcConcurrency, "concurrency", 0, "parallel recalculations (default from config)")
	recalculateCmd.Flags().StringVarP(&recalcFormat, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(recalculateCmd)
}
