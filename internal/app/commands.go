package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewbot/internal/qa"
	"reviewbot/internal/review"
	"reviewbot/internal/storage/sqlite"
)

func newClassifyCommand(rt *runtime) *cobra.Command {
	var withTrace bool
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify a ticket payload (JSON file or stdin) and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(args)
			if err != nil {
				return err
			}
			result, trace := qa.ClassifyJSON(data, rt.cfg.QAPolicy())
			rt.log.Debug("classified",
				zap.String("ticket_id", trace.TicketID),
				zap.String("status", string(result.Status)),
				zap.String("rule", string(trace.Rule)))
			if withTrace {
				return rt.printJSON(struct {
					qa.Result
					Trace qa.Trace `json:"trace"`
				}{result, trace})
			}
			return rt.printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&withTrace, "trace", false, "include the classification trace")
	return cmd
}

func newSegmentsCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "segments [file]",
		Short: "Print the last two question/answer segments of a ticket payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(args)
			if err != nil {
				return err
			}
			segments := qa.Segments{Status: qa.StatusIncomplete}
			if tickets := qa.DecodeTickets(data); len(tickets) > 0 {
				segments = qa.ExtractSegments(tickets[0], rt.cfg.QAPolicy())
			}
			return rt.printJSON(segments)
		},
	}
}

func newVerdictCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "verdict [file]",
		Short: "Parse reviewer judgment text into a result code and reason",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(args)
			if err != nil {
				return err
			}
			return rt.printJSON(review.Parse(string(data)))
		},
	}
}

func newStateCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and maintain the processed-issue state",
	}

	var maxAgeDays int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Forget issues last updated longer ago than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rt.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			maxAge := rt.cfg.StateMaxAge()
			if maxAgeDays > 0 {
				maxAge = time.Duration(maxAgeDays) * 24 * time.Hour
			}
			removed, err := store.PruneStaleIssues(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout, "pruned %d issue(s) older than %s\n", removed, maxAge)
			return nil
		},
	}
	prune.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "retention window in days (defaults to state_max_age_days)")

	del := &cobra.Command{
		Use:   "delete <issue-id>",
		Short: "Forget one issue so the next cycle reprocesses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rt.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.DeleteProcessedIssue(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout, "deleted issue %s\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List processed issues with their last seen updated_on and review count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rt.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			issues, err := store.ProcessedIssues()
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(issues))
			for id := range issues {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			for _, id := range ids {
				reviews, err := store.ReviewCount(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(rt.stdout, "%s\t%s\t%d\n", id, issues[id], reviews)
			}
			return nil
		},
	}

	cmd.AddCommand(prune, del, list)
	return cmd
}

func (rt *runtime) openStore() (*sqlite.Store, error) {
	db, err := sqlite.InitDB(rt.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	return sqlite.NewStore(db), nil
}

// readInput reads the named file, or stdin when no file (or "-") is given.
func (rt *runtime) readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(rt.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return data, nil
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
