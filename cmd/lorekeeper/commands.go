package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/livesync"
	"github.com/dshills/lorekeeper/pkg/types"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <campaign-id> [query]",
	Short: "Search a campaign's knowledge catalog",
	Long: `Search a campaign's knowledge catalog and print the ranked results as JSON.

Examples:
  lorekeeper search c1 "evil wizard" --strategy trigram
  lorekeeper search c1 --category NPCs --sort name --order asc`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		strategy, _ := cmd.Flags().GetString("strategy")
		sortKey, _ := cmd.Flags().GetString("sort")
		order, _ := cmd.Flags().GetString("order")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		filters := types.SearchFilters{
			Category:            category,
			Strategy:            types.StrategyName(strategy),
			SortKey:             types.SortKey(sortKey),
			SortOrder:           types.SortOrder(order),
			SimilarityThreshold: threshold,
		}
		if len(args) == 2 {
			filters.QueryText = args[1]
		}

		a, _, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Search(cmd.Context(), args[0], filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a session transcript",
	Long: `Print a session transcript and follow it as entries are posted.

Each line is one message as JSON. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sessionID := args[0]

		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		printed := make(map[string]struct{})
		updates := make(chan []types.SessionMessage, 16)

		unsubscribe := a.Messages.OnUpdate(sessionID, func(msgs []types.SessionMessage) {
			select {
			case updates <- msgs:
			default:
			}
		})
		defer unsubscribe()

		w, err := a.WatchSession(sessionID)
		if err != nil {
			return err
		}

		var last livesync.State
		tick := time.NewTicker(time.Second)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-w.Done():
				return fmt.Errorf("watch for session %s stopped", sessionID)
			case msgs := <-updates:
				for _, m := range msgs {
					if _, ok := printed[m.ID]; ok {
						continue
					}
					printed[m.ID] = struct{}{}
					if err := json.NewEncoder(out).Encode(m); err != nil {
						return err
					}
				}
			case <-tick.C:
				if state := w.State(); state != last {
					fmt.Fprintf(cmd.ErrOrStderr(), "watch %s: %s\n", sessionID, state)
					last = state
				}
			}
		}
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load profiles, detail items and messages from a JSON file",
	Long: `Load profiles, detail items and session messages from a JSON file.

Use "-" to read from stdin. Messages that already exist are skipped, so a
file can be applied more than once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening seed file: %w", err)
			}
			defer f.Close()
			r = f
		}

		a, _, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Seed(cmd.Context(), r)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	searchCmd.Flags().String("category", "All", "Category label (NPCs, Locations, Monsters, Quests, Mysteries, Items)")
	searchCmd.Flags().String("strategy", "", "Search strategy (exact, trigram, vector, hybrid); empty uses the configured default")
	searchCmd.Flags().String("sort", "relevance", "Sort key (relevance, created_at, name, updated_at)")
	searchCmd.Flags().String("order", "desc", "Sort direction (asc, desc)")
	searchCmd.Flags().Float64("threshold", 0, "Trigram similarity threshold (0.1-1.0); 0 uses the configured default")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
