package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/guarzo/gradearb/internal/bucket"
	"github.com/guarzo/gradearb/internal/engine"
	"github.com/guarzo/gradearb/internal/filter"
	"github.com/guarzo/gradearb/internal/ledger"
	"github.com/guarzo/gradearb/internal/report"
)

// addQueryFlags registers the output flags shared by the query commands.
// Defaults differ per command, so values are read back from each
// command's own flag set.
func addQueryFlags(cmd *cobra.Command, window string, withLimit bool) {
	cmd.Flags().String("format", formatJSON, "output format: json or csv")
	if window != "" {
		cmd.Flags().String("window", window, "trailing window, e.g. 24h, 7d, 30d")
	}
	if withLimit {
		cmd.Flags().Int("limit", 10, "maximum rows (0 for all)")
	}
}

type queryOpts struct {
	format string
	window time.Duration
	limit  int
}

func parseQueryFlags(cmd *cobra.Command) (queryOpts, error) {
	var q queryOpts
	f := cmd.Flags()

	format, _ := f.GetString("format")
	format, err := checkFormat(format)
	if err != nil {
		return q, err
	}
	q.format = format

	if f.Lookup("window") != nil {
		w, _ := f.GetString("window")
		if q.window, err = engine.ParseWindow(w); err != nil {
			return q, err
		}
	}
	if f.Lookup("limit") != nil {
		q.limit, _ = f.GetInt("limit")
	}
	return q, nil
}

var oppFlags struct {
	game, grade, language, listingType, search, sort string
	minROI, maxPrice                                 float64
}

var opportunitiesCmd = &cobra.Command{
	Use:   "opportunities",
	Short: "List active listings priced below their card's floor",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseQueryFlags(cmd)
		if err != nil {
			return err
		}
		order, err := filter.ParseSortOrder(oppFlags.sort)
		if err != nil {
			return err
		}

		e, cleanup, err := newEngine(cmd.Context(), cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		opps, err := e.Opportunities(cmd.Context(), filter.Predicates{
			Game:        oppFlags.game,
			Grade:       oppFlags.grade,
			Language:    oppFlags.language,
			ListingType: oppFlags.listingType,
			Search:      oppFlags.search,
			MinROI:      decimal.NewFromFloat(oppFlags.minROI),
			MaxPrice:    decimal.NewFromFloat(oppFlags.maxPrice),
			Sort:        order,
			Limit:       q.limit,
		})
		if err != nil {
			return err
		}

		if q.format == formatCSV {
			return report.WriteOpportunities(cmd.OutOrStdout(), opps)
		}
		return writeJSON(cmd.OutOrStdout(), opps)
	},
}

var historyFlags struct {
	width string
	set   bool
}

var historyCmd = &cobra.Command{
	Use:   "history <card-id | set-name>",
	Short: "Bucketed price history with a summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseQueryFlags(cmd)
		if err != nil {
			return err
		}
		width, err := bucket.ParseWidth(historyFlags.width)
		if err != nil {
			return err
		}

		e, cleanup, err := newEngine(cmd.Context(), cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		var h *engine.History
		if historyFlags.set {
			h, err = e.PriceHistoryFor(cmd.Context(), ledger.ForSet(args[0]), q.window, width)
		} else {
			h, err = e.PriceHistory(cmd.Context(), args[0], q.window, width)
		}
		if err != nil {
			return err
		}

		if q.format == formatCSV {
			return report.WriteHistory(cmd.OutOrStdout(), h)
		}
		return writeJSON(cmd.OutOrStdout(), h)
	},
}

var moversCmd = &cobra.Command{
	Use:   "movers",
	Short: "Cards ranked by absolute price change over a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseQueryFlags(cmd)
		if err != nil {
			return err
		}
		e, cleanup, err := newEngine(cmd.Context(), cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		movers, err := e.TopMovers(cmd.Context(), q.window, q.limit)
		if err != nil {
			return err
		}
		if q.format == formatCSV {
			return report.WriteMovers(cmd.OutOrStdout(), movers)
		}
		return writeJSON(cmd.OutOrStdout(), movers)
	},
}

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Cards whose recent sales volume outpaces their baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseQueryFlags(cmd)
		if err != nil {
			return err
		}
		e, cleanup, err := newEngine(cmd.Context(), cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		cards, err := e.TrendingCards(cmd.Context(), q.window, q.limit)
		if err != nil {
			return err
		}
		if q.format == formatCSV {
			return report.WriteTrending(cmd.OutOrStdout(), cards)
		}
		return writeJSON(cmd.OutOrStdout(), cards)
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Market-wide volume and per-language statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseQueryFlags(cmd)
		if err != nil {
			return err
		}
		if q.format != formatJSON {
			return fmt.Errorf("overview supports json output only")
		}

		e, cleanup, err := newEngine(cmd.Context(), cfg)
		defer cleanup()
		if err != nil {
			return err
		}

		ov, err := e.MarketOverview(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), ov)
	},
}

func init() {
	f := opportunitiesCmd.Flags()
	f.StringVar(&oppFlags.game, "game", filter.All, "game, or all")
	f.StringVar(&oppFlags.grade, "grade", filter.All, "grade such as \"PSA 10\", or all")
	f.StringVar(&oppFlags.language, "language", filter.All, "language code, or all")
	f.StringVar(&oppFlags.listingType, "type", filter.All, "listing type (Auction, Buy Now), or all")
	f.StringVar(&oppFlags.search, "search", "", "case-insensitive card name substring")
	f.StringVar(&oppFlags.sort, "sort", string(filter.SortMargin), "margin, net_profit, price_asc, price_desc or none")
	f.Float64Var(&oppFlags.minROI, "min-roi", 0, "minimum ROI in percent")
	f.Float64Var(&oppFlags.maxPrice, "max-price", 0, "maximum listing price (0 for no limit)")
	addQueryFlags(opportunitiesCmd, "", true)

	historyCmd.Flags().StringVar(&historyFlags.width, "width", "daily", "bucket width: daily or weekly")
	historyCmd.Flags().BoolVar(&historyFlags.set, "set", false, "treat the argument as a set name")
	addQueryFlags(historyCmd, "30d", false)

	addQueryFlags(moversCmd, "24h", true)
	addQueryFlags(trendingCmd, "7d", true)
	addQueryFlags(overviewCmd, "", false)

	rootCmd.AddCommand(opportunitiesCmd, historyCmd, moversCmd, trendingCmd, overviewCmd)
}
