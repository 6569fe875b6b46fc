package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	discoverPages int
	tagsRefresh   bool
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <tag...>",
	Short: "Browse releases by tag",
	Long: `Fetch releases from the discovery feed for one or more tags and print
them with their page URLs, ready for "campfire play".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search albums and tracks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

// tagsCmd represents the tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List the tags accepted by discover",
	Long: `List the tags accepted by discover. The list is scraped once and cached
in the data directory; --refresh scrapes it again.`,
	Args: cobra.NoArgs,
	RunE: runTags,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(tagsCmd)

	discoverCmd.Flags().IntVar(&discoverPages, "pages", 0, "Pages to fetch (default: discover.initial_pages)")
	tagsCmd.Flags().BoolVar(&tagsRefresh, "refresh", false, "Scrape the tag list again")
}

// withCatalog builds the engine for a command that only talks to the
// catalog and the store.
func withCatalog(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if discoverPages > 0 {
		cfg.Discover.InitialPages = discoverPages
	}

	a, err := newApp(cfg, setupLogger(logFile, logLevel, false))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// The client makes up to three attempts per request.
	perRequest := 3 * max(cfg.Catalog.Timeout, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), perRequest*time.Duration(max(cfg.Discover.InitialPages, 1)))
	defer cancel()
	return fn(ctx, a)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	return withCatalog(func(ctx context.Context, a *app) error {
		if err := a.session.Discover(ctx, args); err != nil {
			return fmt.Errorf("failed to discover: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, e := range a.session.Feed().Items() {
			fmt.Fprintf(out, "%s  %s  %s\n", padToWidth(e.Title+" - "+e.Artist, 48), padToWidth(e.Genre, 14), e.URL)
		}
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withCatalog(func(ctx context.Context, a *app) error {
		results, err := a.session.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(out, "[%s] %s  %s\n", r.Type, padToWidth(r.Name+" - "+r.BandName, 48), r.URL)
		}
		return nil
	})
}

func runTags(cmd *cobra.Command, args []string) error {
	return withCatalog(func(ctx context.Context, a *app) error {
		tags, err := a.session.Tags(ctx, tagsRefresh)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tag := range tags {
			fmt.Fprintln(out, tag)
		}
		return nil
	})
}
