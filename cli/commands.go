package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/rushteam/persona/app"
	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/ingest"
)

func serveCommand() *cli.Command {
	var cfg globalConfig
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the periodic aggregation scheduler",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			conf, err := cfg.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, conf)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

func aggregateCommand() *cli.Command {
	var (
		cfg    globalConfig
		userID int64
	)
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to aggregate; omit to aggregate every user with interactions",
			Destination: &userID,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "aggregate",
		Usage: "Recompute user interest embeddings",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID != 0 {
				res, err := a.Aggregator.Aggregate(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.Root().Writer, res.Message())
				return nil
			}
			sum, err := a.Batch.RunAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, sum)
		},
	}
}

func similarCommand() *cli.Command {
	var (
		cfg    globalConfig
		userID int64
		limit  int64
	)
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID",
			Required:    true,
			Destination: &userID,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Number of articles (1-50)",
			Value:       core.DefaultSimilarLimit,
			Destination: &limit,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "similar",
		Usage: "List the articles closest to a user's interest embedding",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.Recommender.FindSimilar(ctx, userID, int(limit))
			if err != nil {
				return err
			}
			return printArticles(c, items)
		},
	}
}

func recommendCommand() *cli.Command {
	var (
		cfg    globalConfig
		userID int64
		mode   string
	)
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID",
			Required:    true,
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "mode",
			Aliases:     []string{"m"},
			Usage:       "unread or time",
			Value:       "unread",
			Destination: &mode,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "recommend",
		Usage: "Recommend unread articles, optionally limited to recent ones",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var items []*core.ScoredArticle
			switch mode {
			case "unread":
				items, err = a.Recommender.RecommendUnread(ctx, userID)
			case "time":
				items, err = a.Recommender.TimeBased(ctx, userID)
			default:
				return fmt.Errorf("unknown mode %q (want unread or time)", mode)
			}
			if err != nil {
				return err
			}
			return printArticles(c, items)
		},
	}
}

func searchCommand() *cli.Command {
	var (
		cfg    globalConfig
		userID int64
	)
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Requesting user ID (0 for anonymous)",
			Destination: &userID,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Semantic search over articles and users",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}
			a, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Search.SearchAll(ctx, query, userID)
			if err != nil {
				return err
			}
			w := c.Root().Writer
			for _, u := range res.Users {
				fmt.Fprintf(w, "user  %d\t%s\n", u.UserID, u.Username)
			}
			for i, it := range res.Articles {
				fmt.Fprintf(w, "%2d. %s\tscore=%.4f similarity=%.4f popularity=%d\n",
					i+1, it.ArticleID, it.CompositeScore, it.Similarity, it.Popularity)
			}
			return nil
		},
	}
}

func ingestCommand() *cli.Command {
	var (
		cfg   globalConfig
		input string
	)
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSON file: an array of {id, title, text} or {\"articles\": [...]}",
			Required:    true,
			Destination: &input,
		},
	}, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Embed articles and store their title/text vectors",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			articles, err := readArticles(input)
			if err != nil {
				return err
			}
			a, err := cfg.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Ingest.ProcessBatch(ctx, articles)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, res)
		},
	}
}

func readArticles(path string) ([]ingest.RawArticle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var list []ingest.RawArticle
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Articles []ingest.RawArticle `json:"articles"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return wrapped.Articles, nil
}

func printArticles(c *cli.Command, items []*core.ScoredArticle) error {
	w := c.Root().Writer
	if len(items) == 0 {
		fmt.Fprintln(w, "No articles found")
		return nil
	}
	for i, it := range items {
		fmt.Fprintf(w, "%2d. %s\tsimilarity=%.4f\n", i+1, it.ArticleID, it.Similarity)
	}
	return nil
}
