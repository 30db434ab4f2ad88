// Package main provides the CLI entry point for next-review.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cli/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nextreview/next-review/internal/config"
	"github.com/nextreview/next-review/internal/gerrit"
	"github.com/nextreview/next-review/internal/review"
	"github.com/nextreview/next-review/internal/reviewday"
	"github.com/nextreview/next-review/internal/terminal"
)

var (
	configFile    string
	configSection string
	host          string
	port          int
	username      string
	email         string
	keyPath       string
	listAll       bool
	noDownvotes   bool
	noPlusTwo     bool
	onlyPlusOne   bool
	onlyPlusTwo   bool
	ignoreFile    string
	verifiedBots  []string
	verifyPolicy  string
	noScores      bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "next-review [flags] [project ...]",
		Short: "Start your next gerrit code review without any hassle",
		Long: `Query gerrit for the code review most in need of attention and open it,
so picking what to review next takes zero navigation.

The exit code is the number of reviews that matched; 0 means nothing to
review.`,
		RunE:          runNextReview,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildVersionString(),
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Configuration flags (resolved via config.Resolve with precedence:
	// flag > env > config file > default)
	rootCmd.Flags().StringVarP(&configFile, "config-file", "f", defaultConfigPath(),
		"Path to configuration file")
	rootCmd.Flags().StringVarP(&configSection, "config-section", "s", "",
		"Config file section to use when multiple gerrit servers are configured")
	rootCmd.Flags().StringVarP(&host, "host", "H", config.Defaults.Host,
		"SSH hostname for gerrit (env: NEXT_REVIEW_HOST)")
	rootCmd.Flags().IntVarP(&port, "port", "p", config.Defaults.Port,
		"SSH port for gerrit (env: NEXT_REVIEW_PORT)")
	rootCmd.Flags().StringVarP(&username, "username", "u", "",
		"Your SSH username for gerrit (default: OS username, env: NEXT_REVIEW_USERNAME)")
	rootCmd.Flags().StringVarP(&email, "email", "e", "",
		"Your email address for gerrit (env: NEXT_REVIEW_EMAIL)")
	rootCmd.Flags().StringVarP(&keyPath, "key", "k", "",
		"Path to your SSH private key for gerrit (env: NEXT_REVIEW_KEY)")

	rootCmd.Flags().BoolVarP(&listAll, "list", "l", false,
		"List recommended reviews in order of descending priority instead of opening one")
	rootCmd.Flags().StringVar(&ignoreFile, "ignore-file", "",
		"File containing a whitespace-separated list of review URLs to ignore")

	// Vote-threshold filters
	rootCmd.Flags().BoolVarP(&noDownvotes, "no-downvotes", "n", false,
		"Ignore reviews that have a downvote from anyone")
	rootCmd.Flags().BoolVarP(&noPlusTwo, "no-plus-two", "t", false,
		"Ignore reviews that already have a +2 from anyone")
	rootCmd.Flags().BoolVarP(&onlyPlusOne, "only-plus-one", "1", false,
		"Only show reviews that have an upvote from anyone")
	rootCmd.Flags().BoolVarP(&onlyPlusTwo, "only-plus-two", "2", false,
		"Only show reviews that have a +2 from a human")
	rootCmd.MarkFlagsMutuallyExclusive("no-plus-two", "only-plus-one", "only-plus-two")

	// Verification bot policy
	rootCmd.Flags().StringSliceVar(&verifiedBots, "verified-bot", []string{"zuul", "jenkins", "smokestack"},
		"CI account(s) whose Verified votes are interpreted by --verified-policy")
	rootCmd.Flags().StringVar(&verifyPolicy, "verified-policy", "require",
		"How to treat CI votes: 'require' (need a +1) or 'lenient' (only reject a -1)")
	rootCmd.Flags().BoolVar(&noScores, "no-scores", false,
		"Skip the reviewday priority scores and rank by age alone")

	if err := rootCmd.Execute(); err != nil {
		var pending pendingReviewsError
		if errors.As(err, &pending) {
			return pending.count
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

func runNextReview(cmd *cobra.Command, args []string) error {
	terminal.SetupColors()
	logger := terminal.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := parseVerifyPolicy(verifyPolicy)
	if err != nil {
		return err
	}

	loaded, err := config.Load(configFile, configSection)
	if err != nil {
		return err
	}
	for _, warning := range loaded.Warnings {
		logger.Logf(terminal.StyleWarning, "Warning: %s", warning)
	}

	flagState := config.FlagState{
		HostSet:        cmd.Flags().Changed("host"),
		PortSet:        cmd.Flags().Changed("port"),
		UsernameSet:    cmd.Flags().Changed("username"),
		EmailSet:       cmd.Flags().Changed("email"),
		KeySet:         cmd.Flags().Changed("key"),
		ProjectsSet:    len(args) > 0,
		NoDownvotesSet: cmd.Flags().Changed("no-downvotes"),
	}
	flagValues := config.Resolved{
		Host:        host,
		Port:        port,
		Username:    username,
		Email:       email,
		Key:         keyPath,
		Projects:    args,
		NoDownvotes: noDownvotes,
	}

	resolved := config.Resolve(loaded.Config, config.LoadEnvState(), flagState, flagValues)

	if err := config.MergeSSHConfig(&resolved); err != nil {
		logger.Logf(terminal.StyleWarning, "Warning: skipping unreadable ~/.ssh/config: %v", err)
	}
	if resolved.Username == "" {
		if current, err := user.Current(); err == nil {
			resolved.Username = current.Username
		}
	}

	var ignoreURLs []string
	if ignoreFile != "" {
		data, err := os.ReadFile(ignoreFile)
		if err != nil {
			return fmt.Errorf("reading ignore file: %w", err)
		}
		ignoreURLs = strings.Fields(string(data))
	}

	reviews, err := fetchReviews(ctx, resolved, policy)
	if err != nil {
		return err
	}

	pipeline := review.Pipeline{
		Caller:      review.Caller{Username: resolved.Username, Email: resolved.Email},
		Bots:        verifiedBots,
		Verify:      policy,
		IgnoreURLs:  ignoreURLs,
		NoDownvotes: resolved.NoDownvotes,
		MinUpvote:   minUpvote(),
		NoPlusTwo:   noPlusTwo,
	}
	reviews = pipeline.Apply(reviews)

	if !noScores {
		scores := reviewday.New()
		if err := scores.Load(ctx); err != nil {
			return err
		}
		reviews = reviewday.AttachScores(reviews, scores)
	}

	ranked := review.Rank(reviews)
	renderer := review.Renderer{Out: os.Stdout}

	switch {
	case listAll:
		if len(ranked) == 0 {
			renderer.RenderNothing()
		} else {
			renderer.Render(ranked, 0)
		}
	case len(ranked) > 0:
		renderer.Render(ranked, 1)
		if err := browser.OpenURL(ranked[0].URL); err != nil {
			logger.Logf(terminal.StyleWarning, "Could not open browser: %v", err)
		}
	default:
		renderer.RenderNothing()
	}

	return pendingReviews(len(ranked))
}

// fetchReviews connects to gerrit and runs the paginated query.
func fetchReviews(ctx context.Context, resolved config.Resolved, policy review.VerifyPolicy) ([]gerrit.Review, error) {
	client, err := gerrit.Dial(gerrit.ClientConfig{
		Host:       resolved.Host,
		Port:       resolved.Port,
		Username:   resolved.Username,
		KeyPath:    resolved.Key,
		Passphrase: promptPassphrase,
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	query := gerrit.Query{
		Projects:         resolved.Projects,
		RequireVerified:  policy == review.VerifyRequireUpvote,
		VerifiedBot:      firstBot(),
		ExcludeSelfVoted: true,
		NoDownvotes:      resolved.NoDownvotes,
		OnlyPlusOne:      onlyPlusOne,
		OnlyPlusTwo:      onlyPlusTwo,
		NoPlusTwo:        noPlusTwo,
	}
	return client.Reviews(ctx, query)
}

// promptPassphrase reads an SSH key passphrase without echo.
func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(int(os.Stdin.Fd()))
}

func parseVerifyPolicy(name string) (review.VerifyPolicy, error) {
	switch name {
	case "require":
		return review.VerifyRequireUpvote, nil
	case "lenient":
		return review.VerifyRejectDownvote, nil
	default:
		return 0, fmt.Errorf("invalid --verified-policy %q: must be 'require' or 'lenient'", name)
	}
}

func minUpvote() int {
	switch {
	case onlyPlusTwo:
		return 2
	case onlyPlusOne:
		return 1
	default:
		return 0
	}
}

func firstBot() string {
	if len(verifiedBots) == 0 {
		return ""
	}
	return verifiedBots[0]
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".next_review"
	}
	return filepath.Join(home, ".next_review")
}
