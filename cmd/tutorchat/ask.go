package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ventlab/tutorgate"
)

type clientFlags struct {
	configPath string
	baseURL    string
	tokenEnv   string
	provider   string
	verbose    bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a tutorgate YAML config file")
	cmd.Flags().StringVar(&f.baseURL, "base-url", os.Getenv("TUTORGATE_BASE_URL"), "backend base URL")
	cmd.Flags().StringVar(&f.tokenEnv, "token-env", "TUTOR_TOKEN", "environment variable holding the bearer token")
	cmd.Flags().StringVar(&f.provider, "provider", "", "force a specific provider")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

func (f *clientFlags) newClient() (*tutorgate.Client, error) {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []tutorgate.Option{
		tutorgate.WithLogger(logger),
		tutorgate.WithTokenSource(tutorgate.TokenFromEnv(f.tokenEnv)),
	}
	if f.baseURL != "" {
		opts = append(opts, tutorgate.WithBaseURL(f.baseURL))
	}
	if f.configPath != "" {
		return tutorgate.NewFromConfigFile(f.configPath, opts...)
	}
	return tutorgate.New(opts...)
}

func newAskCmd() *cobra.Command {
	var (
		flags  clientFlags
		lesson string
		direct bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			params := tutorgate.Params{
				Question:      strings.Join(args, " "),
				LessonContext: lesson,
				Provider:      flags.provider,
			}

			if direct {
				ans, err := client.Ask(ctx, params)
				if err != nil {
					return askError(err)
				}
				fmt.Println(ans.Text)
				if ans.Cached {
					fmt.Fprintln(os.Stderr, "(served from cache)")
				}
				return nil
			}

			err = client.SendMessage(ctx, params, tutorgate.Callbacks{
				OnToken: func(delta string) { fmt.Print(delta) },
				OnEnd: func(end tutorgate.StreamEnd) {
					fmt.Println()
					for _, s := range end.Suggestions {
						fmt.Fprintf(os.Stderr, "suggested: %s\n", s)
					}
				},
				// Rendered from the returned error below.
				OnError: func(*tutorgate.GatewayError) {},
			})
			if err != nil {
				fmt.Println()
				return askError(err)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&lesson, "lesson", "", "lesson context for the question")
	cmd.Flags().BoolVar(&direct, "direct", false, "await the full answer instead of streaming")
	return cmd
}

// askError prefers the stable user-facing message over the raw chain.
func askError(err error) error {
	var ge *tutorgate.GatewayError
	if errors.As(err, &ge) {
		return fmt.Errorf("%s", ge.UserMessage())
	}
	return err
}
