// Command vidsum summarizes a video through a running go_vidsum server and
// handles rate-limit cooldowns interactively.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidsum/internal/apiclient"
	"github.com/anatolykoptev/go_vidsum/internal/cooldown"
	"github.com/anatolykoptev/go_vidsum/internal/engine"
)

func init() {
	// Optional .env next to the binary.
	_ = godotenv.Load()
}

var (
	serverURL      string
	outputJSON     bool
	showTranscript bool
	requestTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "vidsum",
		Short:        "Summarize YouTube videos",
		SilenceUsage: true,
	}

	summarizeCmd := &cobra.Command{
		Use:   "summarize <video-url>",
		Short: "Summarize a video, waiting out rate limits",
		Long: `Summarize a video via the go_vidsum REST API.

When the model is rate limited the command counts down and retries once.
Press Enter to retry immediately or Ctrl-C to cancel the pending retry.`,
		Args: cobra.ExactArgs(1),
		RunE: runSummarize,
	}
	summarizeCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the raw JSON result")
	summarizeCmd.Flags().BoolVar(&showTranscript, "transcript", false, "Print the full transcript, also while waiting out a rate limit")

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", env.Str("VIDSUM_SERVER", "http://127.0.0.1:8892"), "go_vidsum REST base URL")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 90*time.Second, "HTTP timeout per attempt")

	rootCmd.AddCommand(summarizeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stderr receives progress and status lines; results go to the command's stdout.
var stderr io.Writer = os.Stderr

func logf(format string, args ...any) {
	fmt.Fprintf(stderr, "→ "+format+"\n", args...)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	client := apiclient.New(serverURL, nil)
	client.HTTP.Timeout = requestTimeout

	ctl, events := newController(client)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := ctl.Submit(ctx, args[0]); err != nil {
			logf("submit: %v", err)
		}
	}()
	enter := readLines(cmd.InOrStdin())

	return loop(ctl, events, enter, sigs, cmd.OutOrStdout())
}

func newController(client *apiclient.Client) (*cooldown.Controller[*engine.Result], <-chan cooldown.Event[*engine.Result]) {
	events := make(chan cooldown.Event[*engine.Result], 16)
	ctl := cooldown.New[*engine.Result](client.Summarize,
		cooldown.WithObserver[*engine.Result](func(ev cooldown.Event[*engine.Result]) { events <- ev }),
	)
	return ctl, events
}

// loop renders controller events until a terminal one arrives.
func loop(ctl *cooldown.Controller[*engine.Result], events <-chan cooldown.Event[*engine.Result],
	enter <-chan struct{}, sigs <-chan os.Signal, out io.Writer) error {
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case cooldown.EventSubmitting:
				logf("Summarizing (attempt %d)...", ev.Attempt)
			case cooldown.EventCooldown:
				var rl *apiclient.RateLimitError
				if errors.As(ev.Err, &rl) {
					logf("%s", rl.Message)
					if rl.Transcript != "" {
						fmt.Fprintf(out, "Transcript so far:\n%s\n\n", transcriptExcerpt(rl.Transcript))
					}
				}
				logf("Retrying in %ds. Press Enter to retry now, Ctrl-C to cancel.", ev.Remaining)
			case cooldown.EventTick:
				fmt.Fprintf(stderr, "\r→ Retrying in %2ds ", ev.Remaining)
			case cooldown.EventSucceeded:
				return printResult(out, ev.Result)
			case cooldown.EventFailed:
				return ev.Err
			case cooldown.EventCancelled:
				fmt.Fprintln(stderr)
				if ev.From == cooldown.Cooldown {
					logf("retry cancelled")
				} else {
					logf("cancelled")
				}
				return nil
			}
		case <-enter:
			if ctl.State() == cooldown.Cooldown {
				fmt.Fprintln(stderr)
				go ctl.RetryNow()
			}
		case <-sigs:
			if !ctl.Cancel() {
				return context.Canceled
			}
		}
	}
}

// excerptRunes bounds the transcript shown during a cooldown unless --transcript is set.
const excerptRunes = 600

func transcriptExcerpt(s string) string {
	if showTranscript {
		return s
	}
	return engine.TruncateRunes(s, excerptRunes, "… (use --transcript for the full text)")
}

func readLines(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- struct{}{}
		}
	}()
	return ch
}

func printResult(out io.Writer, res *engine.Result) error {
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Degraded {
		logf("The model response was incomplete; showing what was recovered.")
	}
	fmt.Fprintf(out, "%s\n\n%s\n", res.Summary, strings.TrimSpace(res.Notes))
	if showTranscript && res.Transcript != "" {
		fmt.Fprintf(out, "\n---\n%s\n", res.Transcript)
	}
	return nil
}
