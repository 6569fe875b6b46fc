package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/campfire/internal/queue"
)

const defaultQueueFormat = "{{.Artist}} - {{.Title}}"

var (
	queueFormat string
	queueWidth  int
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Print the saved queue",
	Long: `Print the queue saved by the last session, marking the track that
playback resumes from.

The line format is a Go template. Available fields: .Title, .Artist,
.Album, .Duration, .PageURL`,
	Args: cobra.NoArgs,
	RunE: runQueue,
}

// queueForgetCmd represents the queue forget command
var queueForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the saved queue",
	Args:  cobra.NoArgs,
	RunE:  runQueueForget,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueForgetCmd)

	queueCmd.Flags().StringVarP(&queueFormat, "format", "f", defaultQueueFormat, "Line format template")
	queueCmd.Flags().IntVarP(&queueWidth, "width", "w", 0, "Fixed line width (0=disabled)")
}

func runQueue(cmd *cobra.Command, args []string) error {
	tmpl, err := template.New("queue").Parse(queueFormat)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	return withCatalog(func(ctx context.Context, a *app) error {
		state, err := a.session.Persistence().Load(ctx)
		if err != nil {
			return err
		}
		return printQueue(cmd.OutOrStdout(), state, tmpl, queueWidth)
	})
}

func runQueueForget(cmd *cobra.Command, args []string) error {
	return withCatalog(func(ctx context.Context, a *app) error {
		if err := a.session.Persistence().Discard(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved queue deleted")
		return nil
	})
}

// printQueue writes one line per saved track; the resume track is marked
// with ">" and its saved offset.
func printQueue(w io.Writer, state queue.PersistedState, tmpl *template.Template, width int) error {
	if len(state.Queue) == 0 {
		_, err := fmt.Fprintln(w, "No saved queue")
		return err
	}

	for i, track := range state.Queue {
		line, err := formatTrack(track, tmpl)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		line = padToWidth(line, width)

		marker := " "
		suffix := ""
		if i == state.Position {
			marker = ">"
			suffix = "  @ " + formatOffset(state.PlayPosition)
		}
		if _, err := fmt.Fprintf(w, "%s %3d  %s%s\n", marker, i+1, line, suffix); err != nil {
			return err
		}
	}
	return nil
}

// formatTrack applies the template to the track data
func formatTrack(track queue.Track, tmpl *template.Template) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}

func formatOffset(seconds float64) string {
	d := time.Duration(max(seconds, 0)) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// If width <= 0, returns text unchanged.
// If text is longer than width, truncates with "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	const ellipsis = "..."
	if runewidth.StringWidth(text) > width {
		if width <= len(ellipsis) {
			return ellipsis[:width]
		}
		text = runewidth.Truncate(text, width-len(ellipsis), "") + ellipsis
	}

	// Wide runes can leave the truncated text one column short.
	if pad := width - runewidth.StringWidth(text); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return text
}
