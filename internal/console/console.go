// Package console implements the line-oriented command shell. Input is
// split into a verb and arguments and dispatched through a fixed command
// table; nothing typed is ever evaluated.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/campfire/internal/discover"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
)

var (
	// ErrUnknownCommand is returned for a verb not in the command table.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage is returned when a command gets the wrong arguments.
	ErrUsage = errors.New("usage")

	// errQuit ends Run without an error.
	errQuit = errors.New("quit")
)

// Engine is what the console drives. *session.Session satisfies it.
type Engine interface {
	Manager() *queue.Manager
	Feed() *discover.Feed
	Persistence() *queue.Persistence
	Discover(ctx context.Context, tags []string) error
	More(ctx context.Context) error
	Search(ctx context.Context, query string) ([]bandcamp.SearchResult, error)
}

// Console reads commands and writes their output.
type Console struct {
	engine   Engine
	out      io.Writer
	width    int
	commands map[string]*command
	logger   zerolog.Logger

	// Page URLs from the last discover, more or search listing, addressed
	// by number in "add".
	results []string
}

// New creates a Console writing to out.
func New(engine Engine, out io.Writer, logger zerolog.Logger) *Console {
	c := &Console{
		engine: engine,
		out:    out,
		width:  defaultWidth,
		logger: logger.With().Str("component", "console").Logger(),
	}
	c.commands = commandTable()
	return c
}

// Run executes commands read from in, one per line, until quit, EOF or
// ctx is done. Command errors are printed and do not stop the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			return nil
		case line := <-lines:
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.logger.Debug().Err(err).Str("line", line).Msg("Command failed")
				c.printf("error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line. Blank lines are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	cmd, ok := c.commands[verb]
	if !ok {
		return fmt.Errorf("%w %q (try \"help\")", ErrUnknownCommand, verb)
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return cmd.run(ctx, c, args)
}

func (c *Console) prompt() {
	c.printf("campfire> ")
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// verbs returns the command names in sorted order.
func (c *Console) verbs() []string {
	verbs := make([]string, 0, len(c.commands))
	for verb := range c.commands {
		verbs = append(verbs, verb)
	}
	slices.Sort(verbs)
	return verbs
}
