package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jfmyers9/campfire/internal/audio"
)

const defaultWidth = 80

type command struct {
	usage   string
	help    string
	minArgs int
	maxArgs int // -1 for no limit
	run     func(ctx context.Context, c *Console, args []string) error
}

func commandTable() map[string]*command {
	toggle := &command{usage: "play", help: "toggle pause", maxArgs: 0, run: runToggle}
	return map[string]*command{
		"add":      {usage: "add <url|number>...", help: "enqueue album or track pages, or numbered results", minArgs: 1, maxArgs: -1, run: runAdd},
		"rm":       {usage: "rm <number>", help: "remove a queued track", minArgs: 1, maxArgs: 1, run: runRemove},
		"jump":     {usage: "jump <number>", help: "play a queued track", minArgs: 1, maxArgs: 1, run: runJump},
		"next":     {usage: "next", help: "play the next track", run: runNext},
		"prev":     {usage: "prev", help: "play the previous track or restart this one", run: runPrev},
		"play":     toggle,
		"pause":    toggle,
		"stop":     {usage: "stop", help: "stop playback", run: runStop},
		"seek":     {usage: "seek <seconds|m:ss|+n|-n>", help: "seek within the track", minArgs: 1, maxArgs: 1, run: runSeek},
		"vol":      {usage: "vol [0-100]", help: "show or set the volume", maxArgs: 1, run: runVolume},
		"shuffle":  {usage: "shuffle [on|off]", help: "show or set shuffle", maxArgs: 1, run: runShuffle},
		"clear":    {usage: "clear", help: "empty the queue", run: runClear},
		"list":     {usage: "list", help: "show the queue", run: runList},
		"revoke":   {usage: "revoke", help: "refresh every stream link", run: runRevoke},
		"discover": {usage: "discover <tag>...", help: "browse releases by tag", minArgs: 1, maxArgs: -1, run: runDiscover},
		"more":     {usage: "more", help: "fetch the next discover page", run: runMore},
		"search":   {usage: "search <query>", help: "search albums and tracks", minArgs: 1, maxArgs: -1, run: runSearch},
		"backend":  {usage: "backend <native|mpd>", help: "switch the audio backend", minArgs: 1, maxArgs: 1, run: runBackend},
		"save":     {usage: "save", help: "save the queue now", run: runSave},
		"quit":     {usage: "quit", help: "leave the shell", run: runQuit},
		"help":     {usage: "help", help: "list commands", run: runHelp},
	}
}

func runAdd(ctx context.Context, c *Console, args []string) error {
	m := c.engine.Manager()
	wasEmpty := m.Len() == 0

	added := 0
	var errs []error
	for _, arg := range args {
		pageURL := arg
		if n, err := strconv.Atoi(arg); err == nil {
			if n < 1 || n > len(c.results) {
				errs = append(errs, fmt.Errorf("no result %d", n))
				continue
			}
			pageURL = c.results[n-1]
		}
		count, err := m.EnqueueFromAlbum(ctx, pageURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.printf("added %d track(s) from %s\n", count, pageURL)
		added += count
	}

	if wasEmpty && added > 0 {
		errs = append(errs, m.Select(ctx, 0))
	}
	return errors.Join(errs...)
}

func runRemove(ctx context.Context, c *Console, args []string) error {
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	return c.engine.Manager().RemoveAt(n)
}

func runJump(ctx context.Context, c *Console, args []string) error {
	n, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	return c.engine.Manager().Select(ctx, n)
}

func runNext(ctx context.Context, c *Console, args []string) error {
	ok, err := c.engine.Manager().Advance(ctx)
	if !ok {
		c.printf("end of queue\n")
	}
	return err
}

func runPrev(ctx context.Context, c *Console, args []string) error {
	return c.engine.Manager().Retreat(ctx)
}

func runToggle(ctx context.Context, c *Console, args []string) error {
	return c.engine.Manager().TogglePause(ctx)
}

func runStop(ctx context.Context, c *Console, args []string) error {
	return c.engine.Manager().Stop()
}

func runSeek(ctx context.Context, c *Console, args []string) error {
	m := c.engine.Manager()
	target, err := parseSeek(args[0], m.Time())
	if err != nil {
		return err
	}
	return m.Seek(target)
}

func runVolume(ctx context.Context, c *Console, args []string) error {
	m := c.engine.Manager()
	if len(args) == 0 {
		c.printf("volume %d%%\n", m.Volume())
		return nil
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
	if err != nil || percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume must be 0-100", ErrUsage)
	}
	return m.SetVolume(percent)
}

func runShuffle(ctx context.Context, c *Console, args []string) error {
	m := c.engine.Manager()
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on":
			m.SetShuffle(true)
		case "off":
			m.SetShuffle(false)
		default:
			return fmt.Errorf("%w: shuffle [on|off]", ErrUsage)
		}
	}
	c.printf("shuffle %s\n", onOff(m.Shuffle()))
	return nil
}

func runClear(ctx context.Context, c *Console, args []string) error {
	return c.engine.Manager().Clear()
}

func runList(ctx context.Context, c *Console, args []string) error {
	m := c.engine.Manager()
	tracks := m.Tracks()
	if len(tracks) == 0 {
		c.printf("queue is empty\n")
		return nil
	}
	position := m.Position()
	for i, t := range tracks {
		marker := " "
		if i == position {
			marker = ">"
		}
		c.printf("%s%3d  %s  %s\n", marker, i+1, c.column(t.Title+" - "+t.Artist, c.width-16), formatDuration(t.Duration))
	}
	return nil
}

func runRevoke(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.Manager().RevalidateAll(ctx); err != nil {
		return err
	}
	c.printf("stream links refreshed\n")
	return nil
}

func runDiscover(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.Discover(ctx, args); err != nil {
		return err
	}
	c.printFeed()
	return nil
}

func runMore(ctx context.Context, c *Console, args []string) error {
	feed := c.engine.Feed()
	if len(feed.Tags()) == 0 {
		return fmt.Errorf("%w: run discover first", ErrUsage)
	}
	if !feed.More() {
		c.printf("no more results\n")
		return nil
	}
	if err := c.engine.More(ctx); err != nil {
		return err
	}
	c.printFeed()
	return nil
}

func (c *Console) printFeed() {
	items := c.engine.Feed().Items()
	c.results = c.results[:0]
	for i, e := range items {
		c.results = append(c.results, e.URL)
		c.printf("%3d  %s  %s\n", i+1, c.column(e.Title+" - "+e.Artist, c.width-22), c.column(e.Genre, 16))
	}
}

func runSearch(ctx context.Context, c *Console, args []string) error {
	results, err := c.engine.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		c.printf("no results\n")
		return nil
	}
	c.results = c.results[:0]
	for i, r := range results {
		c.results = append(c.results, r.URL)
		c.printf("%3d  [%s] %s\n", i+1, r.Type, c.column(r.Name+" - "+r.BandName, c.width-10))
	}
	return nil
}

func runBackend(ctx context.Context, c *Console, args []string) error {
	id, err := audio.ParseBackend(args[0])
	if err != nil {
		return err
	}
	if err := c.engine.Manager().SwitchBackend(ctx, id); err != nil {
		return err
	}
	c.printf("using %s backend\n", audio.BackendName(id))
	return nil
}

func runSave(ctx context.Context, c *Console, args []string) error {
	if err := c.engine.Persistence().Save(ctx); err != nil {
		return err
	}
	c.printf("saved %d track(s)\n", c.engine.Manager().Len())
	return nil
}

func runQuit(ctx context.Context, c *Console, args []string) error {
	return errQuit
}

func runHelp(ctx context.Context, c *Console, args []string) error {
	for _, verb := range c.verbs() {
		cmd := c.commands[verb]
		c.printf("  %s %s\n", runewidth.FillRight(cmd.usage, 28), cmd.help)
	}
	return nil
}

// column truncates or pads s to exactly width terminal cells.
func (c *Console) column(s string, width int) string {
	width = max(width, 8)
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

// parseIndex converts a 1-based listing number to a queue index.
func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUsage, s)
	}
	return n - 1, nil
}

// parseSeek accepts absolute seconds, m:ss, or a relative +n/-n offset
// from now. The result is never negative.
func parseSeek(arg string, now float64) (float64, error) {
	relative := 0
	switch {
	case strings.HasPrefix(arg, "+"):
		relative = 1
		arg = arg[1:]
	case strings.HasPrefix(arg, "-"):
		relative = -1
		arg = arg[1:]
	}

	var seconds float64
	if mins, secs, ok := strings.Cut(arg, ":"); ok {
		m, err1 := strconv.Atoi(mins)
		s, err2 := strconv.ParseFloat(secs, 64)
		if err1 != nil || err2 != nil || m < 0 || s < 0 || s >= 60 {
			return 0, fmt.Errorf("%w: invalid time %q", ErrUsage, arg)
		}
		seconds = float64(m)*60 + s
	} else {
		s, err := strconv.ParseFloat(arg, 64)
		if err != nil || s < 0 {
			return 0, fmt.Errorf("%w: invalid time %q", ErrUsage, arg)
		}
		seconds = s
	}

	if relative != 0 {
		seconds = now + float64(relative)*seconds
	}
	return max(seconds, 0), nil
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
