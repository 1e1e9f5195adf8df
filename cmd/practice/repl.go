package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/osa030/loopbox/internal/app/interaction"
	"github.com/osa030/loopbox/internal/app/keyboard"
	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/notification"
	"github.com/osa030/loopbox/internal/app/session"
	domain "github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/timecode"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/spotify"
)

// Timeline width used for pointer commands; positions are given in percent.
const timelineWidth = 100.0

const helpText = `Tracks
  track <id|url> [duration]   select a track (duration m:ss when Spotify is off)
  search <query>              search Spotify
  recent                      list recently practiced tracks
  pick <n>                    select the n-th track from the last list
  deselect                    clear the selection
Playback
  play [time]  pause  resume  seek <time>
Loops
  start [time|here|-]         set or clear the pending start
  end [time|here|-]           set or clear the pending end
  add                         add the pending range as a loop
  rm [n|id]                   remove a loop (default: active)
  sel <n|id|next|prev|none>   select a loop
  label <text>                rename the active loop
  loop on|off                 toggle looping
  clear                       remove all loops
  nudge start|end <ms>        move a bound
Input
  key <chord>                 send a key, e.g. key s, key shift+right
  drag <track|start|end|n> <from%> <to%>
  click <n>                   click a loop on the timeline
  hover <pct>                 show the time under the pointer
Other
  status  save  help  quit`

// shell is the interactive command loop.
type shell struct {
	mgr     *session.Manager
	router  *keyboard.Router
	window  *termWindow
	spotify *spotify.Client
	rl      *readline.Instance
	out     io.Writer

	// Last track list printed by search or recent.
	choices []track.Track
}

func newShell(mgr *session.Manager, router *keyboard.Router, window *termWindow, sp *spotify.Client) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "loopbox> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    readline.NewPrefixCompleter(
			readline.PcItem("track"),
			readline.PcItem("search"),
			readline.PcItem("recent"),
			readline.PcItem("pick"),
			readline.PcItem("deselect"),
			readline.PcItem("play"),
			readline.PcItem("pause"),
			readline.PcItem("resume"),
			readline.PcItem("seek"),
			readline.PcItem("start", readline.PcItem("here"), readline.PcItem("-")),
			readline.PcItem("end", readline.PcItem("here"), readline.PcItem("-")),
			readline.PcItem("add"),
			readline.PcItem("rm"),
			readline.PcItem("sel", readline.PcItem("next"), readline.PcItem("prev"), readline.PcItem("none")),
			readline.PcItem("label"),
			readline.PcItem("loop", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("clear"),
			readline.PcItem("nudge", readline.PcItem("start"), readline.PcItem("end")),
			readline.PcItem("key"),
			readline.PcItem("drag", readline.PcItem("track"), readline.PcItem("start"), readline.PcItem("end")),
			readline.PcItem("click"),
			readline.PcItem("hover"),
			readline.PcItem("status"),
			readline.PcItem("save"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start readline: %w", err)
	}
	return &shell{
		mgr:     mgr,
		router:  router,
		window:  window,
		spotify: sp,
		rl:      rl,
		out:     rl.Stdout(),
	}, nil
}

func (s *shell) Close() error {
	return s.rl.Close()
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// onStoreChange reports saved loops once they are loaded for a track.
func (s *shell) onStoreChange(n *notification.Notification) error {
	if n.Kind != notification.KindHydrated {
		return nil
	}
	snap := s.mgr.Store().Snapshot()
	if snap.TrackID != n.TrackID {
		return nil
	}
	switch len(snap.Segments) {
	case 0:
		s.printf("No saved loops for this track\n")
	default:
		s.printf("Loaded %d saved loop(s)\n", len(snap.Segments))
		s.printLoops(snap)
	}
	return nil
}

func (s *shell) run(ctx context.Context) error {
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			s.printf("Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	store := s.mgr.Store()
	transport := s.mgr.Transport()

	switch cmd {
	case "help", "?":
		s.printf("%s\n", helpText)
		return nil
	case "track":
		return s.selectByID(ctx, args)
	case "search":
		return s.search(ctx, strings.Join(args, " "))
	case "recent":
		s.choices = s.mgr.RecentTracks()
		if len(s.choices) == 0 {
			s.printf("No recent tracks\n")
		}
		s.printChoices()
		return nil
	case "pick":
		n, err := index(args, len(s.choices))
		if err != nil {
			return err
		}
		t := s.choices[n]
		return s.mgr.SelectTrack(ctx, &t)
	case "deselect":
		s.mgr.Deselect(ctx)
		return nil

	case "play":
		ms := transport.Position()
		if len(args) > 0 {
			v, err := parseTime(args[0])
			if err != nil {
				return err
			}
			ms = v
		}
		return transport.PlayFrom(ctx, ms)
	case "pause":
		return transport.Pause(ctx)
	case "resume":
		return transport.Resume(ctx)
	case "seek":
		if len(args) == 0 {
			return errors.New("usage: seek <time>")
		}
		ms, err := parseTime(args[0])
		if err != nil {
			return err
		}
		return transport.Seek(ctx, ms)

	case "start":
		switch v := first(args); v {
		case "", "here":
			return store.MarkStartAtCurrentPosition()
		case "-":
			return store.SetPendingStart(nil)
		default:
			ms, err := parseTime(v)
			if err != nil {
				return err
			}
			return store.SetPendingStart(&ms)
		}
	case "end":
		switch v := first(args); v {
		case "", "here":
			added, err := store.MarkEndAtCurrentPosition()
			if err != nil {
				return err
			}
			if added {
				s.printf("Loop added\n")
			}
			return nil
		case "-":
			return store.SetPendingEnd(nil)
		default:
			ms, err := parseTime(v)
			if err != nil {
				return err
			}
			return store.SetPendingEnd(&ms)
		}
	case "add":
		seg, err := store.AddSegment()
		if err != nil {
			return err
		}
		s.printf("Added %s %s\n", seg.Label, formatRange(seg))
		return nil
	case "rm":
		snap := store.Snapshot()
		id := snap.ActiveID()
		if len(args) > 0 {
			seg, err := segmentRef(snap, args[0])
			if err != nil {
				return err
			}
			id = seg.ID
		}
		if id == "" {
			return loop.ErrNoActiveSegment
		}
		return store.RemoveSegment(id)
	case "sel":
		switch v := first(args); v {
		case "next":
			_, err := store.SelectAdjacent(1)
			return err
		case "prev":
			_, err := store.SelectAdjacent(-1)
			return err
		case "none":
			return store.ClearSelection()
		case "":
			return errors.New("usage: sel <n|id|next|prev|none>")
		default:
			seg, err := segmentRef(store.Snapshot(), v)
			if err != nil {
				return err
			}
			return store.SelectSegment(seg.ID)
		}
	case "label":
		return store.UpdateLabel(strings.Join(args, " "))
	case "loop":
		switch first(args) {
		case "on":
			return store.SetEnabled(true)
		case "off":
			return store.SetEnabled(false)
		}
		return errors.New("usage: loop on|off")
	case "clear":
		return store.ClearLoop()
	case "nudge":
		if len(args) != 2 {
			return errors.New("usage: nudge start|end <ms>")
		}
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount: %q", args[1])
		}
		switch args[0] {
		case "start":
			return store.NudgeStart(delta)
		case "end":
			return store.NudgeEnd(delta)
		}
		return errors.New("usage: nudge start|end <ms>")

	case "key":
		if len(args) == 0 {
			return errors.New("usage: key <chord>")
		}
		ev, err := keyboard.ParseEvent(args[0])
		if err != nil {
			return err
		}
		if !s.router.Dispatch(ev) {
			s.printf("(not handled)\n")
		}
		return nil
	case "drag":
		return s.drag(args)
	case "click":
		pointer, err := s.pointer()
		if err != nil {
			return err
		}
		seg, err := segmentRef(store.Snapshot(), first(args))
		if err != nil {
			return err
		}
		pointer.ClickSegment(seg.ID)
		return nil
	case "hover":
		pointer, err := s.pointer()
		if err != nil {
			return err
		}
		pct, err := parsePercent(first(args))
		if err != nil {
			return err
		}
		pointer.Hover(pct, timelineWidth)
		if mag := pointer.Magnifier(); mag.Visible {
			s.printf("%s\n", timecode.FormatDisplay(mag.Ms))
		}
		return nil

	case "status":
		s.printStatus()
		return nil
	case "save":
		s.mgr.Flush()
		return nil
	}
	return fmt.Errorf("unknown command %q (try 'help')", cmd)
}

func (s *shell) selectByID(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: track <id|url> [duration]")
	}
	id := spotify.ExtractTrackID(args[0])
	if s.spotify != nil {
		t, err := s.spotify.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		return s.mgr.SelectTrack(ctx, t)
	}

	t := &track.Track{ID: id, Name: id, URI: "spotify:track:" + id, URL: spotify.TrackURL(id)}
	if len(args) > 1 {
		ms, err := parseTime(args[1])
		if err != nil {
			return err
		}
		t.Duration = time.Duration(ms) * time.Millisecond
	}
	return s.mgr.SelectTrack(ctx, t)
}

func (s *shell) search(ctx context.Context, query string) error {
	if s.spotify == nil {
		return errors.New("search needs Spotify credentials")
	}
	tracks, err := s.spotify.Search(ctx, query, 10)
	if err != nil {
		return err
	}
	s.choices = tracks
	if len(tracks) == 0 {
		s.printf("No results\n")
	}
	s.printChoices()
	return nil
}

// drag replays a press, one move and a release on the timeline.
func (s *shell) drag(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: drag <track|start|end|n> <from%> <to%>")
	}
	pointer, err := s.pointer()
	if err != nil {
		return err
	}

	var target interaction.Target
	switch args[0] {
	case "track":
		target = interaction.TrackTarget{}
	case "start":
		target = interaction.StartMarkerTarget{}
	case "end":
		target = interaction.EndMarkerTarget{}
	default:
		seg, err := segmentRef(s.mgr.Store().Snapshot(), args[0])
		if err != nil {
			return err
		}
		target = interaction.SegmentTarget{SegmentID: seg.ID}
	}

	from, err := parsePercent(args[1])
	if err != nil {
		return err
	}
	to, err := parsePercent(args[2])
	if err != nil {
		return err
	}

	if err := pointer.PointerDown(target, from, timelineWidth); err != nil {
		return err
	}
	s.window.move(to)
	if mag := pointer.Magnifier(); mag.Visible {
		s.printf("%s\n", timecode.FormatDisplay(mag.Ms))
	}
	s.window.up()
	return nil
}

func (s *shell) pointer() (*interaction.Controller, error) {
	p := s.mgr.Pointer()
	if p == nil {
		return nil, session.ErrNoTrackSelected
	}
	return p, nil
}

func (s *shell) printStatus() {
	t, ok := s.mgr.Track()
	if !ok {
		s.printf("No track selected\n")
		return
	}
	transport := s.mgr.Transport()
	snap := s.mgr.Store().Snapshot()

	state := "paused"
	if transport.IsPlaying() {
		state = "playing"
	}
	s.printf("%s (%s)\n", t.Name, t.ID)
	s.printf("  %s %s / %s  [%s]\n", state,
		timecode.FormatDisplay(transport.Position()), timecode.FormatDisplay(snap.Duration), snap.Phase)

	looping := "off"
	if snap.Looping() {
		looping = "on"
	} else if snap.Enabled {
		looping = "on (no valid loop selected)"
	}
	s.printf("  looping: %s\n", looping)
	s.printf("  editor: %s - %s\n",
		timecode.FormatEditable(valueOf(snap.PendingStart)),
		timecode.FormatEditable(valueOf(snap.PendingEnd)))
	s.printLoops(snap)
}

func (s *shell) printLoops(snap loop.Snapshot) {
	active := snap.ActiveID()
	for i, seg := range snap.Segments {
		marker := " "
		if seg.ID == active {
			marker = "*"
		}
		s.printf("  %s %d. %-12s %s  x%d\n", marker, i+1, seg.Label, formatRange(seg), seg.Repetitions)
	}
}

func (s *shell) printChoices() {
	for i, t := range s.choices {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		artist := t.PrimaryArtist()
		if artist == "" {
			artist = "-"
		}
		s.printf("%2d. %s / %s [%s]\n", i+1, name, artist, timecode.FormatDisplay(t.DurationMs()))
	}
}

func formatRange(seg domain.Segment) string {
	return timecode.FormatEditable(seg.Start, true) + " - " + timecode.FormatEditable(seg.End, true)
}

// segmentRef resolves a 1-based position or a segment ID.
func segmentRef(snap loop.Snapshot, ref string) (domain.Segment, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(snap.Segments) {
			return domain.Segment{}, fmt.Errorf("no loop #%d", n)
		}
		return snap.Segments[n-1], nil
	}
	for _, seg := range snap.Segments {
		if seg.ID == ref {
			return seg, nil
		}
	}
	return domain.Segment{}, loop.ErrUnknownSegment
}

func index(args []string, n int) (int, error) {
	v, err := strconv.Atoi(first(args))
	if err != nil || v < 1 || v > n {
		return 0, fmt.Errorf("pick a number between 1 and %d", n)
	}
	return v - 1, nil
}

func parseTime(s string) (int, error) {
	ms, ok := timecode.ParseEditable(s)
	if !ok {
		return 0, fmt.Errorf("invalid time %q (use m:ss or m:ss.mmm)", s)
	}
	return ms, nil
}

func parsePercent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid position %q (0-100)", s)
	}
	return v, nil
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func valueOf(v *int) (int, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
