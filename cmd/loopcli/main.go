// Package main provides the loop CLI for scripting against the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/loopbox/internal/api/connect"
	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/timecode"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/config"
	"github.com/osa030/loopbox/internal/infra/spotify"
	"github.com/osa030/loopbox/internal/infra/storage"
)

var (
	app        = kingpin.New("loopbox-loopcli", "loopbox loop client")
	configPath = app.Flag("config", "Path to config file (optional)").String()
	server     = app.Flag("server", "Server address").Envar("LOOPBOX_SERVER_URL").String()
	token      = app.Flag("token", "API token").Envar("LOOPBOX_API_TOKEN").String()
	user       = app.Flag("user", "Spotify user ID").Envar("LOOPBOX_USER_ID").String()
	asJSON     = app.Flag("json", "Print raw JSON").Bool()

	// get command
	getCmd   = app.Command("get", "Show the loops saved for a track")
	getTrack = getCmd.Arg("track", "Spotify track ID or URL").Required().String()

	// list command
	listCmd = app.Command("list", "List every track with saved loops").Alias("ls")

	// save command
	saveCmd     = app.Command("save", "Save a single loop for a track")
	saveTrack   = saveCmd.Arg("track", "Spotify track ID or URL").Required().String()
	saveStart   = saveCmd.Flag("start", "Loop start (m:ss or m:ss.mmm)").Required().String()
	saveEnd     = saveCmd.Flag("end", "Loop end (m:ss or m:ss.mmm)").Required().String()
	saveLabel   = saveCmd.Flag("label", "Loop label").String()
	saveEnabled = saveCmd.Flag("enable", "Enable looping").Default("true").Bool()

	// delete command
	deleteCmd   = app.Command("delete", "Delete the loops saved for a track").Alias("rm")
	deleteTrack = deleteCmd.Arg("track", "Spotify track ID or URL").Required().String()

	// recent command
	recentCmd   = app.Command("recent", "List recently practiced tracks")
	recentLimit = recentCmd.Flag("limit", "Maximum number of tracks").Default("10").Int()

	// add-recent command
	addRecentCmd   = app.Command("add-recent", "Record a track as recently practiced")
	addRecentTrack = addRecentCmd.Arg("track", "Spotify track ID or URL").Required().String()
	addRecentName  = addRecentCmd.Flag("name", "Track name, when Spotify is not configured").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *server == "" {
		*server = cfg.Client.ServerURL
	}
	if *server == "" {
		*server = "http://localhost" + cfg.Server.Addr
	}
	if *token == "" {
		*token = cfg.Server.APIToken
	}
	if *user == "" {
		*user = cfg.Client.UserID
	}
	if *user == "" {
		fail(fmt.Errorf("user ID is required (use --user or LOOPBOX_USER_ID)"))
	}

	client := apiconnect.NewClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case getCmd.FullCommand():
		err = getLoop(ctx, client, trackID(*getTrack))
	case listCmd.FullCommand():
		err = listLoops(ctx, client)
	case saveCmd.FullCommand():
		err = saveLoop(ctx, client, trackID(*saveTrack))
	case deleteCmd.FullCommand():
		err = deleteLoop(ctx, client, trackID(*deleteTrack))
	case recentCmd.FullCommand():
		err = listRecent(ctx, client)
	case addRecentCmd.FullCommand():
		err = addRecent(ctx, cfg, client, trackID(*addRecentTrack))
	}
	if err != nil {
		fail(err)
	}
}

func getLoop(ctx context.Context, client *apiconnect.Client, id string) error {
	data, err := client.GetLoop(ctx, *user, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(data)
	}
	if data == nil {
		fmt.Printf("No loops saved for %s\n", id)
		return nil
	}
	printLoop(*data)
	return nil
}

func listLoops(ctx context.Context, client *apiconnect.Client) error {
	loops, err := client.ListLoops(ctx, *user)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(loops)
	}
	if len(loops) == 0 {
		fmt.Println("No loops saved")
		return nil
	}
	for _, data := range loops {
		printLoop(data)
	}
	return nil
}

func saveLoop(ctx context.Context, client *apiconnect.Client, id string) error {
	start, ok := timecode.ParseEditable(*saveStart)
	if !ok {
		return fmt.Errorf("invalid start time: %q", *saveStart)
	}
	end, ok := timecode.ParseEditable(*saveEnd)
	if !ok {
		return fmt.Errorf("invalid end time: %q", *saveEnd)
	}
	if start >= end {
		return fmt.Errorf("start %s must be before end %s", *saveStart, *saveEnd)
	}

	seg := loop.New(loop.NewID(), 1, start, end)
	if *saveLabel != "" {
		seg.Label = *saveLabel
	}
	data, err := client.UpsertLoop(ctx, *user, id, loop.NewRecord([]loop.Segment{seg}, seg.ID, *saveEnabled))
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(data)
	}
	fmt.Println("Saved:")
	printLoop(*data)
	return nil
}

func deleteLoop(ctx context.Context, client *apiconnect.Client, id string) error {
	deleted, err := client.DeleteLoop(ctx, *user, id)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Printf("Deleted loops for %s\n", id)
	} else {
		fmt.Printf("No loops saved for %s\n", id)
	}
	return nil
}

func listRecent(ctx context.Context, client *apiconnect.Client) error {
	tracks, err := client.ListRecentTracks(ctx, *user, *recentLimit)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(tracks)
	}
	if len(tracks) == 0 {
		fmt.Println("No recent tracks")
		return nil
	}
	for i, t := range tracks {
		printTrack(i+1, t)
	}
	return nil
}

func addRecent(ctx context.Context, cfg *config.Config, client *apiconnect.Client, id string) error {
	t := track.Track{ID: id, Name: *addRecentName, URI: "spotify:track:" + id, URL: spotify.TrackURL(id)}
	if cfg.Spotify.Enabled() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return err
		}
		found, err := sp.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		t = *found
	}
	if err := client.AddRecentTrack(ctx, *user, t); err != nil {
		return err
	}
	fmt.Printf("Added %s\n", t.ID)
	return nil
}

func printLoop(data storage.LoopData) {
	fmt.Printf("\nTrack: %s (updated %s)\n", data.TrackID, data.UpdatedAt.Local().Format(time.DateTime))
	rec := data.Record
	h, ok := rec.Upgrade(loop.NewID)
	if !ok || len(h.Segments) == 0 {
		fmt.Println("  (no loops)")
		return
	}
	state := "off"
	if h.Enabled {
		state = "on"
	}
	fmt.Printf("  Looping: %s\n", state)
	for _, seg := range h.Segments {
		marker := " "
		if seg.ID == h.ActiveID {
			marker = "*"
		}
		fmt.Printf("  %s %-12s %s - %s  x%d\n", marker, seg.Label,
			timecode.FormatEditable(seg.Start, true), timecode.FormatEditable(seg.End, true), seg.Repetitions)
	}
}

func printTrack(n int, t track.Track) {
	artists := strings.Join(t.Artists, ", ")
	if artists == "" {
		artists = "-"
	}
	name := t.Name
	if name == "" {
		name = t.ID
	}
	fmt.Printf("%2d. %s / %s [%s]\n", n, name, artists, timecode.FormatDisplay(t.DurationMs()))
}

func trackID(input string) string {
	return spotify.ExtractTrackID(input)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
