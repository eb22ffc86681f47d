// Package main provides the spinlog entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/spinlog/spinlog/internal/app/importer"
	"github.com/spinlog/spinlog/internal/app/monitor"
	"github.com/spinlog/spinlog/internal/app/player"
	"github.com/spinlog/spinlog/internal/app/submit"
	"github.com/spinlog/spinlog/internal/domain/scrobble"
	"github.com/spinlog/spinlog/internal/infra/config"
	"github.com/spinlog/spinlog/internal/infra/lastfm"
	"github.com/spinlog/spinlog/internal/infra/logger"
	"github.com/spinlog/spinlog/internal/infra/queue"
)

var (
	app        = kingpin.New("spinlog", "Last.fm scrobbler for local and streaming players")
	configPath = app.Flag("config", "Path to config file").Default("config/spinlog.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// monitor command (default)
	monitorCmd = app.Command("monitor", "Watch configured players and scrobble what they play (default)").Default()

	// import command
	importCmd    = app.Command("import", "Import listening history from an external source")
	importSource = importCmd.Arg("source", "Importer name (see list-importers)").Required().String()
	importPath   = importCmd.Arg("path", "File or directory to import").Required().String()
	importRetime = importCmd.Flag("re-time", "Discard source timestamps and re-time every row backward from the anchor").Bool()
	importAnchor = importCmd.Flag("anchor", "Anchor time for re-timing, RFC 3339 (default: now)").String()
	importDryRun = importCmd.Flag("dry-run", "Parse and print the batch without submitting").Bool()

	// flush command
	flushCmd = app.Command("flush", "Retry scrobbles waiting in the offline queue")

	// list-importers command
	listImportersCmd = app.Command("list-importers", "List available importers and exit")

	// auth command
	authCmd = app.Command("auth", "Authorize spinlog with your Last.fm account")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-importers command
	if command == listImportersCmd.FullCommand() {
		printImporters()
		return
	}

	// Initialize logger
	output, level, file := "stderr", "info", ""
	if *verbose {
		level = "debug"
	}
	if *logfile != "" {
		output = *logfile
		file = *logfile
	}
	if err := logger.Init(output, level, file); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	client, err := lastfm.New(lastfm.Config{
		APIKey:     cfg.Lastfm.APIKey,
		APISecret:  cfg.Lastfm.APISecret,
		SessionKey: cfg.Lastfm.SessionKey,
		Username:   cfg.Lastfm.Username,
	})
	if err != nil {
		zlog.Fatal().Msgf("Failed to create Last.fm client: %v", err)
	}

	switch command {
	case monitorCmd.FullCommand():
		err = runMonitor(cfg, client)
	case importCmd.FullCommand():
		err = runImport(cfg, client)
	case flushCmd.FullCommand():
		err = runFlush(cfg, client)
	case authCmd.FullCommand():
		err = runAuth(client)
	}
	if err != nil {
		zlog.Error().Msgf("%v", err)
		os.Exit(1)
	}
}

func printImporters() {
	registered := importer.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available importers:")
	for _, name := range names {
		fmt.Printf("  %-10s %s\n", name, registered[name]().Description())
	}
}

// newSubmitter builds the submission pipeline: the daily-cap gate in
// front of either the cache-backed or the direct delivery path.
func newSubmitter(cfg *config.Config, client *lastfm.Client) (submit.Submitter, *queue.Store, error) {
	if !cfg.Monitor.Cached() {
		return submit.NewCappedSubmitter(submit.NewDirectSubmitter(client), client), nil, nil
	}

	store, err := queue.Open(cfg.Lastfm.Username)
	if err != nil {
		return nil, nil, err
	}
	cached := submit.NewCachedSubmitter(client, store)
	return submit.NewCappedSubmitter(cached, client), store, nil
}

func runMonitor(cfg *config.Config, client *lastfm.Client) error {
	if !client.Authenticated() {
		return fmt.Errorf("no session key configured; run `spinlog auth` first")
	}

	submitter, store, err := newSubmitter(cfg, client)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx := context.Background()
	var monitors []*monitor.Monitor
	for _, pc := range cfg.Players {
		source, err := player.New(pc.Type, pc.Settings)
		if err != nil {
			return err
		}
		m, err := monitor.New(source, submitter, client, monitor.Config{
			PercentageToScrobble: cfg.Monitor.PercentageToScrobble,
			PollInterval:         cfg.Monitor.PollInterval(),
		})
		if err != nil {
			return err
		}
		monitors = append(monitors, m)

		go printEvents(pc, m)

		if cfg.Monitor.AutoConnect {
			if err := m.Connect(ctx); err != nil {
				zlog.Warn().Msgf("Could not connect to %s: %v", pc.Type, err)
			}
		}
	}

	zlog.Info().Msgf("Monitoring %d player(s) as %s", len(monitors), client.Username())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Shutting down")
	for _, m := range monitors {
		if err := m.Disconnect(); err != nil {
			zlog.Warn().Msgf("Disconnect failed: %v", err)
		}
	}
	return nil
}

func printEvents(pc config.PlayerConfig, m *monitor.Monitor) {
	name := pc.DisplayName
	if name == "" {
		name = pc.Type
	}
	for e := range m.Events() {
		fmt.Printf("[%s] %s\n", name, e.Status)
	}
}

func runImport(cfg *config.Config, client *lastfm.Client) error {
	imp := importer.New(*importSource)
	if imp == nil {
		return fmt.Errorf("unknown importer %q (see list-importers)", *importSource)
	}

	ctx := context.Background()
	records, err := imp.Read(ctx, *importPath)
	if err != nil {
		return err
	}

	batch := scrobble.NewBatch(records)
	if *importRetime {
		anchor := time.Now()
		if *importAnchor != "" {
			anchor, err = time.Parse(time.RFC3339, *importAnchor)
			if err != nil {
				return fmt.Errorf("invalid anchor %q: %w", *importAnchor, err)
			}
		}
		batch.SetImportMode(anchor, cfg.Monitor.ImportGap())
	}

	now := time.Now()
	submittable := batch.Submittable(now)
	fmt.Printf("Parsed %d rows, %d submittable in %s mode\n", batch.Len(), len(submittable), batch.Mode())
	for _, e := range batch.Entries() {
		marker := " "
		if e.Record.PlayedAt.IsZero() {
			marker = "?"
		}
		fmt.Printf("  %s %s - %s (%s)\n", marker, e.Record.Artist, e.Record.Track, e.Record.PlayedAt.Local().Format(time.DateTime))
	}
	if len(submittable) < batch.Len() && !*importRetime {
		fmt.Printf("Note: %d rows are older than the service's age limit; use --re-time to submit them anyway\n",
			batch.Len()-len(submittable))
	}
	if *importDryRun {
		return nil
	}
	if len(submittable) == 0 {
		return fmt.Errorf("nothing to submit")
	}
	if !client.Authenticated() {
		return fmt.Errorf("no session key configured; run `spinlog auth` first")
	}

	if !confirm(fmt.Sprintf("Submit %d scrobbles?", len(submittable))) {
		fmt.Println("Aborted")
		return nil
	}

	submitter, store, err := newSubmitter(cfg, client)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	result, err := submitter.Submit(ctx, submittable)
	if err != nil {
		return err
	}
	fmt.Println(result.Status)
	return nil
}

func runFlush(cfg *config.Config, client *lastfm.Client) error {
	if !client.Authenticated() {
		return fmt.Errorf("no session key configured; run `spinlog auth` first")
	}

	store, err := queue.Open(cfg.Lastfm.Username)
	if err != nil {
		return err
	}
	defer store.Close()

	waiting, err := store.Len()
	if err != nil {
		return err
	}
	if waiting == 0 {
		fmt.Println("Offline queue is empty")
		return nil
	}

	cached := submit.NewCachedSubmitter(client, store)
	result, err := cached.Flush(context.Background())
	if err != nil {
		return fmt.Errorf("flushed %d of %d queued scrobbles: %w", result.Accepted, waiting, err)
	}
	fmt.Printf("Flushed %d queued scrobbles\n", result.Accepted)
	return nil
}

// runAuth walks the desktop authorization flow: request a token, send the
// user to the authorization page, then exchange the token for a session key.
func runAuth(client *lastfm.Client) error {
	token, err := client.GetToken()
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in your browser and authorize spinlog:")
	fmt.Printf("\n  %s\n\n", client.AuthURL(token))
	fmt.Print("Press Enter when done...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

	session, err := client.LoginWithToken(token)
	if err != nil {
		return err
	}

	fmt.Printf("Authorized as %s.\n", client.Username())
	fmt.Println("Add the session key to your config (or set LASTFM_SESSION_KEY):")
	fmt.Printf("\n  session_key: %s\n", session)
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
