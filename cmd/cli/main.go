package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"github.com/himanishpuri/soundmatch/internal/config"
	"github.com/himanishpuri/soundmatch/pkg/logger"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/fpfile"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/storage"
)

// Global flags
var (
	dbPath     string
	configPath string
	memory     bool
	preloadDir string

	cfg config.File
)

const maxDisplay = 10

func registerFlags() {
	flag.StringVar(&dbPath, "db", config.GetEnvOrDefault(storage.DBPathEnv, storage.DefaultDBFile), "Path to the SQLite database file")
	flag.StringVar(&configPath, "config", config.GetEnvOrDefault(config.PathEnv, ""), "YAML file with fingerprint and query settings")
	flag.BoolVar(&memory, "memory", false, "Keep the index in memory instead of SQLite")
	flag.StringVar(&preloadDir, "preload", "", "Insert every *.fp file of this directory before running the command")
	flag.Usage = printUsage
}

// createService creates a matching service from the global flags and config
func createService() (soundmatch.Service, error) {
	opts := []soundmatch.Option{
		soundmatch.WithDBPath(dbPath),
		soundmatch.WithFingerprintConfig(cfg.Fingerprint),
		soundmatch.WithQueryConfig(cfg.Query),
	}
	if memory {
		opts = append(opts, soundmatch.WithStorage(storage.NewMemoryStorage()))
	}

	svc, err := soundmatch.NewService(opts...)
	if err != nil {
		return nil, err
	}
	if preloadDir != "" {
		if err := preload(svc, preloadDir); err != nil {
			svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

func main() {
	_ = godotenv.Load()

	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		fail("Failed to load config", err)
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			fail("Invalid log level", err)
		}
		log.SetLevel(level)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "insert":
		handleInsert(args)
	case "query":
		handleQuery(args)
	case "stream":
		handleStream(args)
	case "list":
		handleList()
	case "delete":
		handleDelete(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fail reports err to the user and exits with status 1.
func fail(msg string, err error) {
	err = xerrors.New(err)
	fmt.Printf("❌ %s: %v\n", msg, err)
	logger.GetLogger().Fatalf("%s: %v", msg, err)
}

func handleInsert(args []string) {
	log := logger.GetLogger()

	path, flagArgs := splitArgs(args)

	insertCmd := flag.NewFlagSet("insert", flag.ExitOnError)
	title := insertCmd.String("title", "", "Track title (defaults to the file metadata)")
	artist := insertCmd.String("artist", "", "Artist name (defaults to the file metadata)")
	isrc := insertCmd.String("isrc", "", "ISRC (optional)")
	insertCmd.Parse(flagArgs)

	if path == "" {
		fmt.Println("Usage: soundmatch insert <file.fp> --title <title> --artist <artist> [--isrc <code>]")
		os.Exit(1)
	}

	file, err := loadFingerprints(path)
	if err != nil {
		fail("Failed to read fingerprints", err)
	}

	info := file.Track
	if *title != "" {
		info.Title = *title
	}
	if *artist != "" {
		info.Artist = *artist
	}
	if *isrc != "" {
		info.ISRC = *isrc
	}
	if info.Title == "" || info.Artist == "" {
		fmt.Println("Error: --title and --artist are required when the file carries no metadata")
		log.Warnf("Missing required arguments: title and artist")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	track, err := svc.InsertTrack(ctx, info, file.Fingerprints)
	if err != nil {
		fail("Failed to insert track", err)
	}

	fmt.Println("\n✅ Successfully inserted track!")
	fmt.Printf("   ID:           %s\n", track.Reference)
	fmt.Printf("   Title:        %s\n", track.Title)
	fmt.Printf("   Artist:       %s\n", track.Artist)
	if track.ISRC != "" {
		fmt.Printf("   ISRC:         %s\n", track.ISRC)
	}
	fmt.Printf("   Length:       %s\n", formatSeconds(track.Length))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(len(file.Fingerprints))))
}

func handleQuery(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: soundmatch query <file.fp>")
		os.Exit(1)
	}

	file, err := loadFingerprints(args[0])
	if err != nil {
		fail("Failed to read fingerprints", err)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := svc.Query(ctx, file.Fingerprints)
	if err != nil {
		fail("Failed to query", err)
	}
	log.Infof("Query complete: %d results in %s", len(result.ResultEntries), result.Stats.QueryDuration)

	fmt.Printf("\n🔍 Analyzed %s candidates from %s tracks in %s\n",
		humanize.Comma(int64(result.Stats.TotalFingerprintsAnalyzed)),
		humanize.Comma(int64(result.Stats.TotalTracksAnalyzed)),
		result.Stats.QueryDuration.Round(time.Millisecond))

	if !result.ContainsMatches() {
		fmt.Println("\n❌ No matches found")
		return
	}

	fmt.Printf("\n✅ Found %d match(es)!\n\n", len(result.ResultEntries))
	printEntries(result.ResultEntries)
}

func handleStream(args []string) {
	path, flagArgs := splitArgs(args)

	streamCmd := flag.NewFlagSet("stream", flag.ExitOnError)
	chunk := streamCmd.Float64("chunk", 5, "Chunk length in seconds")
	streamCmd.Parse(flagArgs)

	if path == "" || *chunk <= 0 {
		fmt.Println("Usage: soundmatch stream <file.fp> [--chunk <seconds>]")
		os.Exit(1)
	}

	file, err := loadFingerprints(path)
	if err != nil {
		fail("Failed to read fingerprints", err)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	chunks := splitChunks(file.Fingerprints, *chunk)
	fmt.Printf("\n🎧 Streaming %d chunk(s) of %.1fs\n", len(chunks), *chunk)

	ctx := context.Background()
	session := svc.NewRealtimeSession()
	matched := 0
	for i, fps := range chunks {
		result, err := session.Query(ctx, fps, *chunk)
		if err != nil {
			fail(fmt.Sprintf("Failed to query chunk %d", i), err)
		}
		if result.ContainsMatches() {
			fmt.Printf("\n[chunk %d, %s]\n", i, formatSeconds(float64(i) * *chunk))
			printEntries(result.ResultEntries)
			matched += len(result.ResultEntries)
		}
	}

	if result := session.Close(); result.ContainsMatches() {
		fmt.Println("\n[end of stream]")
		printEntries(result.ResultEntries)
		matched += len(result.ResultEntries)
	}

	if matched == 0 {
		fmt.Println("\n❌ No matches found")
	}
}

func handleList() {
	log := logger.GetLogger()

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	tracks, err := svc.ListTracks(context.Background())
	if err != nil {
		fail("Failed to list tracks", err)
	}

	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in the index")
		return
	}

	var total float64
	fmt.Printf("\n📚 Found %s track(s):\n\n", humanize.Comma(int64(len(tracks))))
	for i, track := range tracks {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, track.Title, track.Artist, track.Reference)
		if track.ISRC != "" {
			fmt.Printf("   ISRC: %s\n", track.ISRC)
		}
		fmt.Printf("   Length: %s\n\n", formatSeconds(track.Length))
		total += track.Length
	}
	fmt.Printf("Total audio indexed: %s\n", formatSeconds(total))
	log.Debugf("Listed %d tracks", len(tracks))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: soundmatch delete <track_id>")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	ref, err := svc.ParseTrackReference(args[0])
	if err != nil {
		fail("Invalid track ID", err)
	}

	ctx := context.Background()
	track, err := svc.ReadTrack(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrTrackNotFound) {
			fmt.Printf("❌ Track not found (ID: %s)\n", args[0])
			log.Warnf("Track %s not found", args[0])
			os.Exit(1)
		}
		fail("Failed to read track", err)
	}

	if err := svc.DeleteTrack(ctx, ref); err != nil {
		fail("Failed to delete track", err)
	}

	fmt.Printf("\n✅ Successfully deleted track:\n")
	fmt.Printf("   ID:     %s\n", track.Reference)
	fmt.Printf("   Title:  %s\n", track.Title)
	fmt.Printf("   Artist: %s\n", track.Artist)
}

// loadFingerprints reads a fingerprint file and warns when it was produced at
// another sample rate than the configured one.
func loadFingerprints(path string) (fpfile.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fpfile.File{}, err
	}
	logger.GetLogger().Debugf("Loading %s (%s)", path, humanize.Bytes(uint64(info.Size())))

	file, err := fpfile.Load(path)
	if err != nil {
		return fpfile.File{}, err
	}
	if file.SampleRate != 0 && file.SampleRate != cfg.Fingerprint.SampleRate {
		logger.GetLogger().Warnf("%s was fingerprinted at %d Hz, configured rate is %d Hz",
			path, file.SampleRate, cfg.Fingerprint.SampleRate)
	}
	return file, nil
}

// preload inserts the fingerprint files of dir, skipping tracks the index
// already holds.
func preload(svc soundmatch.Service, dir string) error {
	log := logger.GetLogger()

	paths, err := filepath.Glob(filepath.Join(dir, "*.fp"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	inserted := 0
	for _, path := range paths {
		file, err := loadFingerprints(path)
		if err != nil {
			return fmt.Errorf("preloading %s: %w", path, err)
		}
		if file.Track.Title == "" {
			file.Track.Title = filepath.Base(path)
		}
		if _, err := svc.InsertTrack(ctx, file.Track, file.Fingerprints); err != nil {
			if errors.Is(err, soundmatch.ErrTrackExists) {
				log.Debugf("Skipping %s: %v", path, err)
				continue
			}
			return fmt.Errorf("preloading %s: %w", path, err)
		}
		inserted++
	}
	log.Infof("Preloaded %d of %d files from %s", inserted, len(paths), dir)
	return nil
}

func printEntries(entries []query.ResultEntry) {
	shown := min(len(entries), maxDisplay)
	for i, e := range entries[:shown] {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, e.Track.Title, e.Track.Artist)
		fmt.Printf("   Confidence: %.1f%% | Track at: %s | Query at: %s | Covered: %s of %s\n",
			e.Confidence*100,
			formatSeconds(e.TrackMatchStartsAt),
			formatSeconds(e.QueryMatchStartsAt),
			formatSeconds(e.QueryCoverageLength),
			formatSeconds(e.QueryLength))
	}
	if len(entries) > shown {
		fmt.Printf("... and %d more matches\n", len(entries)-shown)
	}
}

// formatSeconds prints m:ss.s, with a sign for the negative offsets of
// tracks that started before the query.
func formatSeconds(s float64) string {
	sign := ""
	if s < 0 {
		sign, s = "-", -s
	}
	m := int(s) / 60
	return fmt.Sprintf("%s%d:%04.1f", sign, m, s-float64(m*60))
}

func printUsage() {
	fmt.Println("soundmatch - audio fingerprint index and matcher")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Path to SQLite database (env: SOUNDMATCH_DB_PATH, default: soundmatch.sqlite3)")
	fmt.Println("  --config <file>    YAML settings file (env: SOUNDMATCH_CONFIG)")
	fmt.Println("  --memory           Use an in-memory index instead of SQLite")
	fmt.Println("  --preload <dir>    Insert every *.fp file in <dir> first")
	fmt.Println("\nUsage:")
	fmt.Println("  soundmatch [options] insert <file.fp> --title <title> --artist <artist> [--isrc <code>]")
	fmt.Println("  soundmatch [options] query <file.fp>")
	fmt.Println("  soundmatch [options] stream <file.fp> [--chunk <seconds>]")
	fmt.Println("  soundmatch [options] list")
	fmt.Println("  soundmatch [options] delete <track_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  soundmatch insert song.fp --title \"Song Name\" --artist \"Artist Name\"")
	fmt.Println("  soundmatch --memory --preload ./library stream recording.fp --chunk 4")
}
