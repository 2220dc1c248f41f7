package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/himanishpuri/RhythmDNA/pkg/logger"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/audio"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	sampleRate int
)

func init() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("RHYTHM_DB_PATH", rhythmdna.DefaultDBFile), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("RHYTHM_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "Sample rate for converted recordings")
	flag.Usage = printUsage
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new RhythmDNA service with configured options
func createService() (rhythmdna.Service, error) {
	return rhythmdna.NewService(
		rhythmdna.WithDBPath(dbPath),
		rhythmdna.WithTempDir(tempDir),
		rhythmdna.WithSampleRate(sampleRate),
		rhythmdna.WithLogger(logger.Named("cli")),
	)
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	var err error
	switch command {
	case "timeline":
		err = handleTimeline(args)
	case "replay":
		err = handleReplay(args)
	case "midi":
		err = handleMIDI(args)
	case "ports":
		err = handlePorts()
	case "list":
		err = handleList()
	case "show":
		err = handleShow(args)
	case "delete":
		err = handleDelete(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Println(styles.bad.Render("❌ " + err.Error()))
		log.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 ____  _           _   _               ____  _   _    _
|  _ \| |__  _   _| |_| |__  _ __ ___ |  _ \| \ | |  / \
| |_) | '_ \| | | | __| '_ \| '_ ' _ \| | | |  \| | / _ \
|  _ <| | | | |_| | |_| | | | | | | | | |_| | |\  |/ ___ \
|_| \_\_| |_|\__, |\__|_| |_|_| |_| |_|____/|_| \_/_/   \_\
             |___/
              Drum Practice Timing Coach
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("RhythmDNA - Drum Practice Timing CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Path to SQLite database (env: RHYTHM_DB_PATH, default: rhythmdna.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: RHYTHM_TEMP_DIR)")
	fmt.Println("  --rate <hz>        Sample rate for converted recordings (default: 48000)")
	fmt.Println("\nUsage:")
	fmt.Println("  rhythmdna [global-options] timeline <pattern.json> [--mic]")
	fmt.Println("  rhythmdna [global-options] replay <audio_file> --pattern <pattern.json> [--algo rms|flux] [--tolerance ms] [--latency ms] [--sensitivity k]")
	fmt.Println("  rhythmdna [global-options] midi --pattern <pattern.json> [--port name] [--countin beats] [--duration d]")
	fmt.Println("  rhythmdna [global-options] ports")
	fmt.Println("  rhythmdna [global-options] list")
	fmt.Println("  rhythmdna [global-options] show <session_id>")
	fmt.Println("  rhythmdna [global-options] delete <session_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Score a recorded take with the spectral flux detector")
	fmt.Println("  rhythmdna replay take.m4a --pattern backbeat.json --algo flux --latency 30")
	fmt.Println()
	fmt.Println("  # Practice live on an electronic kit")
	fmt.Println("  rhythmdna midi --pattern backbeat.json --port \"TD-17\"")
}
