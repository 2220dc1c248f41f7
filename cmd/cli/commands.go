package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/himanishpuri/RhythmDNA/pkg/logger"
	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/audio"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

func handleTimeline(args []string) error {
	positional, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("timeline", flag.ExitOnError)
	mic := cmd.Bool("mic", false, "Build the microphone timeline (voices collapsed)")
	cmd.Parse(flagArgs)

	if len(positional) != 1 {
		return errors.New("usage: rhythmdna timeline <pattern.json> [--mic]")
	}
	pattern, err := timeline.LoadPattern(positional[0])
	if err != nil {
		return err
	}
	mode := timeline.ModeController
	if *mic {
		mode = timeline.ModeMicrophone
	}
	tl, err := timeline.Build(pattern, mode)
	if err != nil {
		return err
	}

	fmt.Println(styles.title.Render(fmt.Sprintf("🥁 %s @ %.0f BPM", tl.Name(), tl.BPM())))
	fmt.Printf("   %d notes over %d steps, %.0fms per pass (fingerprint %s)\n\n",
		tl.Len(), tl.StepCount(), tl.DurationMs(), tl.Fingerprint())
	for _, n := range tl.Notes() {
		line := fmt.Sprintf("%4d  %8.1fms  %-8s %-6s", n.SequenceIndex, n.TimeMs, n.Voice, n.Dynamic)
		if n.Sticking != "" {
			line += "  " + n.Sticking
		}
		if n.Dynamic == models.DynamicGhost {
			line = styles.dim.Render(line)
		}
		fmt.Println(line)
	}
	return nil
}

func handleReplay(args []string) error {
	log := logger.GetLogger()
	positional, flagArgs := splitArgs(args)

	defaults := rhythmdna.DefaultSessionConfig()
	cmd := flag.NewFlagSet("replay", flag.ExitOnError)
	patternPath := cmd.String("pattern", "", "Pattern JSON file (required)")
	algo := cmd.String("algo", defaults.Algorithm, "Onset detector: rms or flux")
	tolerance := cmd.Float64("tolerance", defaults.ToleranceWindowMs, "Tolerance window in ms")
	latency := cmd.Float64("latency", 0, "Output latency compensation in ms")
	sensitivity := cmd.Float64("sensitivity", defaults.Sensitivity, "Detector sensitivity in standard deviations")
	verbose := cmd.Bool("hits", false, "Print every scored hit")
	cmd.Parse(flagArgs)

	if len(positional) != 1 || *patternPath == "" {
		return errors.New("usage: rhythmdna replay <audio_file> --pattern <pattern.json>")
	}
	audioPath := positional[0]
	pattern, err := timeline.LoadPattern(*patternPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if rec, err := audio.Probe(ctx, audioPath); err == nil {
		fmt.Printf("🎧 %s: %s, %d Hz, %d ch, %.1fs\n", rec.Filename, rec.Format, rec.SampleRate, rec.Channels, rec.DurationSec)
	} else {
		log.Warnf("Could not probe %s: %v", audioPath, err)
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer svc.Close()

	cfg := defaults
	cfg.Algorithm = *algo
	cfg.ToleranceWindowMs = *tolerance
	cfg.LatencyAdjustmentMs = *latency
	cfg.Sensitivity = *sensitivity

	fmt.Println("🔍 Detecting onsets and scoring...")
	summary, err := svc.ReplayFile(ctx, audioPath, pattern, cfg)
	if err != nil {
		return err
	}

	if *verbose {
		hits, err := svc.GetSessionHits(summary.ID)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, h := range hits {
			fmt.Println(renderHit(h))
		}
	}
	printSummary(summary)
	return nil
}

// findInPort picks an input port by case-insensitive substring, or the
// first port when name is empty.
func findInPort(ins []drivers.In, name string) (drivers.In, error) {
	if len(ins) == 0 {
		return nil, errors.New("no MIDI input ports found")
	}
	if name == "" {
		return ins[0], nil
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(name)) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("MIDI input %q not found", name)
}

func handlePorts() error {
	defer midi.CloseDriver()
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		fmt.Println("📭 No MIDI input ports")
		return nil
	}
	fmt.Println("🎹 MIDI input ports:")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

func handleMIDI(args []string) error {
	log := logger.GetLogger()
	_, flagArgs := splitArgs(args)

	defaults := rhythmdna.DefaultSessionConfig()
	cmd := flag.NewFlagSet("midi", flag.ExitOnError)
	patternPath := cmd.String("pattern", "", "Pattern JSON file (required)")
	portName := cmd.String("port", "", "MIDI input port name (substring match, default first port)")
	countIn := cmd.Int("countin", 4, "Count-in beats before the pattern starts")
	duration := cmd.Duration("duration", 0, "How long to listen (default: one pass plus a second)")
	tolerance := cmd.Float64("tolerance", defaults.ToleranceWindowMs, "Tolerance window in ms")
	latency := cmd.Float64("latency", 0, "Output latency compensation in ms")
	cmd.Parse(flagArgs)

	if *patternPath == "" {
		return errors.New("usage: rhythmdna midi --pattern <pattern.json>")
	}
	pattern, err := timeline.LoadPattern(*patternPath)
	if err != nil {
		return err
	}

	defer midi.CloseDriver()
	in, err := findInPort(midi.GetInPorts(), *portName)
	if err != nil {
		return err
	}

	svc, err := createService()
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer svc.Close()

	cfg := defaults
	cfg.Input = models.SourceController
	cfg.ToleranceWindowMs = *tolerance
	cfg.LatencyAdjustmentMs = *latency
	sess, err := svc.NewSession(pattern, cfg)
	if err != nil {
		return err
	}

	beatMs := 60000 / pattern.BPM
	startMs := float64(*countIn) * beatMs
	listen := *duration
	if listen <= 0 {
		listen = time.Duration(startMs+sess.Timeline().DurationMs())*time.Millisecond + time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t0 := time.Now()
	if err := sess.Start(ctx, startMs); err != nil {
		return err
	}
	stopListening, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		at := float64(time.Since(t0).Microseconds()) / 1000
		if err := sess.ProcessController(msg.Bytes(), at); err != nil {
			log.Debugf("midi: %v", err)
		}
	}, midi.HandleError(func(err error) {
		log.Warnf("midi: listener error on %s: %v", in.String(), err)
	}))
	if err != nil {
		sess.Stop(context.Background())
		return fmt.Errorf("listening on %s: %w", in.String(), err)
	}

	fmt.Printf("🎹 Listening on %s for %s\n", in.String(), listen.Round(time.Second))
	go countInBeats(ctx, *countIn, time.Duration(beatMs*float64(time.Millisecond)))

	timer := time.NewTimer(listen)
	defer timer.Stop()
	hits := sess.Hits()
loop:
	for {
		select {
		case h := <-hits:
			fmt.Println(renderHit(h))
		case <-timer.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	stopListening()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := sess.Stop(stopCtx)
	if err != nil && summary.ID == "" {
		return err
	}
	// The feed is closed once the matcher has drained.
	for h := range hits {
		fmt.Println(renderHit(h))
	}
	if err != nil {
		return err
	}
	if stats := sess.Stats(); stats.QueueDropped > 0 || stats.FeedDropped > 0 {
		log.Warnf("Dropped %d queued and %d displayed hits", stats.QueueDropped, stats.FeedDropped)
	}
	printSummary(summary)
	return nil
}

func countInBeats(ctx context.Context, beats int, beat time.Duration) {
	for i := 1; i <= beats; i++ {
		fmt.Println(styles.dim.Render(fmt.Sprintf("   %d…", i)))
		select {
		case <-time.After(beat):
		case <-ctx.Done():
			return
		}
	}
	fmt.Println(styles.title.Render("   ▶ go"))
}

func handleList() error {
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer svc.Close()

	sessions, err := svc.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("\n📭 No practice sessions yet")
		return nil
	}

	fmt.Printf("\n📚 %s session(s):\n\n", humanize.Comma(int64(len(sessions))))
	for i, s := range sessions {
		fmt.Printf("%d. %s @ %.0f BPM  %s  %s\n", i+1, s.PatternName, s.BPM,
			accuracyStyle(s.AccuracyPercent).Render(fmt.Sprintf("%5.1f%%", s.AccuracyPercent)),
			styles.dim.Render(humanize.Time(s.StartTime)))
		fmt.Printf("   ID: %s (%s)\n", s.ID, s.InputMode)
	}
	return nil
}

func handleShow(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: rhythmdna show <session_id>")
	}
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer svc.Close()

	summary, err := svc.GetSession(args[0])
	if err != nil {
		return err
	}
	hits, err := svc.GetSessionHits(args[0])
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Println(renderHit(h))
	}
	printSummary(summary)
	return nil
}

func handleDelete(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: rhythmdna delete <session_id>")
	}
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}
	defer svc.Close()

	summary, err := svc.GetSession(args[0])
	if err != nil {
		return err
	}
	if err := svc.DeleteSession(args[0]); err != nil {
		return err
	}
	fmt.Printf("\n✅ Deleted session %s (%s, %s)\n", summary.ID, summary.PatternName, humanize.Time(summary.StartTime))
	logger.GetLogger().Infof("Deleted session %s", summary.ID)
	return nil
}
