package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"codeberg.org/odysseus/odytelem/internal/cell"
	"codeberg.org/odysseus/odytelem/internal/clock"
	"codeberg.org/odysseus/odytelem/internal/config"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/journal"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/mqtt"
	"codeberg.org/odysseus/odytelem/internal/pid"
	"codeberg.org/odysseus/odytelem/internal/sampler"
	"codeberg.org/odysseus/odytelem/internal/stats"
	"codeberg.org/odysseus/odytelem/internal/sysinfo"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
	"github.com/spf13/pflag"
)

const agentName = "odytelem"

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel.Level(), logger.IsService())
	logger.Debug().
		Str("config_file", cfg.ConfigFile).
		Str("log_level", cfg.LogLevel.String()).
		Msg("Config loaded")
}

func main() {
	if err := pid.Write(agentName); err != nil {
		logError(err, "failed to write PID file")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err := run(ctx)
	cancel()

	if rmErr := pid.Remove(agentName); rmErr != nil {
		logger.Warn().Err(rmErr).Msg("failed to remove PID file")
	}

	if err != nil {
		logError(err, "error in main loop")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	queue := make(chan telemetry.Measurement, cfg.QueueCapacity)

	var inbound *cell.Cell
	if cfg.InboundTopic != "" {
		inbound = cell.New()
		if err := stats.RegisterSignal(cfg.InboundTopic, inbound.Load); err != nil {
			return err
		}
	}

	if cfg.MetricsListen != "" {
		if _, err := stats.Serve(ctx, cfg.MetricsListen); err != nil {
			return err
		}
	}

	jrnl, err := journal.New(cfg.JournalConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close publish journal")
		}
	}()
	logJournal(jrnl)

	src, err := sysinfo.New(cfg.SysinfoConfig(), clock.Real())
	if err != nil {
		return err
	}
	trackedPID, _ := sampler.ResolvePID(cfg.PIDFile)

	processor, conn, err := mqtt.NewProcessor(queue, cfg.ProcessorOptions(inbound), mqtt.WithJournal(jrnl))
	if err != nil {
		return err
	}

	transport, err := mqtt.Dial(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer transport.Close()

	samplerCtx, stopSampler := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// the processor stops publishing once the queue is closed
		defer close(queue)
		sampler.New(src, queue, trackedPID).Run(samplerCtx)
	}()

	err = processor.Process(ctx, transport)
	stopSampler()
	wg.Wait()

	if inbound != nil {
		logger.Debug().Msg(inbound.Label(cfg.InboundTopic))
	}

	return err
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func logJournal(j journal.Journal) {
	entries, err := j.Entries()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read publish journal")
		return
	}

	for _, e := range entries {
		logger.Debug().
			Str("topic", e.Topic).
			Str("unit", e.Unit).
			Float32("value", e.Value).
			Uint64("time_us", e.TimeUS).
			Int64("count", e.Count).
			Msg("Last published")
	}
}

func logError(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.ErrorWithCode(coded).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
