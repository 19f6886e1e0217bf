package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/config"
	"codeberg.org/mutker/bmsmon/internal/engine"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"codeberg.org/mutker/bmsmon/internal/logger"
	"codeberg.org/mutker/bmsmon/internal/pid"
	"codeberg.org/mutker/bmsmon/internal/publish"
	"github.com/coreos/go-systemd/daemon"
	"github.com/spf13/pflag"
)

const statusInterval = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel.String(), logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Str("file", cfg.File).Msg("Config loaded")

	pidFile := pid.ForInterface(cfg.Interface)
	if err := pidFile.Write(); err != nil {
		logger.Fatal().Err(err).Str("interface", cfg.Interface).Msg("Failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	exitCode := 0
	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Acquisition failed")
		exitCode = 1
	}

	cleanup(pidFile)
	os.Exit(exitCode)
}

func run(ctx context.Context, cfg *config.Config) error {
	opener, err := newOpener(cfg)
	if err != nil {
		return err
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	log := logger.Default()
	mon := newMonitor(log.With("monitor"), publisher)

	eng := engine.New(opener, engine.Config{
		Bitrate:        channel.Bitrate(cfg.Bitrate),
		PollInterval:   cfg.PollInterval,
		JoinTimeout:    cfg.JoinTimeout,
		FaultThreshold: cfg.FaultThreshold,
	}, mon.observe, log)

	if err := eng.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("driver", cfg.Driver.String()).
		Str("interface", cfg.Interface).
		Msg("Monitoring battery")
	sdnotify(daemon.SdNotifyReady)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sdnotify(daemon.SdNotifyStopping)
			// A release failure is logged by the engine and does not fail the run.
			_ = eng.Stop()
			logStats(eng.Stats())
			return nil
		case <-ticker.C:
			logStatus(eng)
		}
	}
}

func newOpener(cfg *config.Config) (channel.Opener, error) {
	switch cfg.Driver {
	case config.DriverSocketCAN:
		return channel.NewSocketCAN(cfg.Interface), nil
	case config.DriverSLCAN:
		return channel.NewSLCAN(cfg.Interface, cfg.SerialBaud), nil
	case config.DriverReplay:
		r := channel.NewReplay(cfg.Interface)
		r.Loop = cfg.ReplayLoop
		return r, nil
	default:
		return nil, errors.New().WithData(errors.ErrUnsupportedBus, cfg.Driver)
	}
}

func newPublisher(cfg *config.Config) publish.Publisher {
	if !cfg.MQTT.Enabled {
		logger.Debug().Msg("MQTT publishing disabled, using no-op publisher")
		return publish.NewNoop()
	}

	return publish.NewMQTT(publish.Config{
		Broker:   cfg.MQTT.Broker,
		Topic:    cfg.MQTT.Topic,
		ClientID: cfg.MQTT.ClientID,
		QoS:      byte(cfg.MQTT.QoS),
		Retained: cfg.MQTT.Retained,
	}, logger.Default())
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(pidFile *pid.File) {
	if err := pidFile.Remove(); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func sdnotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.Warn().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}

func logStatus(eng *engine.Engine) {
	snap, ok := eng.Latest()
	if !ok {
		logger.Warn().Msg("No telemetry received yet")
		return
	}

	ev := logger.Info().Bool("alarm", snap.Alarms.Any())
	if snap.PackSet {
		ev = ev.
			Str("pack", snap.Pack.Sum.String()).
			Str("vmin", snap.Pack.Min.String()).
			Str("vmax", snap.Pack.Max.String())
	}
	ev.Msg("Battery status")
}

func logStats(s engine.Stats) {
	logger.Info().
		Uint64("frames", s.Frames).
		Uint64("decoded", s.Decoded).
		Uint64("skipped", s.Skipped).
		Uint64("faults", s.Faults).
		Uint64("overruns", s.Overruns).
		Msg("Acquisition summary")
}
