// Command hippos runs the robot's game machines on the host, against a
// simulated field status reporter and a hardware recorder. A scenario
// script stands in for the sensors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/config"
	"github.com/hippos-robot/hsm/fsr"
	"github.com/hippos-robot/hsm/game"
	"github.com/hippos-robot/hsm/hal"
	"github.com/hippos-robot/hsm/scenario"
	"github.com/hippos-robot/hsm/sense"
)

// watchPeriod is how often the run checks for the end of the game
const watchPeriod = 100 * time.Millisecond

func main() {
	var (
		configPath   = flag.String("config", "", "YAML configuration file (defaults apply when empty)")
		scenarioPath = flag.String("scenario", "", "YAML scenario of sensor stimuli")
		logLevel     = flag.String("log-level", "", "log level, overrides the configuration")
		grace        = flag.Duration("grace", 2*time.Second, "time to keep running after the scenario ends")
	)
	flag.Parse()

	if err := run(*configPath, *scenarioPath, *logLevel, *grace); err != nil {
		slog.Error("hippos stopped", "error", err)
		var ie *hsm.InitError
		if errors.As(err, &ie) {
			slog.Error("initialisation failed", "category", ie.Category)
		}
		os.Exit(1)
	}
}

func run(configPath, scenarioPath, logLevel string, grace time.Duration) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return hsm.InitFailed(hsm.InitConfig, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	hsm.Logger = logger

	var script *scenario.Script
	if scenarioPath != "" {
		if script, err = scenario.Load(scenarioPath); err != nil {
			return hsm.InitFailed(hsm.InitConfig, err)
		}
	}

	settings := cfg.Settings()
	d := hsm.NewDispatcher(cfg.Tick, hsm.WithDispatcherLogger(logger))
	rec := hal.NewRecorder(logger)
	sim := fsr.NewSimulator()
	// the simulator answers at once, so the bus waits are skipped
	opts := append(cfg.SensorOptions(), fsr.WithPause(func(time.Duration) {}), fsr.WithLogger(logger))
	reporter := fsr.New(sim, opts...)
	clock := sense.NewTimebase(settings.Sensing.CountsPerMilli)

	robot, err := game.NewRobot(d, rec, reporter, clock, settings, logger)
	if err != nil {
		return err
	}
	player, err := scenario.NewPlayer(script, robot, sim, cfg.Tick, logger)
	if err != nil {
		return hsm.InitFailed(hsm.InitFramework, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	end := time.Duration(-1)
	if script != nil {
		end = script.End() + grace
	}
	d.Every("clock", cfg.Tick, player.Advance)
	d.Every("run-watch", watchPeriod, func() {
		switch {
		case robot.Over():
			cancel(errGameOver)
		case end >= 0 && player.Done() && player.Elapsed() >= end:
			cancel(errScenarioOver)
		}
	})

	if err := robot.Begin(); err != nil {
		return err
	}
	logger.Info("hippos running", "tick", cfg.Tick, "game", settings.Game.Length, "scenario", scenarioPath)

	err = d.Run(ctx)
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errGameOver), errors.Is(cause, errScenarioOver):
		logger.Info("run finished", "reason", cause, "phase", robot.Master.State(), "balls", robot.Balls.Count())
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted", "phase", robot.Master.State())
		return nil
	case err != nil:
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}

var (
	errGameOver     = errors.New("game over")
	errScenarioOver = errors.New("scenario over")
)
