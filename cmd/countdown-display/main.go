package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/display"
	"github.com/tartampluch/card-countdown/internal/engine"
	"github.com/tartampluch/card-countdown/internal/sensor"
	"github.com/tartampluch/card-countdown/internal/server"
	"github.com/tartampluch/card-countdown/internal/store"
)

// main delegates to runMain so that deferred calls run before os.Exit.
func main() {
	os.Exit(runMain())
}

// runMain manages the application lifecycle, argument parsing, and exit codes.
func runMain() int {
	showVersion := flag.Bool(config.FlagVersion, false, config.FlagDescVersion)
	debugMode := flag.Bool(config.FlagDebug, false, config.FlagDescDebug)
	settingsPath := flag.String(config.FlagConfig, config.DefaultConfigPath, config.FlagDescConfig)
	flag.Parse()

	if *showVersion {
		printVersion()
		return config.ExitCodeSuccess
	}

	logCloser := setupLogging(*debugMode)
	if logCloser != nil {
		defer func() {
			_ = logCloser.Close()
		}()
	}

	// Root context cancels on SIGINT (Ctrl+C), SIGTERM or a restart request.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logStartupInfo()

	var restart atomic.Bool
	requestRestart := func() {
		slog.Info(config.MsgRestarting, config.LogKeyComponent, config.CompMain)
		restart.Store(true)
		cancel()
	}

	if err := run(ctx, *settingsPath, requestRestart); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	if restart.Load() {
		return config.ExitCodeRestart
	}
	return config.ExitCodeSuccess
}

// run wires the store, sensor, renderer, control loop and HTTP server, and
// blocks until ctx is cancelled or the server fails.
func run(ctx context.Context, settingsPath string, restart func()) error {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return err
	}
	loc, err := settings.Location()
	if err != nil {
		return err
	}

	st, err := store.Open(settings.StorePath(), settings.Storage.Capacity)
	if err != nil {
		return err
	}

	reader, err := sensor.New(settings.Sensor)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	frameFeed := server.NewFeed("frame", config.MimeImagePNG)
	renderer := display.NewRenderer(display.Options{
		Width:      settings.Display.Width,
		Height:     settings.Display.Height,
		OutputPath: settings.Display.OutputPath,
		ImagesDir:  settings.ImagesDir(),
		Language:   settings.Locale.Language,
		Publisher:  frameFeed,
	})

	clock := engine.RealClock{}
	loop := engine.NewLoop(reader, renderer, st, clock, engine.LoopConfig{
		PollInterval:     settings.Loop.PollInterval(),
		MidnightInterval: settings.Loop.MidnightCheck(),
		Location:         loc,
	})

	srv := server.New(server.Deps{
		Store:      st,
		Loop:       loop,
		Clock:      clock,
		Location:   loc,
		Frame:      frameFeed,
		ListenAddr: settings.Server.ListenAddr,
		StaticDir:  settings.Server.StaticDir,
		ImagesDir:  settings.ImagesDir(),
		ScanWindow: settings.Loop.ScanWindow(),
		Restart:    restart,
	})

	refreshCalendar := func() {
		if err := srv.RefreshCalendar(); err != nil {
			slog.Error(config.ErrICalEncode,
				config.LogKeyComponent, config.CompMain,
				config.LogKeyError, err,
			)
		}
	}
	refreshCalendar()

	// Every persisted edit invalidates the panel and the calendar.
	st.Subscribe(func(uid string) {
		slog.Debug(config.MsgRecordChanged,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyUID, uid,
		)
		loop.Invalidate(uid)
		refreshCalendar()
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, config.ChannelBufferSize)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	srvErr := srv.Start(ctx)
	// A server that fails on its own takes the loop down with it.
	cancel()
	loopErr := <-loopDone

	if srvErr != nil {
		return srvErr
	}
	return loopErr
}

// printVersion outputs the build information to stdout.
func printVersion() {
	fmt.Printf(config.MsgVersionOutput,
		config.AppName,
		config.Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging configures the default slog logger: JSON to stdout and to a
// log file in the user's cache directory when one can be opened.
func setupLogging(debugMode bool) io.Closer {
	writers := []io.Writer{os.Stdout}
	var logFile *os.File

	if logPath, err := getLogFilePath(); err == nil {
		// O_TRUNC resets logs on restart to prevent indefinite growth.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}))
	slog.SetDefault(logger)

	if logFile == nil {
		return nil
	}
	return logFile
}

// getLogFilePath determines the platform-specific cache directory for logs.
func getLogFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	appDir := filepath.Join(cacheDir, config.AppID)
	if err := os.MkdirAll(appDir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	return filepath.Join(appDir, config.LogFileName), nil
}
