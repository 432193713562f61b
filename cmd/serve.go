package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/mellowtone/atkd/internal/engine"
	"github.com/mellowtone/atkd/internal/ipc"
	"github.com/mellowtone/atkd/internal/runtimedir"
	"github.com/mellowtone/atkd/internal/session"
)

var (
	serveDeviceIdx   int
	serveFrames      int
	serveRuntimeDir  string
	serveDataDir     string
	serveStateDir    string
	serveVerbose     bool
)

// serveCmd runs the daemon in the foreground, grounded on the teacher's
// playerCmd/playlistCmd flag and PortAudio-lifecycle pattern
// (cmd/player.go, cmd/fileplayer.go), generalized from "play one file and
// exit" to "run the session controller until signaled".
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audio daemon in the foreground",
	Long: `serve starts the daemon: it opens the command/response named
pipes in the runtime directory, initializes PortAudio, and dispatches
playback-control commands until it receives SIGINT or SIGTERM.

Examples:
  # Run with the default output device
  atkd serve

  # Run against a specific output device, verbose logging
  atkd serve --device 2 --verbose`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&serveDeviceIdx, "device", "d", 0, "Audio output device index")
	serveCmd.Flags().IntVarP(&serveFrames, "frames", "f", 1024, "Audio frames per PortAudio callback")
	serveCmd.Flags().StringVar(&serveRuntimeDir, "runtime-dir", "", "Override ${runtime} (pipes, pid file)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Override ${data} (playlists)")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "Override ${state} (logs)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func runServe(cmd *cobra.Command, args []string) {
	dirs, err := runtimedir.Resolve(serveRuntimeDir, serveDataDir, serveStateDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger, closeLog := newLogger(dirs.State, serveVerbose)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	eng := engine.New(serveDeviceIdx, serveFrames)
	controller := session.New(eng, dirs.Data)

	transport := ipc.New(dirs.Runtime, controller)
	if err := transport.Acquire(); err != nil {
		slog.Error("failed to acquire daemon lock", "error", err)
		os.Exit(1)
	}
	defer transport.Release()

	ctx, cancel := context.WithCancel(context.Background())
	controller.AttachSink(transport)
	go controller.Run(ctx)

	stopCh := make(chan struct{})
	go func() {
		transport.Serve(stopCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	close(stopCh)
	cancel()
	_ = eng.Stop()
}

// newLogger builds a slog.Logger writing structured JSON to
// ${state}/daemon.log, falling back to stderr if the file can't be opened
// — the teacher's own "wrap whatever io.Writer is available" idiom from
// cmd/player.go's slog.NewTextHandler(os.Stderr, ...) usage.
func newLogger(stateDir string, verbose bool) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logPath := stateDir + "/daemon.log"
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return slog.New(handler), func() {}
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler), func() { f.Close() }
}
