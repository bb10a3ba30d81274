package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/httpx"
	"github.com/flashlab/termscp/internal/localfs"
	"github.com/flashlab/termscp/internal/progress"
	"github.com/flashlab/termscp/internal/session"
	"github.com/flashlab/termscp/internal/transfer"
	"github.com/flashlab/termscp/internal/util/buffers"
)

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// cliSession bundles a connected controller with the event bus the
// progress consumer reads from.
type cliSession struct {
	ctl *session.Controller
	cfg *config.Config
	bus *events.EventBus
}

// openSession loads config, builds the remote provider from --remote
// and connects. The caller must close() the session when done.
func openSession(ctx context.Context) (*cliSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := promptProxyPassword(cfg); err != nil {
		return nil, err
	}
	buffers.SetChunkSize(cfg.Transfer.ChunkSize)

	provider, dir, err := newProvider(cfg, remoteTarget)
	if err != nil {
		return nil, err
	}

	host, err := localfs.New(".")
	if err != nil {
		return nil, fmt.Errorf("failed to open local working directory: %w", err)
	}

	bus := events.NewEventBus(0)
	ctl := session.NewController(host, provider, cfg, GetLogger(), bus)

	if err := ctl.Connect(ctx); err != nil {
		bus.Close()
		return nil, err
	}
	if dir != "/" {
		if err := ctl.RemoteChangeDir(ctx, dir, false); err != nil {
			ctl.Disconnect()
			bus.Close()
			return nil, fmt.Errorf("failed to enter remote directory %s: %w", dir, err)
		}
	}

	return &cliSession{ctl: ctl, cfg: cfg, bus: bus}, nil
}

func (s *cliSession) close() {
	if err := s.ctl.Disconnect(); err != nil {
		GetLogger().Warnf("Disconnect failed: %v", err)
	}
	s.bus.Close()
	stats := buffers.GetStats()
	GetLogger().Debugf("Buffer pool: %d checkouts, %d allocations of %d-byte buffers",
		stats.ChunkCheckouts, stats.ChunkAllocations, stats.ChunkBufferSize)
}

// promptProxyPassword asks for the proxy password on the terminal when
// the config names a proxy user but carries no password.
func promptProxyPassword(cfg *config.Config) error {
	if !httpx.NeedsProxyPassword(cfg) {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("proxy user %s requires a password; set proxy.password in the config or run interactively", cfg.Proxy.User)
	}
	fmt.Fprintf(os.Stderr, "Proxy password for %s: ", cfg.Proxy.User)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read proxy password: %w", err)
	}
	cfg.Proxy.Password = string(pw)
	return nil
}

// newReporter picks the progress rendering for a payload: a byte bar
// for single files, the multi-bar batch UI otherwise, nothing under
// --quiet. Bars draw on stderr so stdout stays parseable.
func newReporter(payload transfer.Payload) progress.Reporter {
	if quiet {
		return progress.NewQuiet()
	}
	if payload.Kind == transfer.PayloadFile {
		return progress.NewBar(os.Stderr)
	}
	return progress.NewBatchBar(os.Stderr)
}

// runTransfer renders progress from the bus while fn drives the engine.
// The consumer subscribes before fn starts so no event is missed, and
// keeps running until fn returns so a cancellation's terminal event is
// still rendered.
func runTransfer(bus *events.EventBus, rep progress.Reporter, fn func() error) error {
	consumer := progress.NewConsumer(bus, rep)
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(runCtx)
	}()

	err := fn()

	stop()
	<-done
	return err
}
