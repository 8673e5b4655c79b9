package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nsauthd/nsauthd/internal/ns/common/clock"
	"github.com/nsauthd/nsauthd/internal/ns/common/log"
	"github.com/nsauthd/nsauthd/internal/ns/config"
	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/notify"
	"github.com/nsauthd/nsauthd/internal/ns/query"
	"github.com/nsauthd/nsauthd/internal/ns/quic"
	"github.com/nsauthd/nsauthd/internal/ns/resolve"
	"github.com/nsauthd/nsauthd/internal/ns/snapshot"
	"github.com/nsauthd/nsauthd/internal/ns/transport/udp"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
	"github.com/nsauthd/nsauthd/internal/ns/zone"
)

const (
	version = "0.1.0-dev"
	appName = "nsauthd"

	defaultTTL             = time.Hour
	snapshotHistorySize    = 8
	defaultShutdownTimeout = 10 * time.Second
)

// Application holds every long-running component nsauthd wires together.
type Application struct {
	cfg          *config.AppConfig
	store        *snapshot.Store
	listener     *udp.Listener
	quicListener *quic.Listener
	tickets      *quic.TicketStore
	requestor    *notify.Requestor
	clk          clock.Clock

	// lastSerial tracks the SOA serial this process last saw per zone, so
	// a reload that reloads identical content (a touch, a failed edit
	// retried) does not fire a redundant NOTIFY.
	lastSerial map[domain.Name]uint32
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"udp_port":   cfg.UDP.Port,
		"udp_workers": cfg.UDP.Workers,
		"zone_dir":   cfg.Zone.Directory,
		"quic_enabled": cfg.QUIC.Enabled,
	}, fmt.Sprintf("starting %s", appName))

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to build application")
	}
	if app.tickets != nil {
		defer app.tickets.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "server failed")
	}
}

func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	store := snapshot.NewStore(snapshotHistorySize, snapshot.WithClock(clk))
	requestor := notify.NewRequestor(notify.Options{
		Timeout:    time.Duration(cfg.Notify.TimeoutMS) * time.Millisecond,
		MaxRetries: cfg.Notify.MaxRetries,
	})

	listener := udp.NewListener(
		fmt.Sprintf(":%d", cfg.UDP.Port),
		store,
		udp.WithWorkers(cfg.UDP.Workers),
		udp.WithBatchSize(cfg.UDP.BatchSize),
		udp.WithClock(clk),
	)

	app := &Application{
		cfg:        cfg,
		store:      store,
		listener:   listener,
		requestor:  requestor,
		clk:        clk,
		lastSerial: make(map[domain.Name]uint32),
	}

	if cfg.QUIC.Enabled {
		quicListener, tickets, err := buildQUICListener(cfg, store)
		if err != nil {
			return nil, fmt.Errorf("building quic listener: %w", err)
		}
		app.quicListener = quicListener
		app.tickets = tickets
	}

	return app, nil
}

// buildQUICListener wires a quic.Demultiplexer to the same query processor
// (C5) the UDP pipeline drives, over a persistent session-ticket store so
// 0-RTT resumption survives a restart.
func buildQUICListener(cfg *config.AppConfig, store *snapshot.Store) (*quic.Listener, *quic.TicketStore, error) {
	cert, err := tls.LoadX509KeyPair(cfg.QUIC.CertFile, cfg.QUIC.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading quic certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"doq"},
		MinVersion:   tls.VersionTLS13,
	}

	tickets, err := quic.OpenTicketStore(cfg.QUIC.TicketDB)
	if err != nil {
		return nil, nil, err
	}
	quic.WireSessionStore(tlsConfig, tickets)

	processor := resolve.NewProcessor(store, domain.NoopTSIGVerifier{})
	handler := func(ctx context.Context, q []byte) []byte {
		buf := make([]byte, query.MaxMessageSize)
		out, ok := query.Drive(processor, resolve.Params{Transport: resolve.TransportQUIC}, q, buf)
		if !ok {
			return nil
		}
		return out
	}

	retrySecret := make([]byte, 32)
	if _, err := rand.Read(retrySecret); err != nil {
		return nil, nil, fmt.Errorf("generating quic retry secret: %w", err)
	}

	demux := quic.NewDemultiplexer(quic.Options{
		TableSize:   cfg.QUIC.TableSize,
		RetrySecret: retrySecret,
		RetryBits:   cfg.QUIC.RetryFilter,
		TLSConfig:   tlsConfig,
	}, handler)

	return quic.NewListener(fmt.Sprintf(":%d", cfg.QUIC.Port), demux), tickets, nil
}

// Run starts the zone watcher, the UDP listener and, when configured, the
// QUIC listener, and blocks until ctx is canceled or one of them returns,
// then waits up to defaultShutdownTimeout for the rest to stop.
func (a *Application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel() // any return path stops whichever of watch/serve is still running

	watchErrs := make(chan error, 1)
	go func() {
		watchErrs <- zone.Watch(runCtx, a.cfg.Zone.Directory, defaultTTL, a.onReload)
	}()

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- a.listener.Run(runCtx)
	}()

	errChans := []<-chan error{watchErrs, serveErrs}

	var quicErrs chan error
	if a.quicListener != nil {
		quicErrs = make(chan error, 1)
		go func() {
			quicErrs <- a.quicListener.Run(runCtx)
		}()
		errChans = append(errChans, quicErrs)
	}

	var firstErr error
	pending := len(errChans)
	select {
	case firstErr = <-watchErrs:
		pending--
		cancel()
	case firstErr = <-serveErrs:
		pending--
		cancel()
	case err := <-quicErrs:
		firstErr = err
		pending--
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()

	for pending > 0 {
		select {
		case err := <-watchErrs:
			pending--
			if err != nil && firstErr == nil {
				firstErr = err
			}
			watchErrs = nil
		case err := <-serveErrs:
			pending--
			if err != nil && firstErr == nil {
				firstErr = err
			}
			serveErrs = nil
		case err := <-quicErrs:
			pending--
			if err != nil && firstErr == nil {
				firstErr = err
			}
			quicErrs = nil
		case <-shutdownCtx.Done():
			return firstErr
		}
	}
	return firstErr
}

// onReload publishes a fresh snapshot from zones and, for every zone whose
// SOA serial increased since the last publish, notifies the configured
// secondaries (RFC 1996).
func (a *Application) onReload(zones map[domain.Name]*zone.Zone) {
	snap := &snapshot.Snapshot{
		Generation:  snapshotGeneration(),
		Zones:       make(map[string]*zone.Zone, len(zones)),
		PublishedAt: a.clk.Now(),
	}
	for apex, z := range zones {
		snap.Zones[string(apex.Canonical())] = z
	}
	a.store.Publish(snap)
	log.Info(map[string]any{"zones": len(zones)}, "published zone snapshot")

	if len(a.cfg.Notify.Peers) == 0 {
		return
	}
	for apex, z := range zones {
		soa := z.SOA()
		if soa.Len() != 1 {
			continue
		}
		serial, ok := wire.SOASerial(soa.Rdata[0])
		if !ok {
			continue
		}
		if prev, seen := a.lastSerial[apex]; seen && serial <= prev {
			continue
		}
		a.lastSerial[apex] = serial
		go a.notifyPeers(apex, soa)
	}
}

func (a *Application) notifyPeers(apex domain.Name, soa domain.RRSet) {
	req := notify.BuildNotify(nextNotifyID(), apex, &soa)
	perPeer := time.Duration(a.cfg.Notify.TimeoutMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), perPeer*time.Duration(len(a.cfg.Notify.Peers)+1))
	defer cancel()
	if _, err := a.requestor.Notify(ctx, a.cfg.Notify.Peers, req); err != nil {
		log.Warn(map[string]any{"zone": string(apex), "error": err.Error()}, "notify failed for all peers")
	}
}

// generationCounter is package-level state safe only because it is driven
// from exactly one goroutine, the single zone.Watch reload loop.
var generationCounter uint64

func snapshotGeneration() uint64 {
	generationCounter++
	return generationCounter
}

// notifyIDCounter is incremented from one goroutine per changed zone, so
// unlike generationCounter it needs an atomic.
var notifyIDCounter atomic.Uint32

func nextNotifyID() uint16 {
	return uint16(notifyIDCounter.Add(1))
}
