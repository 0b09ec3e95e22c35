package app

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxhttp/flux-server/config"
	"github.com/fluxhttp/flux-server/core/loop"
	"github.com/fluxhttp/flux-server/core/server"
)

// App wires configuration, the event-loop pool and the listener manager
// into one runnable server instance.
type App struct {
	cfg   *config.Config
	pool  *loop.Pool
	mgr   *server.Manager
	ready chan struct{}
}

// New creates an application instance from loaded configuration.
func New(cfg *config.Config) *App {
	mgr := server.NewManager()
	for _, l := range cfg.Listeners {
		mgr.AddListener(server.ListenerConfig{
			Address:        l.Address,
			Port:           l.Port,
			UseTLS:         l.TLS,
			CertFile:       l.CertFile,
			KeyFile:        l.KeyFile,
			UseOldTLS:      l.UseOldTLS,
			TLSOptions:     convertTLSOptions(l.TLSOptions),
			MaxConnections: l.MaxConnections,
		})
	}
	mgr.SetRequestLimits(int64(cfg.SpillThreshold), int64(cfg.MaxDecompressSize))

	return &App{
		cfg:   cfg,
		pool:  loop.NewPool(cfg.Loops),
		mgr:   mgr,
		ready: make(chan struct{}),
	}
}

// Manager exposes the listener manager for handler and hook registration.
func (a *App) Manager() *server.Manager {
	return a.mgr
}

// SetRequestHandler registers the request dispatch target. Must run before
// Run.
func (a *App) SetRequestHandler(h server.RequestHandler) {
	a.mgr.SetRequestHandler(h)
}

// Run creates and starts the listeners, then blocks until a termination
// signal arrives. SIGHUP reloads TLS certificate material in place.
func (a *App) Run() {
	if err := a.mgr.CreateListeners(a.cfg.CertFile, a.cfg.KeyFile, convertTLSOptions(a.cfg.TLSOptions), a.pool.Loops()); err != nil {
		log.Fatalf("listener setup failed: %v", err)
	}
	if err := a.mgr.StartListening(); err != nil {
		log.Fatalf("server startup failed: %v", err)
	}
	log.Printf("🚀 server up: %d listener(s), %d event loop(s)", len(a.mgr.GetListeners()), a.pool.Size())
	close(a.ready)

	a.awaitSignal()
}

// Ready is closed once every listener is accepting.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Stop closes the listeners and drains the event loops. Connections
// already accepted finish their in-flight work.
func (a *App) Stop() {
	a.mgr.StopListening()
	a.pool.Stop()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range quit {
		if sig == syscall.SIGHUP {
			if err := a.mgr.ReloadSSLFiles(); err != nil {
				log.Printf("certificate reload: %v", err)
			} else {
				log.Printf("certificate material reloaded")
			}
			continue
		}
		log.Printf("Signal received: %v. Shutting down...", sig)
		a.Stop()
		return
	}
}

func convertTLSOptions(opts []config.TLSOption) []server.TLSOption {
	out := make([]server.TLSOption, len(opts))
	for i, o := range opts {
		out[i] = server.TLSOption{Directive: o.Directive, Value: o.Value}
	}
	return out
}
