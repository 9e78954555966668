// Package `server` handles client-server communication and the main server loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lambdcalculus/dmbn/internal/client"
	"github.com/lambdcalculus/dmbn/internal/config"
	"github.com/lambdcalculus/dmbn/internal/db"
	"github.com/lambdcalculus/dmbn/internal/methods"
	"github.com/lambdcalculus/dmbn/internal/metrics"
	"github.com/lambdcalculus/dmbn/internal/perms"
	"github.com/lambdcalculus/dmbn/internal/uid"
	"github.com/lambdcalculus/dmbn/pkg/logger"
	"github.com/lambdcalculus/dmbn/pkg/packets"
)

// How long Stop waits for connection goroutines after closing their connections.
const stopTimeout = 5 * time.Second

var (
	ErrNotConfigured = errors.New("server: not configured")
	ErrRunning       = errors.New("server: already running")
	ErrOffline       = errors.New("server: offline")
)

type DMBNServer struct {
	// Guards everything below that is set up or torn down by Start and Stop.
	mu      sync.Mutex
	config  *config.Server
	running bool
	stopped chan struct{}
	db      *db.Database

	listener    net.Listener
	httpServers []*http.Server
	clients     map[*client.Client]struct{}
	conns       sync.WaitGroup

	// Per-run settings, fixed before any connection is served.
	serverName  string
	started     time.Time
	authTimeout time.Duration
	maxFrame    int
	uidHeap     *uid.UIDHeap
	runCtx      context.Context
	cancelRun   context.CancelFunc

	online   atomic.Bool
	methods  *methods.Registry
	sessions *client.Sessions
	metrics  *metrics.Metrics

	logger *logger.Logger
}

// Creates a server with the built-in methods registered. It must be given a
// configuration with [DMBNServer.Configure] before [DMBNServer.Start].
func New(log *logger.Logger) *DMBNServer {
	srv := &DMBNServer{
		clients:  make(map[*client.Client]struct{}),
		sessions: client.NewSessions(log),
		metrics:  metrics.New(),
		logger:   log,
	}
	srv.methods = methods.NewRegistry(srv, log)
	if err := srv.methods.AddSet(srv.builtinMethods()); err != nil {
		// The built-in set is a literal, so this is a programming error.
		panic(err)
	}
	return srv
}

// Sets the configuration used by the next [DMBNServer.Start]. Can be called any
// number of times; a running server keeps the configuration it started with.
func (srv *DMBNServer) Configure(conf *config.Server) {
	cpy := *conf
	cpy.DefaultAccess = perms.Rights(conf.DefaultAccess).Clone()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.config = &cpy
}

// Registers additional methods clients can call. Should be done before Start.
func (srv *DMBNServer) AddMethods(set methods.Set) error {
	return srv.methods.AddSet(set)
}

// Whether the server is currently serving.
func (srv *DMBNServer) Online() bool {
	return srv.online.Load()
}

// Returns the address of the TCP listener, or nil if not listening.
func (srv *DMBNServer) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Returns the session registry.
func (srv *DMBNServer) Sessions() *client.Sessions {
	return srv.sessions
}

// Returns the server's metrics.
func (srv *DMBNServer) Metrics() *metrics.Metrics {
	return srv.metrics
}

// Starts and runs the server. It opens the database, binds the listeners and
// serves until `ctx` is cancelled, [DMBNServer.Stop] is called, or a listener
// fails. The server is always stopped when Start returns.
//
// Missing configuration is reported before anything is opened.
func (srv *DMBNServer) Start(ctx context.Context) error {
	srv.mu.Lock()
	conf := srv.config
	running := srv.running
	srv.mu.Unlock()
	if running {
		return ErrRunning
	}
	if conf == nil {
		srv.logger.Errorf("Server has no configuration, not starting.")
		return ErrNotConfigured
	}
	if err := conf.Validate(); err != nil {
		srv.logger.Errorf("Bad configuration, not starting (%v).", err)
		return fmt.Errorf("%w (%w)", ErrNotConfigured, err)
	}

	srv.logger.Info("Starting server.")
	if err := srv.setup(ctx, conf); err != nil {
		srv.logger.Errorf("Couldn't start server (%v).", err)
		srv.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	srv.mu.Lock()
	stopped := srv.stopped
	ln := srv.listener
	https := srv.httpServers
	srv.mu.Unlock()

	g.Go(func() error { return srv.serveTCP(ln) })
	for _, h := range https {
		h := h
		g.Go(func() error { return srv.serveHTTP(h) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-stopped:
		}
		srv.Stop()
		return nil
	})

	err := g.Wait()
	srv.Stop()
	if err != nil {
		srv.logger.Errorf("Server stopped with an error (%v).", err)
		return err
	}
	srv.logger.Info("Server stopped.")
	return nil
}

// Prepares a run: database, listeners and per-run state. Anything opened here
// is released by Stop.
func (srv *DMBNServer) setup(ctx context.Context, conf *config.Server) error {
	authTimeout, err := conf.AuthTimeoutDuration()
	if err != nil {
		return err
	}
	if conf.OwnerPassword == "" {
		srv.logger.Warnf("No owner password configured. If the owner account is created now, its password will be empty.")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.running = true
	srv.stopped = make(chan struct{})
	srv.serverName = conf.Name
	srv.started = time.Now()
	srv.authTimeout = authTimeout
	srv.maxFrame = conf.MaxFrameSize
	srv.uidHeap = uid.CreateHeap(conf.MaxConnections)
	srv.runCtx, srv.cancelRun = context.WithCancel(context.Background())

	database, err := db.Init(ctx, conf.DBPath, db.Options{
		OwnerPassword: conf.OwnerPassword,
		DefaultAccess: perms.Rights(conf.DefaultAccess),
		HashCost:      conf.HashCost,
		HashWorkers:   conf.HashWorkers,
	})
	if err != nil {
		return fmt.Errorf("server: Couldn't initialize database (%w).", err)
	}
	srv.db = database

	ln, err := srv.listenTCP(conf)
	if err != nil {
		return err
	}
	srv.listener = ln
	srv.logger.Infof("Listening TCP on %v.", ln.Addr())

	if conf.PortWS > 0 {
		h, err := srv.makeWSServer(conf)
		if err != nil {
			return err
		}
		srv.httpServers = append(srv.httpServers, h)
	}
	if conf.PortRPC > 0 {
		h, err := srv.makeRPCServer(conf)
		if err != nil {
			return err
		}
		srv.httpServers = append(srv.httpServers, h)
	}

	srv.online.Store(true)
	return nil
}

// Stops the server: disconnects every client, closes the listeners and then the
// database. Safe to call at any time, including when already stopped.
func (srv *DMBNServer) Stop() {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		return
	}
	srv.running = false
	srv.online.Store(false)
	close(srv.stopped)

	ln := srv.listener
	srv.listener = nil
	https := srv.httpServers
	srv.httpServers = nil
	clients := make([]*client.Client, 0, len(srv.clients))
	for c := range srv.clients {
		clients = append(clients, c)
	}
	cancel := srv.cancelRun
	srv.mu.Unlock()

	srv.logger.Info("Stopping server.")
	if cancel != nil {
		cancel()
	}
	srv.sessions.CloseAll()
	for _, c := range clients {
		if err := c.Close(); err != nil {
			srv.logger.Debugf("Error closing connection from %v (%v).", c.Addr(), err)
		}
	}
	if ln != nil {
		if err := ln.Close(); err != nil {
			srv.logger.Debugf("Error closing TCP listener (%v).", err)
		}
	}
	for _, h := range https {
		if err := h.Close(); err != nil {
			srv.logger.Debugf("Error closing HTTP server on %v (%v).", h.Addr, err)
		}
	}

	done := make(chan struct{})
	go func() {
		srv.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		srv.logger.Warnf("Some connections didn't finish within %v, moving on.", stopTimeout)
	}

	srv.mu.Lock()
	database := srv.db
	srv.db = nil
	srv.mu.Unlock()
	if database != nil {
		if err := database.Close(); err != nil {
			srv.logger.Errorf("Error closing database (%v).", err)
		}
	}
	srv.metrics.Sessions.Set(0)
}

// Returns the open database, or [ErrOffline].
func (srv *DMBNServer) store() (*db.Database, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.db == nil {
		return nil, ErrOffline
	}
	return srv.db, nil
}

// Implements [methods.Authorizer] on top of the current database.
func (srv *DMBNServer) CheckAccessLogin(ctx context.Context, login string, required ...string) bool {
	store, err := srv.store()
	if err != nil {
		return false
	}
	return store.CheckAccessLogin(ctx, login, required...)
}

// Disconnects the session of `login`, if any, telling it why first.
func (srv *DMBNServer) kick(login string, reason string) {
	c, ok := srv.sessions.Get(login)
	if !ok {
		return
	}
	srv.sendLog(c, packets.LogInfo, reason)
	c.Close()
}
