package server

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lambdcalculus/dmbn/internal/client"
	"github.com/lambdcalculus/dmbn/internal/config"
	"github.com/lambdcalculus/dmbn/internal/metrics"
	"github.com/lambdcalculus/dmbn/internal/uid"
	"github.com/lambdcalculus/dmbn/pkg/codec"
	"github.com/lambdcalculus/dmbn/pkg/frame"
	"github.com/lambdcalculus/dmbn/pkg/packets"
)

// Binds the TCP listener, wrapped in TLS if a certificate is configured.
func (srv *DMBNServer) listenTCP(conf *config.Server) (net.Listener, error) {
	ln, err := net.Listen("tcp", conf.Addr())
	if err != nil {
		return nil, fmt.Errorf("server: Couldn't listen on TCP (%w).", err)
	}
	if !conf.TLS() {
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(conf.TLSCert, conf.TLSKey)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("server: Couldn't load TLS certificate (%w).", err)
	}
	srv.logger.Info("TLS enabled for TCP connections.")
	return tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}}), nil
}

// Accepts TCP connections until the listener is closed. A close caused by Stop
// isn't an error.
func (srv *DMBNServer) serveTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !srv.online.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				srv.logger.Warnf("TCP accept timed out (%v).", err)
				continue
			}
			return fmt.Errorf("server: TCP listener error (%w).", err)
		}
		c := client.NewTCPClient(conn, srv.maxFrame, srv.logger)
		srv.logger.Debugf("New TCP connection from %v (IPID: %v).", c.Addr(), c.IPID())
		srv.serveClient(c)
	}
}

// Binds and serves an HTTP server. Closing it through Stop isn't an error.
func (srv *DMBNServer) serveHTTP(h *http.Server) error {
	ln, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return fmt.Errorf("server: Couldn't listen on %v (%w).", h.Addr, err)
	}
	srv.logger.Infof("Listening HTTP on %v.", ln.Addr())
	if err := h.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: Stopped serving HTTP on %v (%w).", h.Addr, err)
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Builds the HTTP server for WebSocket clients, along with the '/info' and
// '/metrics' endpoints.
func (srv *DMBNServer) makeWSServer(conf *config.Server) (*http.Server, error) {
	r := chi.NewRouter()
	r.Get("/", srv.wsEndpoint)
	r.Get("/info", srv.infoEndpoint)
	r.Handle("/metrics", srv.metrics.Handler())
	return &http.Server{
		Addr:              net.JoinHostPort(conf.Host, fmt.Sprint(conf.PortWS)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}, nil
}

// The handler for the '/' endpoint. Each binary WebSocket message is one payload.
func (srv *DMBNServer) wsEndpoint(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Debugf("WS: (/) Couldn't upgrade connection from %v (%v).", r.RemoteAddr, err)
		return // bad request
	}
	c := client.NewWSClient(ws, srv.maxFrame, srv.logger)
	srv.logger.Debugf("New WS connection from %v (IPID: %v).", r.RemoteAddr, c.IPID())
	srv.serveClient(c)
}

type serverInfo struct {
	Name        string `json:"name"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// The handler for the '/info' endpoint, a small JSON summary of the server.
func (srv *DMBNServer) infoEndpoint(w http.ResponseWriter, r *http.Request) {
	info := serverInfo{
		Name:     srv.serverName,
		Online:   srv.online.Load(),
		Sessions: srv.sessions.Len(),
	}
	if srv.uidHeap != nil {
		info.Connections = srv.uidHeap.InUse()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		srv.logger.Warnf("HTTP: (/info) Error writing JSON response (%v).", err)
	}
}

// Tracks the client and handles it in its own goroutine. Clients arriving while
// the server stops are dropped.
func (srv *DMBNServer) serveClient(c *client.Client) {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		c.Close()
		return
	}
	srv.clients[c] = struct{}{}
	srv.conns.Add(1)
	srv.mu.Unlock()

	go func() {
		defer srv.conns.Done()
		defer srv.removeClient(c)
		defer func() {
			if r := recover(); r != nil {
				c.Logger().Errorf("Panic while handling %v (%v). Disconnecting.", c.Addr(), r)
			}
		}()
		srv.handleClient(c)
	}()
}

// Runs a connection from handshake to disconnect.
func (srv *DMBNServer) handleClient(c *client.Client) {
	id, ok := srv.uidHeap.Take()
	if !ok {
		c.Logger().Infof("Refusing %v, server is full.", c.Addr())
		srv.sendLog(c, packets.LogError, "Server is full.")
		return
	}
	c.SetID(id)
	srv.metrics.Connections.Inc()

	login, ok := srv.authenticate(c)
	if !ok {
		return
	}
	srv.serveSession(c, login)
}

// Performs the handshake: asks for credentials, waits at most the auth timeout
// for them and verifies them. On success the client is registered as the
// session for its login, replacing any earlier one.
func (srv *DMBNServer) authenticate(c *client.Client) (string, bool) {
	log := c.Logger()
	if err := c.Send(packets.AuthRequest()); err != nil {
		log.Debugf("Couldn't send auth request to %v (%v).", c.Addr(), err)
		return "", false
	}

	c.SetReadDeadline(time.Now().Add(srv.authTimeout))
	b, err := c.ReadFrame()
	if err != nil {
		if isTimeout(err) {
			log.Debugf("%v didn't authenticate in time.", c.Addr())
			srv.metrics.Auth.WithLabelValues(metrics.AuthTimeout).Inc()
			srv.sendLog(c, packets.LogError, "Authentication timed out.")
		} else {
			log.Debugf("Connection from %v ended before authenticating (%v).", c.Addr(), err)
		}
		return "", false
	}
	c.SetReadDeadline(time.Time{})

	v, err := codec.Decode(b)
	creds, ok := packets.ParseCredentials(v)
	if err != nil || !ok {
		log.Debugf("Malformed credentials from %v.", c.Addr())
		srv.metrics.Auth.WithLabelValues(metrics.AuthMalformed).Inc()
		srv.sendLog(c, packets.LogError, "Expected a login and a password.")
		return "", false
	}

	store, err := srv.store()
	if err != nil {
		return "", false
	}
	login, err := store.VerifyLogin(srv.runCtx, creds.Login, creds.Password)
	if err != nil {
		log.Infof("Failed login as '%v' from %v.", creds.Login, c.Addr())
		srv.metrics.Auth.WithLabelValues(metrics.AuthFailed).Inc()
		srv.sendLog(c, packets.LogError, "Invalid login or password.")
		return "", false
	}

	c.SetLogin(login)
	if old := srv.sessions.Register(login, c); old != nil {
		log.Infof("'%v' logged in again from %v, dropping the older connection from %v.", login, c.Addr(), old.Addr())
		srv.sendLog(old, packets.LogInfo, "Logged in from another location.")
		old.Close()
	}
	srv.metrics.Auth.WithLabelValues(metrics.AuthOK).Inc()
	srv.metrics.Sessions.Set(float64(srv.sessions.Len()))
	log.Infof("%v authenticated as '%v'.", c.Addr(), login)
	srv.sendLog(c, packets.LogInfo, "Authorization successful.")
	return login, true
}

// Reads requests from an authenticated client until it disconnects or the
// server stops.
func (srv *DMBNServer) serveSession(c *client.Client, login string) {
	log := c.Logger()
	for srv.online.Load() {
		b, err := c.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrTruncated):
				log.Warnf("Connection from %v closed mid-frame.", c.Addr())
			case errors.Is(err, frame.ErrConnectionClosed):
				log.Debugf("'%v' disconnected.", login)
			default:
				log.Debugf("Error in connection from %v (%v).", c.Addr(), err)
			}
			return
		}
		srv.handleFrame(c, login, b)
	}
}

// Handles one request. Malformed payloads are logged and dropped; the
// connection stays open.
func (srv *DMBNServer) handleFrame(c *client.Client, login string, b []byte) {
	log := c.Logger()
	m, ok, err := codec.DecodeMap(b)
	if err != nil {
		log.Debugf("Bad payload from '%v' (%v).", login, err)
		return
	}
	if !ok {
		log.Debugf("Ignoring non-map payload from '%v'.", login)
		return
	}
	log.Tracef("Received from '%v': %#v", login, m)

	switch action := packets.Action(m); action {
	case packets.ActionNet:
		var result any
		if inv, ok := packets.ParseInvocation(m); ok {
			result, err = srv.methods.Dispatch(srv.runCtx, login, inv.Method, inv.Args)
			method, label := inv.Method, metrics.CallOK
			if _, known := srv.methods.Lookup(method); !known {
				method = "unknown"
			}
			if err != nil {
				label = metrics.CallFailed
				log.Debugf("Call to '%v' by '%v' failed (%v).", inv.Method, login, err)
			}
			srv.metrics.Calls.WithLabelValues(method, label).Inc()
		} else {
			log.Debugf("Request from '%v' names no method.", login)
		}
		if err := c.Send(result); err != nil {
			log.Debugf("Couldn't send result to '%v' (%v).", login, err)
		}
	default:
		log.Debugf("Unsupported action '%v' from '%v'.", action, login)
		srv.sendLog(c, packets.LogError, fmt.Sprintf("Unsupported action '%v'.", action))
	}
}

// Forgets the client, freeing its session and connection slot.
func (srv *DMBNServer) removeClient(c *client.Client) {
	if login := c.Login(); login != "" {
		srv.sessions.Unregister(login, c)
	} else {
		srv.sessions.UnregisterClient(c)
	}
	if id := c.ID(); id != uid.None {
		srv.uidHeap.Free(id)
		c.SetID(uid.None)
		srv.metrics.Connections.Dec()
	}
	c.Close()

	srv.mu.Lock()
	delete(srv.clients, c)
	srv.mu.Unlock()
	srv.metrics.Sessions.Set(float64(srv.sessions.Len()))
}

// Sends a log frame tagged with the server name. Best effort.
func (srv *DMBNServer) sendLog(c *client.Client, logType string, msg string) {
	if err := c.Send(packets.Log(logType, msg, srv.serverName)); err != nil {
		c.Logger().Debugf("Couldn't send log to %v (%v).", c.Addr(), err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
