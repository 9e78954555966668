// Package `config` reads the server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lambdcalculus/dmbn/pkg/duration"
	"github.com/lambdcalculus/dmbn/pkg/logger"
)

// Reported by [Server.Validate] when a required setting is unset.
var ErrMissing = errors.New("config: required setting missing")

type Server struct {
	Name          string `toml:"name"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	PortWS        int    `toml:"ws_port"`
	PortRPC       int    `toml:"rpc_port"`
	DBPath        string `toml:"db_path"`
	OwnerPassword string `toml:"owner_password"`

	// Any string accepted by [duration.Parse], bare numbers are seconds.
	AuthTimeout    string `toml:"auth_timeout"`
	MaxConnections int    `toml:"max_connections"`
	MaxFrameSize   int    `toml:"max_frame_size"`

	HashCost    int `toml:"hash_cost"`
	HashWorkers int `toml:"hash_workers"`

	// TLS is used on the TCP listener when both are set.
	TLSCert string `toml:"tls_cert"`
	TLSKey  string `toml:"tls_key"`

	// Access rights given to users created without explicit ones.
	DefaultAccess map[string]bool `toml:"default_access"`

	LevelString string   `toml:"log_level"`
	LogOutputs  []string `toml:"log_outputs"`
}

func ServerDefault() *Server {
	return &Server{
		Name:           "DMBN Server",
		Host:           "0.0.0.0",
		Port:           5000,
		PortWS:         0,
		PortRPC:        0,
		DBPath:         "",
		AuthTimeout:    "30s",
		MaxConnections: 100,
		MaxFrameSize:   16 << 20,
		HashCost:       10,
		HashWorkers:    runtime.NumCPU(),
		DefaultAccess:  map[string]bool{"base_access": true},
		LevelString:    "info",
		LogOutputs:     []string{"stdout", "log/server.log"},
	}
}

// Checks that the settings needed to start serving are present.
func (s *Server) Validate() error {
	switch {
	case s.Host == "":
		return fmt.Errorf("%w: host", ErrMissing)
	case s.Port <= 0:
		return fmt.Errorf("%w: port", ErrMissing)
	case s.DBPath == "":
		return fmt.Errorf("%w: db_path", ErrMissing)
	}
	if _, err := s.AuthTimeoutDuration(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(s.LevelString); err != nil {
		return fmt.Errorf("config: Bad log_level (%w).", err)
	}
	return nil
}

// Returns the parsed authentication timeout, defaulting to 30 seconds.
func (s *Server) AuthTimeoutDuration() (time.Duration, error) {
	d, err := duration.Parse(s.AuthTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: Bad auth_timeout (%w).", err)
	}
	if d <= 0 {
		d = 30 * time.Second
	}
	return d, nil
}

// Returns the address the TCP listener binds to.
func (s *Server) Addr() string {
	return fmt.Sprintf("%v:%v", s.Host, s.Port)
}

// Whether the TCP listener is TLS-wrapped.
func (s *Server) TLS() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// Attempts to read the server configuration at `file`. If `file` is empty,
// config/config.toml next to the executable is read. Returns default settings
// along with the error if it fails.
func ReadServer(file string) (*Server, error) {
	if file == "" {
		execDir, err := ExecDir()
		if err != nil {
			return ServerDefault(), fmt.Errorf("config: Couldn't find executable location (%w). Can't read configs.", err)
		}
		file = execDir + "/config/config.toml"
	}

	srvConfig := ServerDefault()
	if _, err := toml.DecodeFile(file, srvConfig); err != nil {
		return srvConfig, fmt.Errorf("config: Couldn't read server config (%w).", err)
	}
	if srvConfig.DBPath != "" && !path.IsAbs(srvConfig.DBPath) {
		srvConfig.DBPath = path.Join(path.Dir(file), srvConfig.DBPath)
	}
	return srvConfig, nil
}

// Returns the absolute path to the executable's directory, if it doesn't fail.
func ExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return path.Dir(execPath), nil
}
