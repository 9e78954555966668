package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadServer(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
name = "Test Server"
host = "127.0.0.1"
port = 6000
db_path = "data/users.sqlite"
owner_password = "hunter2"
auth_timeout = "45s"

[default_access]
base_access = true
chat = true
`), 0o600))

	conf, err := ReadServer(file)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, "Test Server", conf.Name)
	assert.Equal(t, "127.0.0.1:6000", conf.Addr())
	assert.Equal(t, filepath.Join(dir, "data/users.sqlite"), conf.DBPath)
	assert.Equal(t, map[string]bool{"base_access": true, "chat": true}, conf.DefaultAccess)
	// unset keys keep their defaults
	assert.Equal(t, 100, conf.MaxConnections)

	d, err := conf.AuthTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Server)
	}{
		{"no host", func(s *Server) { s.Host = "" }},
		{"no port", func(s *Server) { s.Port = 0 }},
		{"no db", func(s *Server) { s.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ServerDefault()
			s.DBPath = "users.sqlite"
			tt.modify(s)
			assert.ErrorIs(t, s.Validate(), ErrMissing)
		})
	}

	s := ServerDefault()
	s.DBPath = "users.sqlite"
	s.AuthTimeout = "soon"
	assert.Error(t, s.Validate())
}

func TestAuthTimeoutDefault(t *testing.T) {
	s := ServerDefault()
	s.AuthTimeout = ""
	d, err := s.AuthTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	s.AuthTimeout = "10"
	d, err = s.AuthTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}
