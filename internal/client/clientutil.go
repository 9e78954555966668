package client

import (
	"crypto/md5"
	"encoding/base64"
	"io"
	"net"

	"github.com/lambdcalculus/dmbn/pkg/logger"
)

// Returns the remote address.
func (c *Client) Addr() string {
	return c.addr
}

// Returns the client's "IPID", a short hash of its IP used in logs instead of the IP itself.
func (c *Client) IPID() string {
	return c.ipid
}

// Returns the client's logger, which tags lines with its IPID.
func (c *Client) Logger() *logger.Logger {
	return c.logger
}

// Returns the connection slot ID.
func (c *Client) ID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) SetID(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// Returns the login the client authenticated as, or "" before that.
func (c *Client) Login() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login
}

func (c *Client) SetLogin(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.login = login
}

// Whether the client finished authenticating.
func (c *Client) Authenticated() bool {
	return c.Login() != ""
}

// Gives the "IPID" hash for the address. It intends to be a unique identifier
// for each IP without leaking the IP to logs.
func hashIP(addr net.Addr) string {
	ip := addr.String()
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip = a.IP.String()
	default:
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}

	// MD5, then base64. We keep the last 6 characters, which is 36 bits.
	h := md5.New()
	io.WriteString(h, ip)
	enc := base64.RawStdEncoding.EncodeToString(h.Sum(nil))
	return enc[len(enc)-6:]
}
