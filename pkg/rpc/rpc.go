// Package `rpc` exports methods to interface with the admin RPC server.
//
// This separation allows RPC clients to not require importing the `server`
// package, which makes them a lot lighter.
//
// The server provides the actual operations through a [Backend].
package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"net/rpc"
	"time"
)

// The name the operations are registered under. Clients call e.g. "Admin.AddUser".
const ServiceName = "Admin"

var ErrNoBackend = errors.New("rpc: no backend")

// Arguments for the AddUser operation. An empty Access gives the server's default rights.
type AddUserArgs struct {
	Username string
	Password string
	Access   map[string]bool
}

// Arguments for the DeleteUser operation.
type DeleteUserArgs struct {
	Username string
}

// Arguments for the ChangePassword operation.
type ChangePasswordArgs struct {
	Username string
	Password string
}

// Arguments for the ChangeAccess operation. An empty Access resets to the default rights.
type ChangeAccessArgs struct {
	Username string
	Access   map[string]bool
}

// For operations without arguments.
type NoArgs struct{}

// Implemented by the server.
type Backend interface {
	AddUser(args *AddUserArgs) error
	DeleteUser(args *DeleteUserArgs) error
	ChangePassword(args *ChangePasswordArgs) error
	ChangeAccess(args *ChangeAccessArgs) error
	Online() ([]string, error)
	Users() ([]string, error)
}

// The receiver for the exported RPC methods. Replies are 0 on success and 1 on failure.
type Admin struct {
	backend Backend
}

// Returns an HTTP server that serves RPC on localhost, on the passed port.
// If there is an issue setting up the server, returns an error.
func NewServer(port int, backend Backend) (*http.Server, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	s := rpc.NewServer()
	if err := s.RegisterName(ServiceName, &Admin{backend: backend}); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:           fmt.Sprintf("localhost:%v", port),
		Handler:        s,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}, nil
}

// Dials the admin RPC server listening on localhost at `port`.
func Dial(port int) (*rpc.Client, error) {
	return rpc.DialHTTP("tcp", fmt.Sprintf("localhost:%v", port))
}

// Adds a user to the database.
func (a *Admin) AddUser(args *AddUserArgs, reply *int) error {
	return status(a.backend.AddUser(args), reply)
}

// Removes a user from the database, disconnecting them if online.
func (a *Admin) DeleteUser(args *DeleteUserArgs, reply *int) error {
	return status(a.backend.DeleteUser(args), reply)
}

// Changes a user's password.
func (a *Admin) ChangePassword(args *ChangePasswordArgs, reply *int) error {
	return status(a.backend.ChangePassword(args), reply)
}

// Replaces a user's access rights.
func (a *Admin) ChangeAccess(args *ChangeAccessArgs, reply *int) error {
	return status(a.backend.ChangeAccess(args), reply)
}

// Lists the logins with an active session.
func (a *Admin) Online(_ *NoArgs, reply *[]string) error {
	logins, err := a.backend.Online()
	if err != nil {
		return err
	}
	*reply = logins
	return nil
}

// Lists every account.
func (a *Admin) Users(_ *NoArgs, reply *[]string) error {
	users, err := a.backend.Users()
	if err != nil {
		return err
	}
	*reply = users
	return nil
}

func status(err error, reply *int) error {
	if err != nil {
		*reply = 1
		return err
	}
	*reply = 0
	return nil
}
