package server

import (
	"net/http"

	"github.com/lambdcalculus/dmbn/internal/config"
	"github.com/lambdcalculus/dmbn/internal/perms"
	"github.com/lambdcalculus/dmbn/pkg/rpc"
)

// Builds the local RPC server, for usage with dmbnctl.
func (srv *DMBNServer) makeRPCServer(conf *config.Server) (*http.Server, error) {
	return rpc.NewServer(conf.PortRPC, adminBackend{srv})
}

// Exposes the account operations to the admin RPC. Every call runs on behalf
// of the server operator, so no access rights are checked.
type adminBackend struct {
	srv *DMBNServer
}

func (a adminBackend) AddUser(args *rpc.AddUserArgs) error {
	err := a.srv.addUser(a.srv.runCtx, args.Username, args.Password, perms.Rights(args.Access))
	a.report("AddUser", args.Username, err)
	return err
}

func (a adminBackend) DeleteUser(args *rpc.DeleteUserArgs) error {
	err := a.srv.deleteUser(a.srv.runCtx, args.Username)
	a.report("DeleteUser", args.Username, err)
	return err
}

func (a adminBackend) ChangePassword(args *rpc.ChangePasswordArgs) error {
	err := a.srv.changePassword(a.srv.runCtx, args.Username, args.Password)
	a.report("ChangePassword", args.Username, err)
	return err
}

func (a adminBackend) ChangeAccess(args *rpc.ChangeAccessArgs) error {
	err := a.srv.changeAccess(a.srv.runCtx, args.Username, perms.Rights(args.Access))
	a.report("ChangeAccess", args.Username, err)
	return err
}

func (a adminBackend) Online() ([]string, error) {
	return a.srv.sessions.Logins(), nil
}

func (a adminBackend) Users() ([]string, error) {
	store, err := a.srv.store()
	if err != nil {
		return nil, err
	}
	return store.Users(a.srv.runCtx)
}

func (a adminBackend) report(op string, username string, err error) {
	if err != nil {
		a.srv.logger.Infof("RPC: %v '%v' failed (%v).", op, username, err)
		return
	}
	a.srv.logger.Infof("RPC: %v '%v' succeeded.", op, username)
}
