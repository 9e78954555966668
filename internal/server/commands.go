package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lambdcalculus/dmbn/internal/db"
	"github.com/lambdcalculus/dmbn/internal/methods"
	"github.com/lambdcalculus/dmbn/internal/perms"
	"github.com/lambdcalculus/dmbn/pkg/duration"
	"github.com/lambdcalculus/dmbn/pkg/packets"
)

var errBadArgs = errors.New("server: bad arguments")

// The methods every server offers. Store operations answer with a boolean
// telling whether they succeeded.
func (srv *DMBNServer) builtinMethods() methods.Set {
	return methods.Set{
		"ping":   {Func: srv.methodPing},
		"whoami": {Func: srv.methodWhoami},
		"uptime": {Func: srv.methodUptime},
		"online": {
			Func:   srv.methodOnline,
			Access: []string{perms.SeeOnline},
		},

		// messaging
		"send": {
			Func:   srv.methodSend,
			Args:   []string{"login", "msg"},
			Access: []string{perms.SendMessage},
		},
		"broadcast": {
			Func:   srv.methodBroadcast,
			Args:   []string{"msg"},
			Access: []string{perms.Broadcast},
		},

		// accounts
		"add_user": {
			Func:   srv.methodAddUser,
			Args:   []string{"login", "password", "access"},
			Access: []string{perms.ManageUsers},
		},
		"delete_user": {
			Func:   srv.methodDeleteUser,
			Args:   []string{"login"},
			Access: []string{perms.ManageUsers},
		},
		"change_password": {
			Func: srv.methodChangePassword,
			Args: []string{"login", "password"},
		},
		"change_access": {
			Func:   srv.methodChangeAccess,
			Args:   []string{"login", "access"},
			Access: []string{perms.ManageUsers},
		},
	}
}

func (srv *DMBNServer) methodPing(context.Context, *methods.Call) (any, error) {
	return "pong", nil
}

// Answers with the caller's login and rights.
func (srv *DMBNServer) methodWhoami(ctx context.Context, call *methods.Call) (any, error) {
	store, err := srv.store()
	if err != nil {
		return nil, err
	}
	rights, err := store.GetAccessRights(ctx, call.Login)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"login":  call.Login,
		"access": map[string]bool(rights),
	}, nil
}

func (srv *DMBNServer) methodUptime(context.Context, *methods.Call) (any, error) {
	return duration.String(time.Since(srv.started).Truncate(time.Second)), nil
}

func (srv *DMBNServer) methodOnline(context.Context, *methods.Call) (any, error) {
	return srv.sessions.Logins(), nil
}

// Delivers a message to one session. Answers false if the login isn't online.
func (srv *DMBNServer) methodSend(_ context.Context, call *methods.Call) (any, error) {
	to, ok := call.String("login")
	if !ok {
		return nil, fmt.Errorf("%w: 'login' must be a string", errBadArgs)
	}
	msg, ok := call.String("msg")
	if !ok {
		return nil, fmt.Errorf("%w: 'msg' must be a string", errBadArgs)
	}
	if err := srv.sessions.SendTo(to, packets.Message(call.Login, msg)); err != nil {
		srv.logger.Debugf("'%v' couldn't message '%v' (%v).", call.Login, to, err)
		return false, nil
	}
	return true, nil
}

// Delivers a message to every session, the caller's included. Sessions that
// can't be reached are skipped.
func (srv *DMBNServer) methodBroadcast(_ context.Context, call *methods.Call) (any, error) {
	msg, ok := call.String("msg")
	if !ok {
		return nil, fmt.Errorf("%w: 'msg' must be a string", errBadArgs)
	}
	srv.metrics.Broadcasts.Inc()
	if err := srv.sessions.Broadcast(packets.Message(call.Login, msg)); err != nil {
		srv.logger.Debugf("Broadcast by '%v' didn't reach everyone (%v).", call.Login, err)
	}
	return true, nil
}

func (srv *DMBNServer) methodAddUser(ctx context.Context, call *methods.Call) (any, error) {
	login, ok := call.String("login")
	if !ok {
		return nil, fmt.Errorf("%w: 'login' must be a string", errBadArgs)
	}
	password, ok := call.String("password")
	if !ok {
		return nil, fmt.Errorf("%w: 'password' must be a string", errBadArgs)
	}
	access, err := accessArg(call)
	if err != nil {
		return nil, err
	}
	return srv.reportStore(call, srv.addUser(ctx, login, password, access)), nil
}

func (srv *DMBNServer) methodDeleteUser(ctx context.Context, call *methods.Call) (any, error) {
	login, ok := call.String("login")
	if !ok {
		return nil, fmt.Errorf("%w: 'login' must be a string", errBadArgs)
	}
	return srv.reportStore(call, srv.deleteUser(ctx, login)), nil
}

// Changes a password. Anyone may change their own; changing someone else's
// needs user management rights, and only the owner may change the owner's.
func (srv *DMBNServer) methodChangePassword(ctx context.Context, call *methods.Call) (any, error) {
	password, ok := call.String("password")
	if !ok {
		return nil, fmt.Errorf("%w: 'password' must be a string", errBadArgs)
	}
	login := call.Login
	if target, ok := call.String("login"); ok && target != "" {
		login = target
	}
	if login != call.Login {
		if login == db.OwnerName || !srv.CheckAccessLogin(ctx, call.Login, perms.ManageUsers) {
			return nil, fmt.Errorf("%w: change_password for '%v'", methods.ErrAccessDenied, login)
		}
	}
	return srv.reportStore(call, srv.changePassword(ctx, login, password)), nil
}

func (srv *DMBNServer) methodChangeAccess(ctx context.Context, call *methods.Call) (any, error) {
	login, ok := call.String("login")
	if !ok {
		return nil, fmt.Errorf("%w: 'login' must be a string", errBadArgs)
	}
	access, err := accessArg(call)
	if err != nil {
		return nil, err
	}
	return srv.reportStore(call, srv.changeAccess(ctx, login, access)), nil
}

// Reads the optional 'access' argument. Absent means default rights.
func accessArg(call *methods.Call) (perms.Rights, error) {
	if _, present := call.Args["access"]; !present {
		return nil, nil
	}
	access, ok := call.Bools("access")
	if !ok {
		return nil, fmt.Errorf("%w: 'access' must map names to booleans", errBadArgs)
	}
	return perms.Rights(access), nil
}

// Turns the outcome of a store operation into the boolean answer.
func (srv *DMBNServer) reportStore(call *methods.Call, err error) bool {
	if err != nil {
		srv.logger.Infof("'%v' by '%v' failed (%v).", call.Method, call.Login, err)
		return false
	}
	srv.logger.Infof("'%v' by '%v' succeeded.", call.Method, call.Login)
	return true
}

// Account operations shared by client methods and the admin RPC.

func (srv *DMBNServer) addUser(ctx context.Context, login string, password string, access perms.Rights) error {
	store, err := srv.store()
	if err != nil {
		return err
	}
	return store.AddUser(ctx, login, password, access)
}

// Deletes the account and disconnects its session, if any.
func (srv *DMBNServer) deleteUser(ctx context.Context, login string) error {
	store, err := srv.store()
	if err != nil {
		return err
	}
	if err := store.DeleteUser(ctx, login); err != nil {
		return err
	}
	srv.kick(login, "Your account was deleted.")
	return nil
}

func (srv *DMBNServer) changePassword(ctx context.Context, login string, password string) error {
	store, err := srv.store()
	if err != nil {
		return err
	}
	return store.ChangePassword(ctx, login, password)
}

func (srv *DMBNServer) changeAccess(ctx context.Context, login string, access perms.Rights) error {
	store, err := srv.store()
	if err != nil {
		return err
	}
	return store.ChangeAccess(ctx, login, access)
}
