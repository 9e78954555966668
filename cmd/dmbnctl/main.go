// dmbnctl implements an RPC client to manage the server.
package main

import (
	"fmt"
	"net/rpc"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lambdcalculus/dmbn/pkg/logger"
	// using `t` since we only require the RPC types
	t "github.com/lambdcalculus/dmbn/pkg/rpc"
)

type cmdHandler func(args []string) error

type command struct {
	handler     cmdHandler
	args        int
	description string
	usage       string
}

var commands map[string]command

var rpcPort int

func init() {
	logger.SetLogger(logger.NewLoggerOutputs(logger.LevelInfo, logFormat, "stdout"))

	pflag.CommandLine.SetOutput(os.Stdout)
	pflag.CommandLine.Usage = printUsage

	commands = map[string]command{
		"help": {handleHelp, 0, "shows usage information about a command",
			"dmbnctl help [command]"},
		"add-user": {handleAddUser, 2, "adds a user, optionally with a comma-separated list of rights",
			"dmbnctl -p [RPC port] add-user [username] [password] [right,right,...]"},
		"rm-user": {handleRmUser, 1, "removes a user and disconnects them",
			"dmbnctl -p [RPC port] rm-user [username]"},
		"passwd": {handlePasswd, 2, "changes a user's password",
			"dmbnctl -p [RPC port] passwd [username] [password]"},
		"access": {handleAccess, 1, "replaces a user's rights; none given resets to the defaults",
			"dmbnctl -p [RPC port] access [username] [right,right,...]"},
		"online": {handleOnline, 0, "lists users with an active session",
			"dmbnctl -p [RPC port] online"},
		"users": {handleUsers, 0, "lists every user",
			"dmbnctl -p [RPC port] users"},
	}

	pflag.IntVarP(&rpcPort, "port", "p", -1, "port used for RPC")
}

func main() {
	pflag.Parse()

	if len(pflag.Args()) < 1 {
		logger.Fatalf("No command given.")
		pflag.CommandLine.Usage()
		os.Exit(1)
	}

	cmdName := pflag.Args()[0]
	cmd, ok := commands[cmdName]
	if !ok {
		logger.Fatalf("Unknown command.")
		pflag.CommandLine.Usage()
		os.Exit(1)
	}

	cmdArgs := pflag.Args()[1:]
	if len(cmdArgs) < cmd.args {
		logger.Fatalf("Not enough arguments for %v (need %v, got %v).", cmdName, cmd.args, len(cmdArgs))
		handleHelp([]string{cmdName})
		os.Exit(1)
	}
	if err := cmd.handler(cmdArgs); err != nil {
		logger.Errorf("%v: Failed (%v).", cmdName, err)
		os.Exit(1)
	}
}

func handleHelp(args []string) error {
	if len(args) < 1 {
		pflag.CommandLine.Usage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("command '%v' does not exist", args[0])
	}
	fmt.Printf("Usage of %v:\n", args[0])
	fmt.Printf("    %v\n", cmd.usage)
	return nil
}

func handleAddUser(args []string) error {
	rpcArgs := &t.AddUserArgs{
		Username: args[0],
		Password: args[1],
	}
	if len(args) > 2 {
		rpcArgs.Access = parseRights(args[2])
	}
	if err := call("AddUser", rpcArgs); err != nil {
		return err
	}
	fmt.Printf("add-user: User '%v' added succesfully!\n", args[0])
	return nil
}

func handleRmUser(args []string) error {
	if err := call("DeleteUser", &t.DeleteUserArgs{Username: args[0]}); err != nil {
		return err
	}
	fmt.Printf("rm-user: User '%v' removed succesfully!\n", args[0])
	return nil
}

func handlePasswd(args []string) error {
	if err := call("ChangePassword", &t.ChangePasswordArgs{Username: args[0], Password: args[1]}); err != nil {
		return err
	}
	fmt.Printf("passwd: Password of '%v' changed.\n", args[0])
	return nil
}

func handleAccess(args []string) error {
	rpcArgs := &t.ChangeAccessArgs{Username: args[0]}
	if len(args) > 1 {
		rpcArgs.Access = parseRights(args[1])
	}
	if err := call("ChangeAccess", rpcArgs); err != nil {
		return err
	}
	fmt.Printf("access: Rights of '%v' changed.\n", args[0])
	return nil
}

func handleOnline([]string) error {
	return list("Online")
}

func handleUsers([]string) error {
	return list("Users")
}

func list(op string) error {
	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	var names []string
	if err := client.Call(t.ServiceName+"."+op, &t.NoArgs{}, &names); err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func call(op string, args any) error {
	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	var reply int
	return client.Call(t.ServiceName+"."+op, args, &reply)
}

func dial() (*rpc.Client, error) {
	if rpcPort <= 0 {
		pflag.CommandLine.Usage()
		return nil, fmt.Errorf("port must be specified")
	}
	client, err := t.Dial(rpcPort)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial server (%w)", err)
	}
	return client, nil
}

// Turns "a,b,-c" into {a: true, b: true, c: false}.
func parseRights(s string) map[string]bool {
	rights := map[string]bool{}
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "-") {
			rights[name[1:]] = false
			continue
		}
		rights[name] = true
	}
	return rights
}

func printUsage() {
	fmt.Print(
		"Usage of dmbnctl:\n" +
			"    dmbnctl -p [RPC port] [command] [args...]\n")
	fmt.Println()
	fmt.Println("Flags:")
	pflag.CommandLine.PrintDefaults()
	fmt.Println()
	fmt.Println("Available commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("    %v: %v.\n", name, commands[name].description)
	}
}

var lvlToString = map[logger.LogLevel]string{
	logger.LevelTrace:   "trace",
	logger.LevelDebug:   "debug",
	logger.LevelInfo:    "info",
	logger.LevelWarning: "warn",
	logger.LevelError:   "error",
	logger.LevelFatal:   "fatal",
}

func logFormat(msg string, lvl logger.LogLevel) string {
	return fmt.Sprintf("%v: %v\n", lvlToString[lvl], msg)
}
