// Command glictl drives the GLI admin console from a terminal. It shares the
// session, permission gate and stores with every other console front end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/app"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/config"
	"greenlabel.or.id/admin/internal/obs"
)

var version = "0.1.0"

type command struct {
	usage string
	run   func(ctx context.Context, a *app.App, args []string) error
}

var commands = map[string]command{
	"login":             {"login -email E [-password P]", runLogin},
	"logout":            {"logout", runLogout},
	"whoami":            {"whoami [-role R]", runWhoami},
	"serve":             {"serve [-addr A]", runServe},
	"nav":               {"nav", runNav},
	"check":             {"check <path>", runCheck},
	"users":             {"users", runUsers},
	"user-create":       {"user-create -name N -email E -password P [-status S] [-role R]", runUserCreate},
	"user-update":       {"user-update -xid X [-name N] [-email E] [-password P] [-status S] [-role R]", runUserUpdate},
	"user-delete":       {"user-delete -xid X", runUserDelete},
	"roles":             {"roles", runRoles},
	"role-create":       {"role-create -name N", runRoleCreate},
	"permissions":       {"permissions", runPermissions},
	"permission-create": {"permission-create -key K [-description D]", runPermissionCreate},
	"assign-permission": {"assign-permission -role R -permission P", runAssignPermission},
	"assign-role":       {"assign-role -xid X -role R", runAssignRole},
	"certs":             {"certs [-status S] [-type T]", runCerts},
	"cert-create":       {"cert-create -product ID -number N [-status S] [-type T] [-issued D] [-expires D] [-notes N]", runCertCreate},
	"cert-update":       {"cert-update -id ID [-product ID] [-number N] [-status S] [-type T] [-issued D] [-expires D] [-notes N]", runCertUpdate},
	"cert-delete":       {"cert-delete -id ID", runCertDelete},
	"products":          {"products [-page N] [-limit N] [-category C] [-search Q] [-sort popular|newest|name]", runProducts},
	"categories":        {"categories", runCategories},
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	obs.InitBuildInfo("glictl", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		fail(err)
	}
	defer closeStorage()

	a := app.New(cfg, storage)
	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		closeStorage()
		fail(err)
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n\ncommands:\n", os.Args[0])
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
	os.Exit(2)
}

func fail(err error) {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		fmt.Fprintln(os.Stderr, denied.Error())
		os.Exit(3)
	case apiclient.StatusOf(err) != 0:
		fmt.Fprintf(os.Stderr, "%s (HTTP %d)\n", apiclient.Message(err, "request failed"), apiclient.StatusOf(err))
	default:
		fmt.Fprintln(os.Stderr, apiclient.Message(err, "request failed"))
	}
	os.Exit(1)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
