// parkgate-console is one gate workstation process. It mints a session
// token at start, authenticates a user against the backend and runs the
// session gate: duplicate consoles on the same workstation or on another
// device lock this one out until the operator reclaims or signs out.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"parkgate/auth"
	"parkgate/db"
	"parkgate/localbus"
	"parkgate/localstore"
	"parkgate/session"
	"parkgate/types"
)

func main() {
	configPath := flag.String("config", "console.yaml", "path to the workstation config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.Connect(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	cache, err := localstore.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open local cache: %v", err)
	}
	defer cache.Close()

	bus, err := localbus.OpenChannel(cfg.BusDir, cfg.Channel)
	if err != nil {
		log.Fatalf("Failed to join workstation channel: %v", err)
	}
	defer bus.Close()

	authSvc := auth.NewService()
	provider := auth.NewConsole(authSvc)

	st := session.NewState(session.Config{
		Token: session.NewToken(),
		Auth:  provider,
		Store: db.NewUserStore(),
		Cache: cache,
		Bus:   bus,
	})
	if err := st.Init(); err != nil {
		log.Fatalf("Failed to start session gate: %v", err)
	}
	defer st.Teardown()

	go watchUpdates(st)

	fmt.Printf("parkgate console (site %s, gate %s)\n", cfg.Site, cfg.Gate)
	fmt.Println("commands: login <user> <pass> | goto <admin|agent> | status | reclaim | logout | quit")

	run(st, provider)
}

func run(st *session.State, provider *auth.Console) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if st.Snapshot().Duplicate && fields[0] != "reclaim" && fields[0] != "logout" && fields[0] != "quit" {
			printLockout()
			continue
		}

		switch fields[0] {
		case "login":
			if len(fields) != 3 {
				fmt.Println("usage: login <user> <pass>")
				continue
			}
			if err := provider.Login(ctx, fields[1], fields[2]); err != nil {
				fmt.Printf("login failed: %v\n", err)
			}
		case "goto":
			if len(fields) != 2 {
				fmt.Println("usage: goto <admin|agent>")
				continue
			}
			required := types.Role(fields[1])
			if required != types.RoleAdmin && required != types.RoleAgent {
				fmt.Println("usage: goto <admin|agent>")
				continue
			}
			decision := st.Decide(required)
			fmt.Printf("/%s -> %s\n", fields[1], decision)
		case "status":
			snap := st.Snapshot()
			fmt.Printf("authenticated=%v user=%s role=%s loading=%v duplicate=%v\n",
				snap.Authenticated, snap.Username, snap.Role, snap.Loading, snap.Duplicate)
		case "reclaim":
			st.Reconnect(ctx)
			fmt.Println("session reclaimed on this console")
		case "logout":
			st.SignOut(ctx)
			fmt.Println("signed out")
		case "quit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func watchUpdates(st *session.State) {
	wasDuplicate := false
	for snap := range st.Updates() {
		if snap.Duplicate && !wasDuplicate {
			printLockout()
		}
		wasDuplicate = snap.Duplicate
	}
}

func printLockout() {
	fmt.Println()
	fmt.Println("SESIÓN DUPLICADA — esta consola ha sido reemplazada por otra sesión activa.")
	fmt.Println("  reclaim  RETOMAR AQUÍ")
	fmt.Println("  logout   CERRAR SESIÓN Y SALIR")
}
