// Command companion is a terminal front end for the FigrClub session
// controller: it subscribes to session state like the app's screens do and
// drives login, registration, verification, and logout interactively.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/infra/config"
	"github.com/EmerBV/figrclub-sub001/internal/infra/httpapi"
	"github.com/EmerBV/figrclub-sub001/internal/infra/keystore"
	"github.com/EmerBV/figrclub-sub001/internal/infra/logger"
	"github.com/EmerBV/figrclub-sub001/internal/infra/telemetry"
	"github.com/EmerBV/figrclub-sub001/internal/session"
	"github.com/EmerBV/figrclub-sub001/internal/validate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := keystore.Open(ctx, cfg.Keystore.Path, cfg.Keystore.SecretPath)
	if err != nil {
		log.Fatalf("failed to open keystore: %v", err)
	}
	defer func() { _ = store.Close() }()

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{})
	if err != nil {
		log.Fatalf("failed to init metrics: %v", err)
	}

	api := httpapi.New(cfg.API.BaseURL, cfg.API.Timeout, lg)

	controller, err := session.NewController(api, store, validate.NewFormValidator(nil), lg,
		session.WithBootstrapTimeout(cfg.Session.BootstrapTimeout),
		session.WithOperationTimeout(cfg.Session.OperationTimeout),
		session.WithRefreshLeeway(cfg.Session.RefreshLeeway),
		session.WithRecorder(metrics),
	)
	if err != nil {
		log.Fatalf("failed to init session controller: %v", err)
	}
	defer controller.Close()

	snapshots, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	go func() {
		for snap := range snapshots {
			printSnapshot(snap)
		}
	}()

	controller.CheckInitialSession(ctx)

	repl(ctx, controller)
}

func printSnapshot(snap domain.Snapshot) {
	switch snap.Phase {
	case domain.PhaseAuthenticated:
		fmt.Printf("-- session: signed in as @%s\n", snap.User.Username)
	case domain.PhaseEmailVerificationPending:
		fmt.Printf("-- session: check your inbox, then run `verify <code>`\n")
	case domain.PhaseErrored:
		fmt.Printf("-- session: error: %s\n", snap.Message)
	default:
		fmt.Printf("-- session: %s\n", snap.Phase)
	}
}

func repl(ctx context.Context, controller *session.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: login <email> <password> | register <email> <username> <password> | verify <code> | whoami | refresh | logout | quit")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "login":
			if len(args) != 3 {
				fmt.Println("usage: login <email> <password>")
				continue
			}
			user, err := controller.Login(ctx, domain.Credentials{Email: args[1], Password: args[2]})
			reportAuth(user, err)
		case "register":
			if len(args) != 4 {
				fmt.Println("usage: register <email> <username> <password>")
				continue
			}
			now := time.Now().UTC()
			form := domain.RegistrationForm{
				Email:           args[1],
				Username:        args[2],
				Password:        args[3],
				PasswordConfirm: args[3],
				Consents: []domain.Consent{
					{Kind: domain.ConsentTerms, Accepted: true, AcceptedAt: now},
					{Kind: domain.ConsentPrivacy, Accepted: true, AcceptedAt: now},
				},
			}
			user, err := controller.Register(ctx, form)
			reportAuth(user, err)
		case "verify":
			if len(args) != 2 {
				fmt.Println("usage: verify <code>")
				continue
			}
			user, err := controller.VerifyEmail(ctx, args[1])
			reportAuth(user, err)
		case "whoami":
			snap := controller.Current()
			if snap.Authenticated() {
				fmt.Printf("@%s (%s)\n", snap.User.Username, snap.User.Email)
			} else {
				fmt.Println("not signed in")
			}
		case "refresh":
			if err := controller.RefreshIfNeeded(ctx); err != nil {
				fmt.Printf("refresh: %v\n", err)
			}
		case "logout":
			if err := controller.Logout(ctx); err != nil {
				fmt.Printf("logout: %v\n", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", args[0])
		}
	}
}

func reportAuth(user domain.User, err error) {
	if err == nil {
		fmt.Printf("welcome, @%s\n", user.Username)
		return
	}

	var fields validate.FieldErrors
	if errors.As(err, &fields) {
		for _, name := range fields.Invalid() {
			fmt.Printf("  %s: %s\n", name, fields[name].Message)
		}
		return
	}

	fmt.Printf("error: %v\n", err)
}
