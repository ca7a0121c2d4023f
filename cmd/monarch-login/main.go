// Command monarch-login establishes a Monarch Money session interactively
// and saves it to the session file, so monarchd can start without
// credentials in its environment.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"monarch/internal/config"
	"monarch/internal/monarch"
	"monarch/internal/monarch/api"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	sessions, err := api.NewFileSessionStore(cfg.SessionFile)
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}

	client, err := api.New(cfg.MonarchBaseURL, sessions)
	if err != nil {
		log.Fatalf("init client: %v", err)
	}

	if client.Authenticated() {
		fmt.Printf("A session already exists in %s; logging in replaces it.\n", cfg.SessionFile)
	}

	stdin := bufio.NewReader(os.Stdin)

	email := cfg.MonarchEmail
	if email == "" {
		email = prompt(stdin, "Email: ")
	}
	password := cfg.MonarchPassword
	if password == "" {
		password = prompt(stdin, "Password: ")
	}
	if email == "" || password == "" {
		log.Fatalf("email and password are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	err = client.Login(ctx, email, password, "")
	if errors.Is(err, monarch.ErrMFARequired) {
		totp := prompt(stdin, "Multi-factor code: ")
		if totp == "" {
			log.Fatalf("multi-factor code is required for this account")
		}
		err = client.Login(ctx, email, password, totp)
	}
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	accounts, err := client.Accounts(ctx)
	if err != nil {
		log.Fatalf("session saved but account fetch failed: %v", err)
	}

	fmt.Printf("Logged in, %d accounts visible. Session saved to %s\n", len(accounts), cfg.SessionFile)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
