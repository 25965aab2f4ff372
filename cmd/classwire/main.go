package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"classwire/internal/client"
	"classwire/internal/config"
	"classwire/internal/logger"
	"classwire/internal/rest"
	"classwire/pkg/types"
)

// bellPlayer rings the terminal bell for new notifications.
type bellPlayer struct{}

func (bellPlayer) Play() error {
	_, err := fmt.Fprint(os.Stdout, "\a")
	return err
}

// consoleNotifier prints system-level notifications to the terminal.
type consoleNotifier struct{}

func (consoleNotifier) Notify(tag, title, body string) error {
	_, err := fmt.Printf("\n[%s] %s: %s\n", tag, title, body)
	return err
}

func main() {
	var (
		configFile = flag.String("config", "", "optional config file")
		token      = flag.String("token", os.Getenv("CLASSWIRE_TOKEN"), "access token")
		userID     = flag.Int64("user", 0, "current user id")
		username   = flag.String("username", "", "current user name")
		scopeID    = flag.Int64("scope", 0, "conversation / room / lesson id to open")
		scopeKind  = flag.String("kind", string(types.ScopeDirect), "scope kind: direct, course or lesson-comments")
		polling    = flag.Bool("poll", false, "enable the REST polling fallback")
	)
	flag.Parse()

	if err := run(*configFile, *token, *userID, *username, *scopeID, types.ScopeKind(*scopeKind), *polling); err != nil {
		log.Fatalf("classwire: %v", err)
	}
}

func run(configFile, token string, userID int64, username string, scopeID int64, kind types.ScopeKind, polling bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("an access token is required (-token or CLASSWIRE_TOKEN)")
	}
	if userID <= 0 || scopeID <= 0 {
		return fmt.Errorf("-user and -scope are required")
	}

	std := logger.NewStd(log.New(os.Stderr, "", log.LstdFlags))
	var lg logger.Logger = std
	if cfg.Rollbar.Token != "" {
		lg = logger.NewRollbar(std, cfg.Rollbar.Token, cfg.Rollbar.Environment)
	}

	user := types.User{ID: userID, Username: username}
	cl, err := client.New(cfg, user, rest.StaticToken(token), bellPlayer{}, consoleNotifier{}, lg)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cl.RefreshConversations(ctx); err != nil {
		lg.Warn("conversation list unavailable: %v", err)
	}
	if err := cl.Notifications().LoadUnread(ctx); err != nil {
		lg.Warn("notifications unavailable: %v", err)
	}

	scope := types.Scope{ID: scopeID, Kind: kind}
	session, err := cl.Open(ctx, scope, client.SessionOptions{Polling: polling})
	if err != nil {
		return err
	}
	defer session.Close()

	for _, msg := range session.Messages() {
		printMessage(msg)
	}
	fmt.Printf("connected to %s %d, type to chat, /quit to exit\n", kind, scopeID)

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "/quit" {
				return nil
			}
			if line == "" {
				continue
			}
			session.Keystroke()
			msg, err := session.Send(ctx, line)
			if err != nil {
				lg.Warn("send failed: %v", err)
				continue
			}
			printMessage(msg)
		}
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func printMessage(msg types.Message) {
	fmt.Printf("%s %s: %s\n", msg.CreatedAt.Format("15:04"), msg.Sender.DisplayName(), msg.Content)
}
