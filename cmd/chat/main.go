// Command chat is a terminal client for the realtime messaging core,
// useful for poking at a running server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mentorlink/realtime/clients/go/realtime"
	"github.com/mentorlink/realtime/internal/models"
)

func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080", "API base URL")
		wsURL    = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
		email    = flag.String("email", "", "login email")
		password = flag.String("password", "", "login password")
		chatID   = flag.String("chat", "", "conversation ID")
		peerID   = flag.String("peer", "", "peer user ID")
	)
	flag.Parse()

	if *email == "" || *password == "" || *chatID == "" || *peerID == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -email ... -password ... -chat ... -peer ...")
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger()

	ctx := context.Background()
	session := realtime.NewSession()

	client, err := realtime.NewClient(session, realtime.HTTPOptions{
		BaseURL: *apiURL,
		Logger:  logger,
		OnBlocked: func() {
			fmt.Fprintln(os.Stderr, "account blocked, signing out")
			os.Exit(1)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("client init failed")
	}

	user, err := client.Login(ctx, *email, *password)
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}
	logger.Info().Str("user", user.Name).Str("role", user.Role).Msg("logged in")

	transport := realtime.NewTransport(session, realtime.TransportOptions{
		URL:    *wsURL,
		Jar:    client.Jar(),
		Logger: logger,
	})
	defer transport.Close()

	transport.Connect(ctx)
	if transport.State() != realtime.StateConnected {
		logger.Fatal().Stringer("state", transport.State()).Msg("could not connect")
	}

	listener := realtime.NewNotificationListener(transport,
		func(n models.Notification) {
			fmt.Printf("\n*** %s: %s\n> ", n.Title, n.Body)
		},
		func(ev models.SessionStarted) {
			fmt.Printf("\n*** session %s started\n> ", ev.SessionID)
		},
	)
	listener.Start()
	defer listener.Stop()

	channel := realtime.NewChannel(transport, session, *chatID, *peerID, nil)
	detach := channel.Attach()
	defer detach()

	if stored, err := client.ChatMessages(ctx, *chatID, 50, 0); err == nil {
		channel.Hydrate(stored)
	}
	for _, msg := range channel.History() {
		printMessage(msg)
	}

	// Print inbound messages as they land
	cancel := transport.Subscribe(func(ev realtime.Event) {
		if ev.Kind == realtime.EventLiveMessage && ev.Message.ChatID == *chatID {
			fmt.Printf("\n%s: %s\n> ", ev.Message.SenderName, ev.Message.Body)
		}
	})
	defer cancel()

	fmt.Print("> ")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			break
		}
		if _, err := channel.Send(line, models.MessageTypeText, nil); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
		fmt.Print("> ")
	}

	_ = client.Logout(ctx)
}

func printMessage(msg realtime.Message) {
	who := msg.SenderName
	if msg.Own {
		who = "me"
	}
	fmt.Printf("[%s] %s: %s (%s)\n", msg.Timestamp.Local().Format(time.Kitchen), who, msg.Body, msg.Status)
}
