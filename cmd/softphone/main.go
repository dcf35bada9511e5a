package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"webphone/internal/softphone"
	"webphone/pkg/logger"

	"github.com/c-bata/go-prompt"
)

func completer(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "dial", Description: "Call a number: dial +15551234567"},
		{Text: "accept", Description: "Answer the ringing call"},
		{Text: "reject", Description: "Decline the ringing call"},
		{Text: "end", Description: "Hang up"},
		{Text: "mute", Description: "Toggle mute"},
		{Text: "hold", Description: "Toggle hold"},
		{Text: "status", Description: "Show session and call state"},
		{Text: "quit", Description: "Exit"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func main() {
	relayURL := flag.String("relay", envOr("RELAY_URL", "http://localhost:3000"), "relay base URL")
	env := flag.String("env", envOr("APP_ENV", "local"), "log profile: local, dev, production")
	flag.Parse()

	log := logger.New(*env)
	slog.SetDefault(log)

	relay, err := softphone.NewRelayClient(*relayURL, nil)
	if err != nil {
		log.Error("relay client init failed", "err", err)
		os.Exit(1)
	}

	sess, err := softphone.NewSession(softphone.Options{
		Relay:     relay,
		Connector: softphone.RelayConnector{BaseURL: relay.BaseURL(), Relay: relay, Log: log},
		Observer:  printTransition(),
		Log:       log,
	})
	if err != nil {
		log.Error("session init failed", "err", err)
		os.Exit(1)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sess.Init(ctx); err != nil {
		fmt.Printf("Could not start the phone: %v\n", err)
	}
	cancel()

	consoleLoop(sess)
}

func consoleLoop(sess *softphone.Session) {
	fmt.Println("Please select command.")
	for {
		t := prompt.Input("phone> ", completer,
			prompt.OptionTitle("webphone"),
			prompt.OptionHistory([]string{"status"}),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
			prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
			prompt.OptionSuggestionBGColor(prompt.DarkGray))

		fields := strings.Fields(t)
		if len(fields) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		var err error
		switch fields[0] {
		case "dial", "d":
			if len(fields) < 2 {
				fmt.Println("usage: dial <number>")
				cancel()
				continue
			}
			err = sess.Dial(ctx, strings.Join(fields[1:], ""))
		case "accept", "a":
			err = sess.Accept(ctx)
		case "reject", "r":
			err = sess.Reject(ctx)
		case "end", "e", "hangup":
			err = sess.End(ctx)
		case "mute", "m":
			err = sess.ToggleMute(ctx)
		case "hold", "h":
			err = sess.ToggleHold(ctx)
		case "status", "s":
			printStatus(sess.Snapshot())
		case "quit", "exit", "q":
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
		cancel()
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// printTransition prints the status line whenever it changes. Timer ticks are not echoed.
func printTransition() func(softphone.Snapshot) {
	var last string
	return func(s softphone.Snapshot) {
		line := fmt.Sprintf("[%s/%s] %s", s.Status, s.State, s.Message)
		if line == last {
			return
		}
		last = line
		fmt.Println(line)
	}
}

func printStatus(s softphone.Snapshot) {
	fmt.Printf("device: %s\n", s.Status)
	fmt.Printf("state:  %s\n", s.State)
	if s.Message != "" {
		fmt.Printf("status: %s\n", s.Message)
	}
	if c := s.Call; c != nil {
		fmt.Printf("call:   %s %s (%s)\n", c.Direction, c.RemoteIdentifier, c.ProviderCallID)
		fmt.Printf("        muted=%t on_hold=%t duration=%s\n", c.Media.Muted, c.Media.OnHold, time.Duration(c.Elapsed)*time.Second)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
