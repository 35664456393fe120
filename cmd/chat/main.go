// Command chat is a line-oriented terminal client for the hospital chat
// backend. It lists appointment rooms, joins one, and keeps the local view
// of the conversation synchronized: sends appear immediately and are
// confirmed (or rolled back) by the server, live events from other
// participants stream in over the websocket, and the status line tracks
// whether the stream is live or offline.
//
// Commands:
//
//	/rooms          list appointments and pick another room
//	/delete <id>    delete one of your own messages
//	/retry          reconnect the stream after retries are exhausted
//	/quit           exit
//
// Anything else is sent as a message to the current room.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/careward/hospital-chat/internal/chatsync"
	"github.com/careward/hospital-chat/internal/config"
	"github.com/careward/hospital-chat/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	sysutil.SetLogLevel(sysutil.FirstNonEmpty(os.Getenv("CHAT_LOG_LEVEL"), "error"))
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	apiURL := sysutil.FirstNonEmpty(os.Getenv("CHAT_API_URL"), "http://localhost:8080"+cfg.APIBasePath)
	wsURL := sysutil.FirstNonEmpty(os.Getenv("CHAT_WS_URL"), "ws://localhost:8080/ws")

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64<<10), 64<<10)

	sender := strings.TrimSpace(os.Getenv("CHAT_SENDER"))
	for sender == "" {
		fmt.Print("your name: ")
		if !in.Scan() {
			return
		}
		sender = strings.TrimSpace(in.Text())
	}

	rest := chatsync.NewRequestClient(apiURL, nil, cfg.RequestTimeout)
	rest.Sender = sender

	stream := chatsync.NewStreamClient(chatsync.StreamConfig{
		BaseURL:          wsURL,
		MaxRetries:       cfg.Stream.MaxRetries,
		RetryDelay:       cfg.Stream.RetryDelay,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		OnState: func(s chatsync.ConnState) {
			fmt.Printf("\r[stream: %s]\n> ", statusWord(s))
		},
		Logger: logger,
	})

	ctrl := chatsync.NewController(chatsync.ControllerConfig{
		Request: rest,
		Stream:  stream,
		Sender:  sender,
		Notify: func(n chatsync.Notice) {
			fmt.Printf("\r! %s\n> ", n.Message)
		},
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	// Repaint on live events so pushes from other participants show up
	// without a keypress.
	go func() {
		var last int
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
				msgs := ctrl.Messages()
				if len(msgs) > last {
					for _, m := range msgs[last:] {
						if m.Sender != sender {
							fmt.Printf("\r%s\n> ", renderMessage(m))
						}
					}
				}
				last = len(msgs)
			}
		}
	}()

	if !pickRoom(ctx, in, rest, ctrl) {
		return
	}

	fmt.Print("> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/retry":
			ctrl.Reconnect()
		case line == "/rooms":
			if !pickRoom(ctx, in, rest, ctrl) {
				return
			}
		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			go func() { _ = ctrl.DeleteMessage(ctx, id) }()
		default:
			// Keep the prompt responsive; the controller reports failures
			// through notices and rolls the optimistic entry back.
			go func(text string) { _ = ctrl.SendMessage(ctx, text) }(line)
		}
		fmt.Print("> ")
	}
}

// pickRoom lists appointments, prompts for a selection, and switches the
// controller to it. Returns false when stdin is exhausted.
func pickRoom(ctx context.Context, in *bufio.Scanner, rest *chatsync.RequestClient, ctrl *chatsync.Controller) bool {
	appts, err := rest.Appointments(ctx)
	if err != nil {
		fmt.Println("could not list appointments:", err)
		return true
	}
	if len(appts) == 0 {
		fmt.Println("no appointments available")
		return true
	}

	fmt.Println("appointments:")
	for i, a := range appts {
		fmt.Printf("  %2d. %s with %s at %s [%s]\n",
			i+1, a.PatientName, a.DoctorName, a.ScheduledAt.Local().Format("Mon 2 Jan 15:04"), a.Status)
	}

	for {
		fmt.Print("join which? ")
		if !in.Scan() {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(in.Text()))
		if err != nil || n < 1 || n > len(appts) {
			fmt.Println("enter a number between 1 and", len(appts))
			continue
		}
		room := appts[n-1]
		if err := ctrl.SelectRoom(ctx, room.ID); err != nil {
			fmt.Println("history unavailable; showing live messages only")
		}
		for _, m := range ctrl.Messages() {
			fmt.Println(renderMessage(m))
		}
		return true
	}
}

// renderMessage formats one message line, marking unconfirmed sends.
func renderMessage(m chatsync.Message) string {
	mark := ""
	if m.Delivery == chatsync.DeliveryPending {
		mark = " …"
	}
	return fmt.Sprintf("[%s] %s: %s%s (%s)",
		m.CreatedAt.Local().Format("15:04"), m.Sender, m.Body, mark, m.ID)
}

// statusWord maps connection state onto the status line vocabulary.
func statusWord(s chatsync.ConnState) string {
	switch s {
	case chatsync.StateConnected:
		return "live"
	case chatsync.StateConnecting:
		return "connecting"
	default:
		return "offline (use /retry)"
	}
}
