package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// event is the envelope the boot menu mirror sends.
type event struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8090/state", "Boot menu mirror websocket URL")
		raw   = flag.Bool("raw", false, "Print every message as received")
		once  = flag.Bool("once", false, "Exit after the boot choice is announced")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The server pings; answering resets our deadline too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			if chosen := handleTextMessage(message); chosen && *once {
				return
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one envelope and reports whether it announced the
// boot choice.
func handleTextMessage(message []byte) bool {
	var ev event
	if err := json.Unmarshal(message, &ev); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return false
	}

	switch ev.Type {
	case "state_init":
		var s struct {
			MenuVisible      bool     `json:"menu_visible"`
			Headers          []string `json:"headers"`
			Items            []string `json:"items"`
			Selected         int      `json:"selected"`
			TextVisible      bool     `json:"text_visible"`
			CountdownSeconds int      `json:"countdown_seconds"`
			CountdownActive  bool     `json:"countdown_active"`
		}
		if json.Unmarshal(ev.Data, &s) != nil {
			break
		}
		fmt.Printf("[STATE] menu=%v text=%v", s.MenuVisible, s.TextVisible)
		if s.CountdownActive {
			fmt.Printf(" countdown=%ds", s.CountdownSeconds)
		}
		fmt.Println()
		printMenu(s.Headers, s.Items, s.Selected)
		return false

	case "menu_started":
		var s struct {
			Headers  []string  `json:"headers"`
			Items    []string  `json:"items"`
			Selected int       `json:"selected"`
			Deadline time.Time `json:"deadline"`
		}
		if json.Unmarshal(ev.Data, &s) != nil {
			break
		}
		fmt.Printf("[MENU] deadline %s\n", s.Deadline.Local().Format("15:04:05"))
		printMenu(s.Headers, s.Items, s.Selected)
		return false

	case "selection_changed":
		var s struct {
			Selected int    `json:"selected"`
			Item     string `json:"item"`
		}
		if json.Unmarshal(ev.Data, &s) != nil {
			break
		}
		fmt.Printf("[SELECT] %d %s\n", s.Selected, s.Item)
		return false

	case "countdown":
		var s struct {
			Seconds int `json:"seconds"`
		}
		if json.Unmarshal(ev.Data, &s) != nil {
			break
		}
		fmt.Printf("[COUNTDOWN] %ds\n", s.Seconds)
		return false

	case "boot_chosen":
		var s struct {
			Index  int    `json:"index"`
			Item   string `json:"item"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(ev.Data, &s) != nil {
			break
		}
		fmt.Printf("[BOOT] %d %s (%s)\n", s.Index, s.Item, s.Reason)
		return true
	}

	fmt.Printf("[%s] %s\n", strings.ToUpper(ev.Type), string(ev.Data))
	return false
}

func printMenu(headers, items []string, selected int) {
	for _, h := range headers {
		fmt.Printf("    %s\n", h)
	}
	for i, it := range items {
		mark := " "
		if i == selected {
			mark = ">"
		}
		fmt.Printf("  %s %s\n", mark, it)
	}
}
