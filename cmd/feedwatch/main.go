// Package main is a small client that tails the live feed websocket and can
// hold many concurrent connections open to load-test fan-out.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks connection and event counts across all clients.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	EventsReceived       int64
	Errors               int64
}

var metrics Metrics

type feedEvent struct {
	Type   string    `json:"type"`
	PostID string    `json:"post_id"`
	At     time.Time `json:"at"`
}

func main() {
	host := flag.String("host", "localhost:8080", "API server host")
	email := flag.String("email", "editor1@tribune.local", "Account email")
	password := flag.String("password", "Tribune-Demo-2024!", "Account password")
	clients := flag.Int("clients", 1, "Number of concurrent feed connections")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	quiet := flag.Bool("quiet", false, "Do not print individual events")
	flag.Parse()

	token, err := login(*host, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Printf("Logged in as %s, opening %d feed connection(s) to %s", *email, *clients, *host)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(*host, token, i, !*quiet && i == 0, stop, &wg)
		if *clients > 1 {
			time.Sleep(20 * time.Millisecond)
		}
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-timeout:
		log.Println("Duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stop)
	wg.Wait()
	printMetrics()
}

func login(host, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/auth/login", host), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func getTicket(host, token string) (string, error) {
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/ws/ticket", host), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func runClient(host, token string, id int, verbose bool, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	ticket, err := getTicket(host, token)
	if err != nil {
		log.Printf("client %d: %v", id, err)
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws/feed", RawQuery: "ticket=" + ticket}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Printf("client %d: dial failed: %v", id, err)
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if !verbose {
				continue
			}
			var ev feedEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("unreadable event: %s", data)
				continue
			}
			log.Printf("%s  %-22s %s", ev.At.Format(time.RFC3339), ev.Type, ev.PostID)
		}
	}()

	select {
	case <-stop:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
		atomic.AddInt64(&metrics.Errors, 1)
	}
}

func printMetrics() {
	log.Println("Feed watch results")
	log.Printf("Connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Events received: %d", atomic.LoadInt64(&metrics.EventsReceived))
	log.Printf("Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
