package adsb

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// FeedPorter is the minimal interface a live SBS feed source must satisfy.
// The abstraction lets the mux run over a serial port, a TCP socket to a
// receiver, or a mock during development without real hardware.
type FeedPorter interface {
	io.Reader
	io.Closer
}

// FeedMux reads lines from one SBS feed and fans them out to any number of
// subscribers. Subscribers that cannot keep up have lines skipped rather
// than blocking the read loop.
type FeedMux[T FeedPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewFeedMux creates a mux over an already-open feed source.
func NewFeedMux[T FeedPorter](port T) *FeedMux[T] {
	return &FeedMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// NewSerialFeedMux opens the SBS output of a receiver attached at the given
// serial path. BaseStation units emit at 115200 8N1.
func NewSerialFeedMux(path string) (*FeedMux[serial.Port], error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return NewFeedMux[serial.Port](port), nil
}

// NewTCPFeedMux connects to a receiver's SBS socket, e.g. dump1090 port
// 30003.
func NewTCPFeedMux(addr string) (*FeedMux[net.Conn], error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return NewFeedMux[net.Conn](conn), nil
}

// mockPort replays canned SBS lines on a timer, for development without a
// receiver.
type mockPort struct {
	r io.ReadCloser
}

func (m *mockPort) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *mockPort) Close() error               { return m.r.Close() }

// NewMockFeedMux returns a mux fed by the given lines repeated at the given
// interval.
func NewMockFeedMux(lines []string, interval time.Duration) *FeedMux[*mockPort] {
	r, w := io.Pipe()
	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			for _, line := range lines {
				if _, err := io.WriteString(w, strings.TrimRight(line, "\n")+"\n"); err != nil {
					return
				}
			}
		}
	}()
	return NewFeedMux(&mockPort{r: r})
}

// randomID generates a subscriber channel ID (8 random bytes, hex encoded).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving feed lines. The returned ID
// identifies the channel for Unsubscribe.
func (f *FeedMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 32)
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *FeedMux[T]) Unsubscribe(id string) {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Monitor reads lines from the feed and delivers them to subscribers until
// the context is cancelled or the feed closes.
func (f *FeedMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(f.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop can
	// still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}

			f.closingMu.Lock()
			if f.closing {
				f.closingMu.Unlock()
				return nil
			}
			f.closingMu.Unlock()

			f.subscriberMu.Lock()
			for _, ch := range f.subscribers {
				select {
				case ch <- line:
				default:
					// full subscriber, skip so the read loop never stalls
				}
			}
			f.subscriberMu.Unlock()
		}
	}
}

// Close shuts down all subscribers and the underlying feed.
func (f *FeedMux[T]) Close() error {
	f.closingMu.Lock()
	f.closing = true
	f.closingMu.Unlock()

	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
	return f.port.Close()
}
