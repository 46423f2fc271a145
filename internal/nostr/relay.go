package nostr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Filter narrows a relay query per the protocol's REQ semantics.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	DTag    string
	Since   *int64
	Limit   int
}

// MarshalJSON emits the wire form, where tag queries are keyed "#<name>".
func (f Filter) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if f.DTag != "" {
		m["#d"] = []string{f.DTag}
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}

	return json.Marshal(m)
}

// relayTimeout bounds one relay conversation when the caller's context
// carries no deadline of its own.
const relayTimeout = 10 * time.Second

// guardConn bounds a relay conversation: deadlines cap how long any
// read or write may block, and closing the conn on cancellation
// unblocks a read already in flight. Callers must call the returned
// stop when the conversation ends.
func guardConn(ctx context.Context, conn *websocket.Conn) (stop func()) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(relayTimeout)
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return func() { close(done) }
}

// Pool fans queries and publishes out to a set of relay endpoints.
//
// A single unreachable relay is never fatal: results from the rest are
// merged and de-duplicated by event id.
type Pool struct {
	urls   []string
	dialer *websocket.Dialer
}

func NewPool(urls []string) *Pool {
	return &Pool{
		urls: urls,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// URLs returns the configured relay endpoints.
func (p *Pool) URLs() []string {
	return p.urls
}

// Query sends the filter to every relay and merges verified events,
// newest first.
func (p *Pool) Query(ctx context.Context, f Filter) ([]Event, error) {
	if len(p.urls) == 0 {
		return nil, errors.New("no relays configured")
	}

	var (
		mu     sync.Mutex
		byID   = map[string]Event{}
		wg     sync.WaitGroup
		errCnt int
	)
	for _, u := range p.urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()

			evs, err := p.queryRelay(ctx, u, f)
			if err != nil {
				slog.Debug("relay query failed", "relay", u, "error", err)
				mu.Lock()
				errCnt++
				mu.Unlock()
				return
			}

			mu.Lock()
			for _, ev := range evs {
				if !ev.Verify() {
					continue
				}
				byID[ev.ID] = ev
			}
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	if errCnt == len(p.urls) {
		return nil, errors.New("all relays failed")
	}

	merged := make([]Event, 0, len(byID))
	for _, ev := range byID {
		merged = append(merged, ev)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].CreatedAt > merged[j].CreatedAt })

	return merged, nil
}

// Latest fetches the most recent replaceable event of the given kind for
// an author. Absence is the normal first-time state and returns nil, nil.
func (p *Pool) Latest(ctx context.Context, author string, kind int, dTag string) (*Event, error) {
	evs, err := p.Query(ctx, Filter{
		Authors: []string{author},
		Kinds:   []int{kind},
		DTag:    dTag,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}

	// Query sorts newest first.
	return &evs[0], nil
}

// Publish sends a signed event to every relay and succeeds if at least
// one accepts it.
func (p *Pool) Publish(ctx context.Context, ev *Event) error {
	if len(p.urls) == 0 {
		return errors.New("no relays configured")
	}

	var (
		mu       sync.Mutex
		accepted int
		wg       sync.WaitGroup
	)
	for _, u := range p.urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()

			if err := p.publishRelay(ctx, u, ev); err != nil {
				slog.Debug("relay publish failed", "relay", u, "error", err)
				return
			}

			mu.Lock()
			accepted++
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	if accepted == 0 {
		return errors.New("no relay accepted the event")
	}

	return nil
}

func (p *Pool) queryRelay(ctx context.Context, relayURL string, f Filter) ([]Event, error) {
	conn, _, err := p.dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error dialing relay: %s", err)
	}
	defer conn.Close()
	stop := guardConn(ctx, conn)
	defer stop()

	subID := uuid.NewString()
	if err := conn.WriteJSON([]any{"REQ", subID, f}); err != nil {
		return nil, fmt.Errorf("error sending subscription: %s", err)
	}

	var events []Event
	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("error reading from relay: %s", err)
		}
		if len(msg) < 2 {
			continue
		}

		var typ string
		if err := json.Unmarshal(msg[0], &typ); err != nil {
			continue
		}

		switch typ {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(msg[2], &ev); err != nil {
				continue
			}
			events = append(events, ev)
		case "EOSE":
			// The stored-event dump is complete; this client does not
			// stream live updates.
			conn.WriteJSON([]any{"CLOSE", subID})
			return events, nil
		case "CLOSED":
			return events, nil
		}
	}
}

func (p *Pool) publishRelay(ctx context.Context, relayURL string, ev *Event) error {
	conn, _, err := p.dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return fmt.Errorf("error dialing relay: %s", err)
	}
	defer conn.Close()
	stop := guardConn(ctx, conn)
	defer stop()

	if err := conn.WriteJSON([]any{"EVENT", ev}); err != nil {
		return fmt.Errorf("error sending event: %s", err)
	}

	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("error reading relay response: %s", err)
		}
		if len(msg) < 3 {
			continue
		}

		var typ string
		if err := json.Unmarshal(msg[0], &typ); err != nil {
			continue
		}
		if typ != "OK" {
			continue
		}

		var id string
		if err := json.Unmarshal(msg[1], &id); err != nil || id != ev.ID {
			continue
		}

		var ok bool
		if len(msg) >= 3 {
			json.Unmarshal(msg[2], &ok)
		}
		if !ok {
			reason := ""
			if len(msg) >= 4 {
				json.Unmarshal(msg[3], &reason)
			}
			return fmt.Errorf("relay rejected event: %s", reason)
		}

		return nil
	}
}
