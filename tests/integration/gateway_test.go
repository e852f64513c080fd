//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// gatewayRequest is one delivery attempt recorded by the stub.
type gatewayRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	Auth string `json:"-"`
}

// gatewayStub fakes the outbound message gateway. Tests script failure
// sequences per destination; unscripted destinations always succeed.
type gatewayStub struct {
	mu       sync.Mutex
	server   *httptest.Server
	requests []gatewayRequest
	scripts  map[string][]int
}

func newGatewayStub() *gatewayStub {
	g := &gatewayStub{
		scripts: map[string][]int{},
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

func (g *gatewayStub) URL() string { return g.server.URL }

func (g *gatewayStub) Close() { g.server.Close() }

// Script makes the next deliveries to a destination return the given
// status codes in order, then fall back to success.
func (g *gatewayStub) Script(to string, statuses ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[to] = append(g.scripts[to], statuses...)
}

// RequestsFor returns all recorded deliveries to a destination.
func (g *gatewayStub) RequestsFor(to string) []gatewayRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []gatewayRequest
	for _, r := range g.requests {
		if r.To == to {
			out = append(out, r)
		}
	}
	return out
}

func (g *gatewayStub) handle(w http.ResponseWriter, r *http.Request) {
	var payload gatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	payload.Auth = r.Header.Get("Authorization")

	g.mu.Lock()
	g.requests = append(g.requests, payload)
	seq := len(g.requests)

	status := http.StatusOK
	if script := g.scripts[payload.To]; len(script) > 0 {
		status = script[0]
		g.scripts[payload.To] = script[1:]
	}
	g.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message_id": fmt.Sprintf("gw-%d", seq),
	})
}
