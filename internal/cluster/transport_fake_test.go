package cluster

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory stand-in for Transport, used the way
// internal/events/client_test.go exercises Client behavior without a live
// MCP server.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	emitErr    error
	emitted    []fakeEmit
	handlers   map[string]func(data map[string]any)
	onDisc     func()
}

type fakeEmit struct {
	event string
	data  map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(data map[string]any))}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Emit(_ context.Context, event string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, fakeEmit{event, data})
	return nil
}

func (f *fakeTransport) OnEvent(event string, handler func(data map[string]any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
}

func (f *fakeTransport) OnDisconnect(handler func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisc = handler
}

// triggerEvent simulates an inbound event arriving from the secondary.
func (f *fakeTransport) triggerEvent(event string, data map[string]any) {
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func (f *fakeTransport) countEmits(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emitted {
		if e.event == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastEmit(event string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.emitted) - 1; i >= 0; i-- {
		if f.emitted[i].event == event {
			return f.emitted[i].data, true
		}
	}
	return nil, false
}
