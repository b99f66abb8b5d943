package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"preventanyl/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	tick    func()
	stopped bool
}

// fakeTimers records every timer a workflow starts. Firing a stopped timer
// simulates a tick that was already in flight when Stop ran.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) New(_ time.Duration, tick func()) TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{tick: tick}
	f.timers = append(f.timers, t)
	return &fakeTimerHandle{owner: f, timer: t}
}

func (f *fakeTimers) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (f *fakeTimers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *fakeTimers) Fire(i int) {
	f.mu.Lock()
	t := f.timers[i]
	f.mu.Unlock()
	t.tick()
}

func (f *fakeTimers) FireLast() {
	f.Fire(f.Count() - 1)
}

type fakeTimerHandle struct {
	owner *fakeTimers
	timer *fakeTimer
}

func (h *fakeTimerHandle) Stop() {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.timer.stopped = true
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []models.HelpAlert
	err     error
	started chan struct{}
	release chan struct{}
}

func (d *fakeDispatcher) NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, alert)
	err := d.err
	started, release := d.started, d.release
	d.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return &models.DispatchResult{
		Channels:  []string{string(audience)},
		Delivered: 1,
		SentAt:    time.Now(),
	}, nil
}

func (d *fakeDispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakePrompt struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePrompt) Show(title, message string, secondsRemaining int) {
	p.record(fmt.Sprintf("show %s|%s|%d", title, message, secondsRemaining))
}

func (p *fakePrompt) Update(message string, secondsRemaining int) {
	p.record(fmt.Sprintf("update %s|%d", message, secondsRemaining))
}

func (p *fakePrompt) Dismiss() {
	p.record("dismiss")
}

func (p *fakePrompt) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePrompt) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeAlerts struct {
	mu       sync.Mutex
	messages []string
}

func (a *fakeAlerts) Alert(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *fakeAlerts) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

type fakeConnectivity struct {
	mu    sync.Mutex
	state models.ConnectionState
}

func onlineConnectivity() *fakeConnectivity {
	return &fakeConnectivity{state: models.ConnectionState{Connected: true, Type: models.ConnectionWifi}}
}

func (c *fakeConnectivity) ConnectionState(context.Context) models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConnectivity) Set(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Connected = connected
	if !connected {
		c.state.Type = models.ConnectionNone
	}
}

type memoryCooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMemoryCooldowns() *memoryCooldowns {
	return &memoryCooldowns{last: make(map[string]time.Time)}
}

func (m *memoryCooldowns) LastHelpSuccess(_ context.Context, deviceID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.last[deviceID]
	return at, ok, nil
}

func (m *memoryCooldowns) RecordHelpSuccess(_ context.Context, deviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[deviceID] = at
	return nil
}

type recordingMessenger struct {
	mu       sync.Mutex
	messages map[string][]models.WSMessage
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{messages: make(map[string][]models.WSMessage)}
}

func (m *recordingMessenger) SendToDevice(deviceID string, message models.WSMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[deviceID] = append(m.messages[deviceID], message)
	return true
}

func (m *recordingMessenger) Types(deviceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, msg := range m.messages[deviceID] {
		types = append(types, msg.Type)
	}
	return types
}

func (m *recordingMessenger) Messages(deviceID string) []models.WSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WSMessage(nil), m.messages[deviceID]...)
}

type recordingSink struct {
	mu       sync.Mutex
	messages []models.WSMessage
	notify   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 64)}
}

func (s *recordingSink) Send(message models.WSMessage) bool {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *recordingSink) Messages() []models.WSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WSMessage(nil), s.messages...)
}

// WaitFor blocks until a message of the given type has been sent.
func (s *recordingSink) WaitFor(msgType string, timeout time.Duration) (models.WSMessage, bool) {
	deadline := time.After(timeout)
	for {
		for _, msg := range s.Messages() {
			if msg.Type == msgType {
				return msg, true
			}
		}
		select {
		case <-s.notify:
		case <-deadline:
			return models.WSMessage{}, false
		}
	}
}
