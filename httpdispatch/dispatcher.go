// Package httpdispatch sends HTTP requests through the host and routes the
// host's answers back to whoever asked. Callbacks run one at a time on the
// dispatcher's queue, never on the host's goroutine.
package httpdispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/taskqueue"
)

var (
	// ErrRequestFailed indicates the host could not complete the request.
	ErrRequestFailed = errors.New("http request failed")

	// ErrUnknownRequest indicates a response for a request id that is not
	// pending.
	ErrUnknownRequest = errors.New("unknown http request id")

	// ErrClosed indicates the dispatcher has been closed.
	ErrClosed = errors.New("http dispatcher closed")
)

// Callback receives the response, or an error when the request failed.
type Callback func(resp platform.HTTPResponse, err error)

// Dispatcher tracks requests in flight.
type Dispatcher struct {
	sender  platform.HTTPSender
	metrics *metrics.Collector
	queue   *taskqueue.Queue

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]Callback
	closed  bool
}

// New creates a dispatcher sending through sender.
func New(sender platform.HTTPSender, m *metrics.Collector, onPanic func(taskqueue.Report)) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		metrics: m,
		queue:   taskqueue.New("http-dispatch", 0, onPanic),
		nextID:  1,
		pending: make(map[uint32]Callback),
	}
}

// Send issues a request and returns its id. cb runs exactly once unless
// the host never answers.
func (d *Dispatcher) Send(method platform.HTTPMethod, url string, headers map[string]string, body []byte, cb Callback) (uint32, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	id := d.nextID
	d.nextID++
	if d.nextID == 0 {
		d.nextID = 1
	}
	d.pending[id] = cb
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Send",
		"request_id": id,
		"method":     method.String(),
	}).Debug("Sending http request")

	err := d.sender.SendHTTPRequest(platform.HTTPRequest{
		RequestID: id,
		URL:       url,
		Method:    method,
		Headers:   headers,
		Body:      body,
	})
	if err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		d.metrics.HTTPRequest("send_error")
		return 0, fmt.Errorf("send http request: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) take(id uint32) (Callback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.pending[id]
	if !ok {
		return nil, fmt.Errorf("request %d: %w", id, ErrUnknownRequest)
	}
	delete(d.pending, id)
	return cb, nil
}

// Response delivers the host's answer to a request.
func (d *Dispatcher) Response(id uint32, resp platform.HTTPResponse) error {
	cb, err := d.take(id)
	if err != nil {
		return err
	}
	if resp.OK() {
		d.metrics.HTTPRequest("ok")
	} else {
		d.metrics.HTTPRequest("status_error")
	}
	body := append([]byte(nil), resp.Body...)
	return d.queue.Post(func() {
		cb(platform.HTTPResponse{StatusCode: resp.StatusCode, Body: body}, nil)
	})
}

// Failed reports that the host could not perform a request.
func (d *Dispatcher) Failed(id uint32) error {
	cb, err := d.take(id)
	if err != nil {
		return err
	}
	d.metrics.HTTPRequest("failed")
	return d.queue.Post(func() {
		cb(platform.HTTPResponse{}, ErrRequestFailed)
	})
}

// Pending returns the number of requests awaiting an answer.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Sync waits for callbacks already queued.
func (d *Dispatcher) Sync(ctx context.Context) error {
	return d.queue.Sync(ctx)
}

// Close fails every pending request with ErrClosed and stops the queue
// after those callbacks have run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pending := d.pending
	d.pending = make(map[uint32]Callback)
	d.mu.Unlock()

	for _, cb := range pending {
		cb := cb
		_ = d.queue.Post(func() { cb(platform.HTTPResponse{}, ErrClosed) })
	}
	d.queue.Close()
}

// Wait blocks until the queue has drained after Close.
func (d *Dispatcher) Wait(ctx context.Context) error {
	return d.queue.Wait(ctx)
}
