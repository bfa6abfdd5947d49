package httpdispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/platform"
)

type recordingSender struct {
	mu       sync.Mutex
	requests []platform.HTTPRequest
	err      error
}

func (s *recordingSender) SendHTTPRequest(req platform.HTTPRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *recordingSender) last() platform.HTTPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestSendAndResponse(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, nil, nil)
	defer d.Close()

	type result struct {
		resp platform.HTTPResponse
		err  error
	}
	results := make(chan result, 1)

	id, err := d.Send(platform.HTTPGet, "https://sfu.example/v1/conference/participants",
		map[string]string{"Authorization": "Basic x"}, nil,
		func(resp platform.HTTPResponse, err error) { results <- result{resp, err} })
	require.NoError(t, err)
	assert.Equal(t, 1, d.Pending())

	req := sender.last()
	assert.Equal(t, id, req.RequestID)
	assert.Equal(t, platform.HTTPGet, req.Method)

	require.NoError(t, d.Response(id, platform.HTTPResponse{StatusCode: 200, Body: []byte("{}")}))
	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, uint16(200), r.resp.StatusCode)
		assert.Equal(t, []byte("{}"), r.resp.Body)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
	assert.Equal(t, 0, d.Pending())

	err = d.Response(id, platform.HTTPResponse{StatusCode: 200})
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestFailed(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, nil, nil)
	defer d.Close()

	errs := make(chan error, 1)
	id, err := d.Send(platform.HTTPPut, "https://sfu.example", nil, []byte("x"),
		func(_ platform.HTTPResponse, err error) { errs <- err })
	require.NoError(t, err)

	require.NoError(t, d.Failed(id))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrRequestFailed)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestSendErrorDoesNotLeavePending(t *testing.T) {
	sender := &recordingSender{err: errors.New("offline")}
	d := New(sender, nil, nil)
	defer d.Close()

	_, err := d.Send(platform.HTTPGet, "https://sfu.example", nil, nil,
		func(platform.HTTPResponse, error) { t.Error("callback must not run") })
	require.Error(t, err)
	assert.Equal(t, 0, d.Pending())
}

func TestCloseFailsPending(t *testing.T) {
	sender := &recordingSender{}
	d := New(sender, nil, nil)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		_, err := d.Send(platform.HTTPGet, "https://sfu.example", nil, nil,
			func(_ platform.HTTPResponse, err error) { errs <- err })
		require.NoError(t, err)
	}

	d.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	assert.ErrorIs(t, <-errs, ErrClosed)
	assert.ErrorIs(t, <-errs, ErrClosed)

	_, err := d.Send(platform.HTTPGet, "https://sfu.example", nil, nil, func(platform.HTTPResponse, error) {})
	assert.ErrorIs(t, err, ErrClosed)
}
