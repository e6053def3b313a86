package requester

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (rt roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return rt(r)
}

func TestNewRequester(t *testing.T) {
	l := zap.NewExample()
	req := NewRequester(3*time.Second, l, nil)
	assert.NotNil(t, req, "Create new requester failed")
	assert.Equal(t, DefaultUserAgent, req.UserAgent())
	assert.Equal(t, 3*time.Second, req.Client().Timeout)
}

func TestFetchHTML(t *testing.T) {
	var gotUA string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/x">x</a></body></html>`)
	}))
	defer s.Close()

	req := NewRequester(time.Second, zap.NewExample(), nil)
	resp, err := req.Fetch(context.Background(), s.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	assert.Contains(t, string(resp.Body), `href="/x"`)
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		var calls int32
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(status)
				return
			}
			fmt.Fprint(w, "ok")
		}))

		req := NewRequester(time.Second, zap.NewExample(), nil, WithRetry(3, time.Millisecond))
		resp, err := req.Fetch(context.Background(), s.URL)
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, "ok", string(resp.Body))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		s.Close()
	}
}

func TestFetchGivesUpAfterThreeAttempts(t *testing.T) {
	var calls int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer s.Close()

	req := NewRequester(time.Second, zap.NewExample(), nil, WithRetry(DefaultAttempts, time.Millisecond))
	_, err := req.Fetch(context.Background(), s.URL)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, 3, fe.Attempts)
	assert.True(t, fe.Temporary())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer s.Close()

	req := NewRequester(time.Second, zap.NewExample(), nil, WithRetry(3, time.Millisecond))
	_, err := req.Fetch(context.Background(), s.URL+"/missing")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, 1, fe.Attempts)
	assert.False(t, fe.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchTimeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer s.Close()

	req := NewRequester(30*time.Millisecond, zap.NewExample(), nil, WithRetry(1, 0))
	_, err := req.Fetch(context.Background(), s.URL)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Timeout())
}

func TestFetchTransportError(t *testing.T) {
	var calls int32
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset by peer")
	})
	req := NewRequester(time.Second, zap.NewExample(), rt, WithRetry(3, time.Millisecond))
	_, err := req.Fetch(context.Background(), "http://example.test/")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Error(), "connection reset by peer")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchCancelledStopsRetrying(t *testing.T) {
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       http.NoBody,
			Header:     http.Header{},
		}, nil
	})
	req := NewRequester(time.Second, zap.NewExample(), rt, WithRetry(3, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := req.Fetch(ctx, "http://example.test/")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchLimitsBody(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 1000))
	}))
	defer s.Close()

	req := NewRequester(time.Second, zap.NewExample(), nil, WithMaxBodySize(100))
	resp, err := req.Fetch(context.Background(), s.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 100)
}
