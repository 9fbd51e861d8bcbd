package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdm-labs/chatdesk/src/chatapi"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:    "sk-test",
		BaseURL:   baseURL,
		Model:     "gpt-4",
		VerifySSL: true,
	})
}

func streamEvents(w http.ResponseWriter, fragments ...string) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range fragments {
		payload, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": f}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func collect(t *testing.T, stream chatapi.StreamInterface) (string, error) {
	t.Helper()
	defer stream.Close()
	var out string
	for {
		chunk, err := stream.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		require.NoError(t, err)
		if chunk.Err != nil {
			return out, chunk.Err
		}
		if chunk.Done {
			return out, nil
		}
		out += chunk.Content
	}
}

func TestCreateChatCompletionStream(t *testing.T) {
	var gotAuth, gotAccept string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		streamEvents(w, "Hello", " world")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	stream, err := client.CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0.7, nil)
	require.NoError(t, err)

	out, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, true, gotPayload["stream"])
	assert.Equal(t, "gpt-4", gotPayload["model"])
	assert.InDelta(t, 0.7, gotPayload["temperature"].(float64), 1e-9)
}

func TestStreamSkipsMalformedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": comment line\n\n")
		payload, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": "ok"}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	stream, err := newTestClient(srv.URL).CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.NoError(t, err)

	out, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestStreamMidStreamAbortYieldsErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Length", "1000000")
		payload, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": "partial"}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		// Drop the connection before the advertised body is complete.
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	stream, err := newTestClient(srv.URL).CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Read()
	require.NoError(t, err)
	assert.Equal(t, "partial", chunk.Content)

	// The interruption arrives as a final error chunk, not a bare read error.
	for {
		chunk, err = stream.Read()
		if err != nil {
			t.Fatalf("expected error chunk before EOF, got read error %v", err)
		}
		if chunk.Err != nil {
			assert.Contains(t, chunk.Err.Error(), "stream interrupted")
			break
		}
	}

	_, err = stream.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamCloseUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	stream, err := newTestClient(srv.URL).CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Read()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stream.Close())

	select {
	case err := <-done:
		// A close-aborted read is EOF, not a transport failure.
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestErrorResponseMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_api_key", apiErr.Code)
	assert.True(t, apiErr.IsAuthError())
	assert.False(t, apiErr.IsRetryable())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "check your API key", apiErr.Suggestion())
}

func TestRateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).TestConnection(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsRateLimit())
	assert.True(t, apiErr.IsRetryable())
}

func TestConnectionRefusedWrapsConnectionError(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "cannot reach")
}

func TestVerifySSLDisabledAcceptsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		streamEvents(w, "secure")
	}))
	defer srv.Close()

	// With verification on, the self-signed certificate is rejected.
	strict := newTestClient(srv.URL)
	_, err := strict.CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)

	// With verification off, the exchange proceeds.
	lax := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, VerifySSL: false})
	stream, err := lax.CreateChatCompletionStream(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	require.NoError(t, err)
	out, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "secure", out)
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Nil(t, payload["stream"])
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "Short Title"}}]}`)
	}))
	defer srv.Close()

	maxTokens := 30
	out, err := newTestClient(srv.URL).Complete(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "summarize"}}, 0.3, &maxTokens)
	require.NoError(t, err)
	assert.Equal(t, "Short Title", out)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(),
		[]chatapi.Message{{Role: chatapi.RoleUser, Content: "hi"}}, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSetModel(t *testing.T) {
	client := newTestClient("http://localhost")
	assert.Equal(t, "gpt-4", client.Model())
	client.SetModel("gpt-4o")
	assert.Equal(t, "gpt-4o", client.Model())
}
