// Package apiclient implements the HTTP client for a chat-completion endpoint,
// including the SSE reader for streaming responses.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/bdm-labs/chatdesk/src/chatapi"
)

// Client is the chat-completion API client.
type Client struct {
	config     Config
	httpClient *http.Client
	// streamClient has no overall timeout so long generations are not cut off
	// mid-stream. Cancellation happens through the request context.
	streamClient *http.Client
	logger       *slog.Logger

	mu    sync.RWMutex
	model string
}

// NewClient creates a new chat-completion client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: config.ConnectTimeout,
	}
	if !config.VerifySSL {
		// Verbatim pass-through of the configured trust decision. Required
		// for enterprise endpoints with self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api_client")

	logger.Debug("client initialized", "base_url", config.BaseURL, "verify_ssl", config.VerifySSL)

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		logger:       logger,
		model:        config.Model,
	}
}

// Model returns the model identifier currently in use.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel swaps the model identifier without reconnecting.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	c.logger.Debug("model changed", "model", model)
}

// TestConnection issues a minimal request against the endpoint. All failures
// are converted to a descriptive error value; nothing escapes this boundary
// untranslated.
func (c *Client) TestConnection(ctx context.Context) error {
	maxTokens := 5
	req := &chatCompletionPayload{
		Model:     c.Model(),
		Messages:  []chatapi.Message{{Role: chatapi.RoleUser, Content: "test"}},
		MaxTokens: &maxTokens,
	}

	c.logger.Debug("testing connection", "base_url", c.config.BaseURL)

	resp, err := c.do(ctx, c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleError(resp)
	}

	c.logger.Debug("connection test succeeded")
	return nil
}

// CreateChatCompletionStream opens a streaming exchange for the given history.
// The returned stream is finite and not restartable; each call opens a new
// transport-level connection.
func (c *Client) CreateChatCompletionStream(ctx context.Context, history []chatapi.Message, temperature float64, maxTokens *int) (chatapi.StreamInterface, error) {
	req := &chatCompletionPayload{
		Model:       c.Model(),
		Messages:    history,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}

	logger := c.logger.With("method", "CreateChatCompletionStream", "model", req.Model)
	logger.Debug("opening stream", "messages", len(history))

	resp, err := c.do(ctx, c.streamClient, req)
	if err != nil {
		logger.Error("stream request failed", "error", err)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := c.handleError(resp)
		logger.Error("stream rejected", "status_code", resp.StatusCode, "error", err)
		return nil, err
	}

	return newSSEStream(resp.Body, logger), nil
}

// Complete performs a non-streaming exchange and returns the assistant text.
// Used by auxiliary tasks such as title inference.
func (c *Client) Complete(ctx context.Context, history []chatapi.Message, temperature float64, maxTokens *int) (string, error) {
	req := &chatCompletionPayload{
		Model:       c.Model(),
		Messages:    history,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	}

	logger := c.logger.With("method", "Complete", "model", req.Model)
	logger.Debug("sending completion request", "messages", len(history))

	resp, err := c.do(ctx, c.httpClient, req)
	if err != nil {
		logger.Error("request failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := c.handleError(resp)
		logger.Error("received error response", "status_code", resp.StatusCode)
		return "", err
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	logger.Debug("completion received", "chars", len(result.Choices[0].Message.Content))
	return result.Choices[0].Message.Content, nil
}

// do marshals and sends one chat-completion request. Transport-level failures
// come back as *ConnectionError.
func (c *Client) do(ctx context.Context, httpClient *http.Client, payload *chatCompletionPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Endpoint: c.config.BaseURL, Err: err}
	}
	return resp, nil
}

// handleError converts a non-200 response into an *APIError.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
		Code:       errResp.Error.Code,
	}
}

type chatCompletionPayload struct {
	Model       string            `json:"model"`
	Messages    []chatapi.Message `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
