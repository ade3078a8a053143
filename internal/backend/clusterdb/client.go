// Package clusterdb implements the storage backend against a remote cluster
// over JSON-RPC, with retry and backoff on transient failures.
package clusterdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

func init() {
	backend.Register(config.BackendCluster, func(cfg config.DatabaseConfig) (backend.Backend, error) {
		c := NewClient(DefaultClientConfig(cfg.URL))
		c.database = cfg.Name
		return c, nil
	})
}

// JSON-RPC error codes the cluster admin API reserves for backend outcomes.
const (
	codeDatabaseExists         = -32050
	codeReplicaSetsUnsupported = -32051
)

// jsonRPCRequest represents a JSON-RPC request.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// jsonRPCResponse represents a JSON-RPC response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is an application-level error returned by the cluster. It is
// never retried.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// HTTPStatusError represents a non-2xx HTTP response.
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s (body: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true if this HTTP error should be retried.
func (e *HTTPStatusError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode == 502 ||
		e.StatusCode == 503 || e.StatusCode == 504
}

// ClientConfig holds configuration for the cluster client.
type ClientConfig struct {
	URL            string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// DefaultClientConfig returns default configuration for a cluster URL.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Client implements backend.Backend over HTTP JSON-RPC.
type Client struct {
	url        string
	database   string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewClient creates a cluster client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		logger:     logger,
	}
}

// Call makes a JSON-RPC call with retry on transient failures.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := jsonRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
		}

		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if httpErr, ok := err.(*HTTPStatusError); ok {
			if !httpErr.IsRetryable() {
				return nil, err
			}
			if httpErr.RetryAfter > 0 {
				backoff = httpErr.RetryAfter
			}
			c.logger.Debug("cluster call got retryable HTTP error",
				slog.String("method", method),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Application-level errors are final.
		if _, ok := err.(*RPCError); ok {
			return nil, err
		}

		c.logger.Debug("cluster call failed, retrying",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("all retries failed: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(errBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	return rpcResp.Result, nil
}

// mapAdminError translates cluster RPC error codes onto the backend taxonomy.
func mapAdminError(op string, err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*RPCError); ok {
		switch rpcErr.Code {
		case codeDatabaseExists:
			return backend.ErrDatabaseExists
		case codeReplicaSetsUnsupported:
			return backend.ErrReplicaSetsUnsupported
		default:
			return &backend.OperationError{Op: op, Reason: rpcErr.Message}
		}
	}
	return err
}

// InitDatabase creates the database structures on the cluster.
func (c *Client) InitDatabase(ctx context.Context) error {
	_, err := c.Call(ctx, "admin_initDatabase", []any{c.database})
	return mapAdminError("init", err)
}

// DropDatabase drops the database on the cluster.
func (c *Client) DropDatabase(ctx context.Context) error {
	_, err := c.Call(ctx, "admin_dropDatabase", []any{c.database})
	return mapAdminError("drop", err)
}

// CreateGenesis stores the genesis record on the cluster.
func (c *Client) CreateGenesis(ctx context.Context, tx *transaction.Transaction) error {
	_, err := c.Call(ctx, "db_createGenesis", []any{c.database, tx})
	err = mapAdminError("genesis", err)
	// A concurrent initializer winning the genesis race is not an error.
	if errors.Is(err, backend.ErrDatabaseExists) {
		return nil
	}
	return err
}

// GenesisExists reports whether the cluster holds a genesis record.
func (c *Client) GenesisExists(ctx context.Context) (bool, error) {
	result, err := c.Call(ctx, "db_genesisExists", []any{c.database})
	if err != nil {
		return false, mapAdminError("genesis", err)
	}
	var exists bool
	if err := json.Unmarshal(result, &exists); err != nil {
		return false, fmt.Errorf("failed to unmarshal genesis state: %w", err)
	}
	return exists, nil
}

// WriteTransaction enqueues a signed transaction into the cluster backlog.
func (c *Client) WriteTransaction(ctx context.Context, tx *transaction.Transaction) error {
	_, err := c.Call(ctx, "tx_pushTransaction", []any{c.database, tx})
	return mapAdminError("write", err)
}

// CountBacklog returns the cluster backlog depth.
func (c *Client) CountBacklog(ctx context.Context) (int64, error) {
	result, err := c.Call(ctx, "tx_backlogCount", []any{c.database})
	if err != nil {
		return 0, mapAdminError("backlog", err)
	}
	var n int64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, fmt.Errorf("failed to unmarshal backlog count: %w", err)
	}
	return n, nil
}

// SetShards asks the cluster to redistribute data across n shards.
func (c *Client) SetShards(ctx context.Context, n int) error {
	_, err := c.Call(ctx, "admin_setShards", []any{n})
	return mapAdminError("set-shards", err)
}

// SetReplicas sets the cluster replication factor.
func (c *Client) SetReplicas(ctx context.Context, n int) error {
	_, err := c.Call(ctx, "admin_setReplicas", []any{n})
	return mapAdminError("set-replicas", err)
}

// AddReplicas adds members to the cluster replica set.
func (c *Client) AddReplicas(ctx context.Context, hosts []string) error {
	_, err := c.Call(ctx, "admin_addReplicas", []any{hosts})
	return mapAdminError("add-replicas", err)
}

// RemoveReplicas removes members from the cluster replica set.
func (c *Client) RemoveReplicas(ctx context.Context, hosts []string) error {
	_, err := c.Call(ctx, "admin_removeReplicas", []any{hosts})
	return mapAdminError("remove-replicas", err)
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (c *Client) Close() error {
	return nil
}
