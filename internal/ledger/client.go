// Package ledger wraps the external permanent-storage network. Uploads
// go through a Node helper process spoken to over stdin/stdout JSON;
// verification hits the public gateway directly. The network is an
// enhancement, not a dependency of record: every failure path resolves
// to a locally-derived fallback transaction id instead of an error, so
// gameplay is never blocked on ledger availability.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
)

// helperRequest is the JSON envelope written to the helper's stdin.
type helperRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	Tags   []domain.Tag    `json:"tags,omitempty"`
	Amount string          `json:"amount,omitempty"`
	Bytes  int64           `json:"bytes,omitempty"`
}

// helperResponse is the JSON envelope read back from the helper's
// stdout. The helper logs progress lines before the final JSON object,
// so only the last parseable line counts.
type helperResponse struct {
	Success    bool   `json:"success"`
	TxID       string `json:"tx_id"`
	GatewayURL string `json:"gateway_url"`
	Network    string `json:"network"`
	Verified   bool   `json:"verified"`
	Balance    any    `json:"balance"`
	Address    string `json:"address"`
	Price      any    `json:"price"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// runner abstracts the helper subprocess so tests can stub it.
type runner interface {
	run(ctx context.Context, req helperRequest) (*helperResponse, error)
}

type execRunner struct {
	node   string
	script string
}

func (r *execRunner) run(ctx context.Context, req helperRequest) (*helperResponse, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling helper request: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.node, r.script)
	cmd.Stdin = bytes.NewReader(input)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running ledger helper: %w", err)
	}

	// The final line of output is the response; everything before it is
	// helper logging.
	var resp *helperResponse
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var candidate helperResponse
		if err := json.Unmarshal([]byte(line), &candidate); err == nil {
			c := candidate
			resp = &c
		}
	}
	if resp == nil {
		return nil, fmt.Errorf("ledger helper produced no response")
	}
	return resp, nil
}

// Client talks to the ledger network. Construct once at startup and
// inject; there is no ambient global state.
type Client struct {
	cfg    config.LedgerConfig
	logger *slog.Logger
	runner runner
	http   *http.Client
	priv   ed25519.PrivateKey
}

// NewClient creates a ledger client. A missing private key is not an
// error; signing endpoints report not-configured at call time while
// uploads and verification keep working.
func NewClient(cfg config.LedgerConfig, logger *slog.Logger) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		runner: &execRunner{node: cfg.NodeBinary, script: cfg.HelperPath},
		http:   &http.Client{Timeout: cfg.Timeout},
	}

	if cfg.PrivateKey != "" {
		raw, err := hex.DecodeString(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("decoding ledger private key: %w", err)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			c.priv = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			c.priv = ed25519.PrivateKey(raw)
		default:
			return nil, fmt.Errorf("ledger private key must be %d or %d bytes, got %d",
				ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
		}
	}

	return c, nil
}

// Configured reports whether a signing key is present.
func (c *Client) Configured() bool {
	return c.priv != nil
}

// Sign signs a message with the configured key and returns a
// hex-encoded signature.
func (c *Client) Sign(message []byte) (string, error) {
	if c.priv == nil {
		return "", domain.ErrNotConfigured
	}
	sig := ed25519.Sign(c.priv, message)
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the hex public key and the derived address (first
// 20 bytes of SHA-256 of the public key).
func (c *Client) PublicKey() (string, string, error) {
	if c.priv == nil {
		return "", "", domain.ErrNotConfigured
	}
	pub := c.priv.Public().(ed25519.PublicKey)
	h := sha256.Sum256(pub)
	return hex.EncodeToString(pub), hex.EncodeToString(h[:20]), nil
}

// Upload sends a payload to the network with the standard tag set plus
// caller tags. A single attempt either confirms a real transaction id
// or falls back to a deterministic local one; retries are the caller's
// business. The returned error is nil for ordinary failures (the result
// carries the fallback) and domain.ErrInsufficientBalance when the
// account cannot pay, so that condition stays distinguishable. The full
// tag set is returned for auditing.
func (c *Client) Upload(ctx context.Context, player string, payload []byte, tags []domain.Tag) (domain.UploadResult, []domain.Tag, error) {
	now := time.Now()
	allTags := append([]domain.Tag{
		{Name: "App-Name", Value: c.cfg.AppName},
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Timestamp", Value: strconv.FormatInt(now.UnixMilli(), 10)},
		{Name: "Player", Value: player},
	}, tags...)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.runner.run(ctx, helperRequest{
		Action: "upload",
		Data:   json.RawMessage(payload),
		Tags:   allTags,
	})
	if err != nil {
		c.logger.Warn("ledger upload failed, using fallback tx id", "error", err)
		return c.fallbackResult(payload, now, err.Error()), allTags, nil
	}
	if !resp.Success {
		c.logger.Warn("ledger helper rejected upload", "error", resp.Error)
		res := c.fallbackResult(payload, now, resp.Error)
		if isInsufficientBalance(resp.Error) {
			return res, allTags, domain.ErrInsufficientBalance
		}
		return res, allTags, nil
	}

	return domain.UploadResult{
		TxID:       resp.TxID,
		GatewayURL: c.GatewayURL(resp.TxID),
		Network:    c.cfg.Network,
		Success:    true,
		Verified:   true,
	}, allTags, nil
}

func (c *Client) fallbackResult(payload []byte, ts time.Time, errMsg string) domain.UploadResult {
	txID := FallbackTxID(payload, ts)
	return domain.UploadResult{
		TxID:     txID,
		Network:  c.cfg.Network,
		Success:  false,
		Verified: false,
		Error:    errMsg,
	}
}

// FallbackTxID derives a deterministic local transaction id from the
// payload content and attempt time.
func FallbackTxID(payload []byte, ts time.Time) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(strconv.FormatInt(ts.UnixMilli(), 10)))
	return "local-" + hex.EncodeToString(h.Sum(nil))[:40]
}

func isInsufficientBalance(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "insufficient")
}

// Verify checks the gateway for the existence of a transaction. Any
// non-2xx response or network error yields verified=false; verification
// is best-effort and never fatal.
func (c *Client) Verify(ctx context.Context, txID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayURL(txID), nil)
	if err != nil {
		return false, fmt.Errorf("building verify request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// GatewayURL returns the public URL for a transaction.
func (c *Client) GatewayURL(txID string) string {
	return strings.TrimRight(c.cfg.GatewayURL, "/") + "/" + txID
}

// Balance queries the helper for the upload account balance.
func (c *Client) Balance(ctx context.Context) (domain.BalanceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.runner.run(ctx, helperRequest{Action: "balance"})
	if err != nil {
		return domain.BalanceInfo{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if !resp.Success {
		return domain.BalanceInfo{}, fmt.Errorf("%w: %s", domain.ErrLedgerUnavailable, resp.Error)
	}
	return domain.BalanceInfo{
		Balance: fmt.Sprint(resp.Balance),
		Network: c.cfg.Network,
		Message: resp.Message,
	}, nil
}

// Fund tops up the upload account.
func (c *Client) Fund(ctx context.Context, amount string) (domain.FundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.runner.run(ctx, helperRequest{Action: "fund", Amount: amount})
	if err != nil {
		return domain.FundResult{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if !resp.Success {
		if isInsufficientBalance(resp.Error) {
			return domain.FundResult{}, domain.ErrInsufficientBalance
		}
		return domain.FundResult{}, fmt.Errorf("%w: %s", domain.ErrLedgerUnavailable, resp.Error)
	}
	return domain.FundResult{
		Amount:  amount,
		TxID:    resp.TxID,
		Network: c.cfg.Network,
	}, nil
}

// Price returns the upload cost for a payload of the given size.
func (c *Client) Price(ctx context.Context, size int64) (domain.PriceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.runner.run(ctx, helperRequest{Action: "price", Bytes: size})
	if err != nil {
		return domain.PriceInfo{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if !resp.Success {
		return domain.PriceInfo{}, fmt.Errorf("%w: %s", domain.ErrLedgerUnavailable, resp.Error)
	}
	return domain.PriceInfo{
		Bytes:   size,
		Price:   fmt.Sprint(resp.Price),
		Network: c.cfg.Network,
	}, nil
}

// NetworkInfo describes the configured network. The account address is
// filled in best-effort from the helper.
func (c *Client) NetworkInfo(ctx context.Context) domain.NetworkInfo {
	info := domain.NetworkInfo{
		Network:    c.cfg.Network,
		GatewayURL: c.cfg.GatewayURL,
		AppName:    c.cfg.AppName,
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if resp, err := c.runner.run(ctx, helperRequest{Action: "address"}); err == nil && resp.Success {
		info.Address = resp.Address
	}
	return info
}
