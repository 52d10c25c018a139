package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	resp    *helperResponse
	err     error
	lastReq helperRequest
}

func (s *stubRunner) run(ctx context.Context, req helperRequest) (*helperResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func testConfig() config.LedgerConfig {
	return config.LedgerConfig{
		GatewayURL: "https://devnet.irys.xyz",
		Network:    "devnet",
		AppName:    "IrysReflex",
		Timeout:    5 * time.Second,
	}
}

func newTestClient(t *testing.T, cfg config.LedgerConfig, r runner) *Client {
	t.Helper()
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	c.runner = r
	return c
}

func TestUploadSuccess(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{
		Success: true,
		TxID:    "abc123",
	}}
	c := newTestClient(t, testConfig(), stub)

	res, tags, err := c.Upload(context.Background(), "alice", []byte(`{"time":200}`), nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Verified)
	assert.Equal(t, "abc123", res.TxID)
	assert.Equal(t, "https://devnet.irys.xyz/abc123", res.GatewayURL)
	assert.Equal(t, "devnet", res.Network)

	assert.Equal(t, "upload", stub.lastReq.Action)
	require.NotEmpty(t, tags)
	assert.Equal(t, domain.Tag{Name: "App-Name", Value: "IrysReflex"}, tags[0])
	assert.Equal(t, domain.Tag{Name: "Content-Type", Value: "application/json"}, tags[1])
}

func TestUploadIncludesCallerTags(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: true, TxID: "tx"}}
	c := newTestClient(t, testConfig(), stub)

	_, tags, err := c.Upload(context.Background(), "alice", []byte(`{}`),
		[]domain.Tag{{Name: "Type", Value: "achievement"}})

	require.NoError(t, err)
	assert.Equal(t, domain.Tag{Name: "Type", Value: "achievement"}, tags[len(tags)-1])
}

func TestUploadHelperErrorFallsBack(t *testing.T) {
	stub := &stubRunner{err: errors.New("node not found")}
	c := newTestClient(t, testConfig(), stub)

	res, _, err := c.Upload(context.Background(), "alice", []byte(`{"time":200}`), nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Verified)
	assert.True(t, strings.HasPrefix(res.TxID, "local-"))
	assert.NotEmpty(t, res.Error)
}

func TestUploadRejectionFallsBack(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: false, Error: "network timeout"}}
	c := newTestClient(t, testConfig(), stub)

	res, _, err := c.Upload(context.Background(), "alice", []byte(`{}`), nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.TxID, "local-"))
}

func TestUploadInsufficientBalance(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: false, Error: "Insufficient balance for upload"}}
	c := newTestClient(t, testConfig(), stub)

	res, _, err := c.Upload(context.Background(), "alice", []byte(`{}`), nil)

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.TxID, "local-"))
}

func TestFallbackTxIDDeterministic(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	payload := []byte(`{"player":"alice"}`)

	a := FallbackTxID(payload, ts)
	b := FallbackTxID(payload, ts)
	c := FallbackTxID(payload, ts.Add(time.Millisecond))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "local-"))
	assert.Len(t, a, len("local-")+40)
}

func TestSignAndPublicKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	cfg := testConfig()
	cfg.PrivateKey = hex.EncodeToString(seed)

	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	require.True(t, c.Configured())

	message := []byte("prove it")
	sigHex, err := c.Sign(message)
	require.NoError(t, err)

	pubHex, address, err := c.PublicKey()
	require.NoError(t, err)
	assert.Len(t, address, 40)

	pub, err := hex.DecodeString(pubHex)
	require.NoError(t, err)
	sig, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), message, sig))
}

func TestSignWithoutKey(t *testing.T) {
	c, err := NewClient(testConfig(), testLogger())
	require.NoError(t, err)
	assert.False(t, c.Configured())

	_, err = c.Sign([]byte("x"))
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	_, _, err = c.PublicKey()
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestNewClientRejectsBadKey(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateKey = "not-hex"
	_, err := NewClient(cfg, testLogger())
	assert.Error(t, err)

	cfg.PrivateKey = "abcd"
	_, err = NewClient(cfg, testLogger())
	assert.Error(t, err)
}

func TestVerifyFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.GatewayURL = server.URL
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)

	verified, err := c.Verify(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestVerifyNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.GatewayURL = server.URL
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)

	verified, err := c.Verify(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestVerifyNetworkError(t *testing.T) {
	cfg := testConfig()
	cfg.GatewayURL = "http://127.0.0.1:1"
	cfg.Timeout = time.Second
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)

	verified, err := c.Verify(context.Background(), "tx")
	assert.False(t, verified)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestGatewayURLJoinsCleanly(t *testing.T) {
	cfg := testConfig()
	cfg.GatewayURL = "https://devnet.irys.xyz/"
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://devnet.irys.xyz/tx-9", c.GatewayURL("tx-9"))
}

func TestBalance(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: true, Balance: "1000", Message: "ok"}}
	c := newTestClient(t, testConfig(), stub)

	info, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000", info.Balance)
	assert.Equal(t, "devnet", info.Network)
	assert.Equal(t, "balance", stub.lastReq.Action)
}

func TestBalanceHelperDown(t *testing.T) {
	stub := &stubRunner{err: errors.New("no node")}
	c := newTestClient(t, testConfig(), stub)

	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestFundInsufficientBalance(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: false, Error: "insufficient funds in wallet"}}
	c := newTestClient(t, testConfig(), stub)

	_, err := c.Fund(context.Background(), "0.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestPrice(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: true, Price: "42"}}
	c := newTestClient(t, testConfig(), stub)

	info, err := c.Price(context.Background(), 2048)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), info.Bytes)
	assert.Equal(t, "42", info.Price)
	assert.Equal(t, int64(2048), stub.lastReq.Bytes)
}

func TestNetworkInfoBestEffortAddress(t *testing.T) {
	stub := &stubRunner{resp: &helperResponse{Success: true, Address: "0xabc"}}
	c := newTestClient(t, testConfig(), stub)

	info := c.NetworkInfo(context.Background())
	assert.Equal(t, "devnet", info.Network)
	assert.Equal(t, "IrysReflex", info.AppName)
	assert.Equal(t, "0xabc", info.Address)

	down := &stubRunner{err: errors.New("no node")}
	c = newTestClient(t, testConfig(), down)

	info = c.NetworkInfo(context.Background())
	assert.Empty(t, info.Address)
	assert.Equal(t, "devnet", info.Network)
}
