package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/games"
	"github.com/dragonbet/casino/internal/wallet"
)

const (
	testJWTSecret      = "test-signing-secret"
	testIntegrationKey = "test-integration-key"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := testLogger()
	ledger, err := wallet.NewLedger(wallet.Config{
		DefaultCurrency: "USDT",
		StartingBalance: decimal.NewFromInt(1000),
	}, nil, logger)
	require.NoError(t, err)
	seeds := fair.NewStore(nil, logger)
	svc := games.NewService(games.Config{}, ledger, seeds, logger)

	s := NewServer("127.0.0.1:0", testJWTSecret, testIntegrationKey, Deps{
		Ledger: ledger,
		Seeds:  seeds,
		Games:  svc,
	}, logger)

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, headers map[string]string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func integrationHeaders() map[string]string {
	return map[string]string{"X-Integration-Key": testIntegrationKey}
}

func TestIntegrationRejectsBadKey(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/integration/transaction", nil,
		transactionRequest{IdempotencyKey: "k1", Player: "p", Amount: decimal.NewFromInt(1), Kind: "DEPOSIT"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/integration/transaction",
		map[string]string{"X-Integration-Key": "wrong"},
		transactionRequest{IdempotencyKey: "k1", Player: "p", Amount: decimal.NewFromInt(1), Kind: "DEPOSIT"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegrationDepositIsIdempotent(t *testing.T) {
	_, ts := newTestServer(t)
	req := transactionRequest{
		IdempotencyKey: "dep-1",
		Player:         "alice",
		Amount:         decimal.NewFromInt(500),
		Kind:           "DEPOSIT",
		RoundRef:       "external-99",
	}

	var first transactionResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/integration/transaction", integrationHeaders(), req, &first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", first.Status)
	assert.False(t, first.Replayed)
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(1500)))

	// Redelivery of the same callback must not credit twice.
	var second transactionResponse
	resp = doJSON(t, http.MethodPost, ts.URL+"/integration/transaction", integrationHeaders(), req, &second)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, second.Replayed)
	assert.True(t, second.Balance.Equal(decimal.NewFromInt(1500)))
}

func TestIntegrationWithdrawalRefusedOnInsufficientFunds(t *testing.T) {
	_, ts := newTestServer(t)

	var out transactionResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/integration/transaction", integrationHeaders(),
		transactionRequest{IdempotencyKey: "wd-1", Player: "bob", Amount: decimal.NewFromInt(5000), Kind: "WITHDRAWAL"}, &out)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "ERROR", out.Status)
}

func TestIntegrationBalance(t *testing.T) {
	_, ts := newTestServer(t)

	var out balanceResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/integration/balance?player=carol", integrationHeaders(), nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Balance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, out.Locked.IsZero())
}

func TestIntegrationRollback(t *testing.T) {
	_, ts := newTestServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/integration/transaction", integrationHeaders(),
		transactionRequest{IdempotencyKey: "dep-rb", Player: "dave", Amount: decimal.NewFromInt(200), Kind: "DEPOSIT"}, nil)

	resp := doJSON(t, http.MethodPost, ts.URL+"/integration/rollback", integrationHeaders(),
		rollbackRequest{IdempotencyKey: "dep-rb"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A retried rollback is a replay, not a second reversal.
	resp = doJSON(t, http.MethodPost, ts.URL+"/integration/rollback", integrationHeaders(),
		rollbackRequest{IdempotencyKey: "dep-rb"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var balance balanceResponse
	doJSON(t, http.MethodGet, ts.URL+"/integration/balance?player=dave", integrationHeaders(), nil, &balance)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(1000)))

	resp = doJSON(t, http.MethodPost, ts.URL+"/integration/rollback", integrationHeaders(),
		rollbackRequest{IdempotencyKey: "never-seen"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFairCommitRotateVerifyRoundtrip(t *testing.T) {
	_, ts := newTestServer(t)

	var commitment fair.Commitment
	resp := doJSON(t, http.MethodGet, ts.URL+"/fair/commit?player=auditor", nil, nil, &commitment)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, commitment.PublicHash)
	assert.Zero(t, commitment.Nonce)

	resp = doJSON(t, http.MethodPost, ts.URL+"/fair/client-seed", nil,
		clientSeedRequest{Player: "auditor", ClientSeed: "my-lucky-charm"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reveal fair.Reveal
	resp = doJSON(t, http.MethodPost, ts.URL+"/fair/rotate", nil, playerRequest{Player: "auditor"}, &reveal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, commitment.PublicHash, reveal.PreviousHash)
	require.NotEmpty(t, reveal.PreviousSecret)
	assert.NotEqual(t, commitment.PublicHash, reveal.NewPublicHash)

	var verified fair.VerifyResult
	resp = doJSON(t, http.MethodPost, ts.URL+"/fair/verify", nil, verifyRequest{
		SecretSeed: reveal.PreviousSecret,
		ClientSeed: "my-lucky-charm",
		Nonce:      0,
		GameKind:   fair.KindCrash,
	}, &verified)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, commitment.PublicHash, verified.PublicHash)
	assert.GreaterOrEqual(t, verified.Outcome.Multiplier, 1.00)
}

func TestFairVerifyRejectsUnknownKind(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/fair/verify", nil, map[string]interface{}{
		"secretSeed": "s",
		"gameKind":   "roulette",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGamesPlayRequiresBearerToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/games/play", nil,
		games.PlayRequest{Kind: fair.KindLimbo, Amount: decimal.NewFromInt(10), Target: 2}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGamesPlaySettlesWager(t *testing.T) {
	s, ts := newTestServer(t)

	token, err := s.auth.IssueToken("eve", time.Minute)
	require.NoError(t, err)

	var result games.PlayResult
	resp := doJSON(t, http.MethodPost, ts.URL+"/games/play",
		map[string]string{"Authorization": "Bearer " + token},
		games.PlayRequest{Player: "ignored-impostor", Kind: fair.KindDice, Amount: decimal.NewFromInt(10), Target: 50}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, fair.KindDice, result.Kind)
	assert.Equal(t, uint64(0), result.Nonce)
	assert.NotEmpty(t, result.PublicHash)
	// The body's player field must have been ignored in favor of the session.
	var balance balanceResponse
	doJSON(t, http.MethodGet, ts.URL+"/integration/balance?player=eve", integrationHeaders(), nil, &balance)
	assert.True(t, balance.Balance.Equal(result.NewBalance))
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
