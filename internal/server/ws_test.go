package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonbet/casino/internal/crash"
	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/wallet"
)

func newWSServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()
	logger := testLogger()
	ledger, err := wallet.NewLedger(wallet.Config{
		DefaultCurrency: "USDT",
		StartingBalance: decimal.NewFromInt(1000),
	}, nil, logger)
	require.NoError(t, err)

	s := NewServer("127.0.0.1:0", testJWTSecret, testIntegrationKey, Deps{
		Ledger: ledger,
		Seeds:  fair.NewStore(nil, logger),
	}, logger)

	mgr := crash.NewManager(crash.Config{
		Tracks:       2,
		Countdown:    5 * time.Second, // long enough that the test stays in WAITING
		TickInterval: 10 * time.Millisecond,
		CrashPause:   50 * time.Millisecond,
		MinBet:       decimal.NewFromInt(1),
		MaxBet:       decimal.NewFromInt(1000),
	}, ledger, nil, NewBridge(s, logger), logger)
	s.SetManager(mgr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = mgr.Run(ctx) }()
	t.Cleanup(cancel)

	go s.run()

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn
}

func sendWS(t *testing.T, conn *websocket.Conn, mt MessageType, data interface{}) {
	t.Helper()
	msg, err := NewMessage(mt, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readWS reads messages until one of the wanted type arrives, skipping
// round broadcasts that interleave with unicast replies.
func readWS(t *testing.T, conn *websocket.Conn, want MessageType) Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocketSessionFlow(t *testing.T) {
	s, conn := newWSServer(t)

	// get_state is allowed before auth.
	sendWS(t, conn, MessageTypeGetState, struct{}{})
	stateMsg := readWS(t, conn, MessageTypeState)
	var snap crash.Snapshot
	require.NoError(t, json.Unmarshal(stateMsg.Data, &snap))
	assert.Equal(t, crash.StateWaiting, snap.State)
	assert.Len(t, snap.Tracks, 2)

	// Betting requires a session.
	sendWS(t, conn, MessageTypePlaceBet, PlaceBetData{Amount: decimal.NewFromInt(10), Track: 0})
	errMsg := readWS(t, conn, MessageTypeError)
	var errData ErrorData
	require.NoError(t, json.Unmarshal(errMsg.Data, &errData))
	assert.Equal(t, "not_authenticated", errData.Code)

	// A bad token is refused.
	sendWS(t, conn, MessageTypeAuth, AuthData{Token: "bogus"})
	authMsg := readWS(t, conn, MessageTypeAuthResponse)
	var authData AuthResponseData
	require.NoError(t, json.Unmarshal(authMsg.Data, &authData))
	assert.False(t, authData.Success)

	// A real one is accepted and the subject becomes the player.
	token, err := s.auth.IssueToken("alice", time.Minute)
	require.NoError(t, err)
	sendWS(t, conn, MessageTypeAuth, AuthData{Token: token})
	authMsg = readWS(t, conn, MessageTypeAuthResponse)
	require.NoError(t, json.Unmarshal(authMsg.Data, &authData))
	require.True(t, authData.Success)
	assert.Equal(t, "alice", authData.PlayerID)

	// Join subscribes to broadcasts and returns the live snapshot.
	sendWS(t, conn, MessageTypeJoin, JoinData{})
	joinedMsg := readWS(t, conn, MessageTypeJoined)
	var joined JoinedData
	require.NoError(t, json.Unmarshal(joinedMsg.Data, &joined))
	assert.Equal(t, "alice", joined.Player)

	// Bet during the countdown: accepted, confirmed, balance updated. The
	// balance unicast is enqueued before the bet result reply, so read it
	// first.
	sendWS(t, conn, MessageTypePlaceBet, PlaceBetData{Amount: decimal.NewFromInt(100), Track: 0})
	balanceMsg := readWS(t, conn, MessageTypeBalanceUpdate)
	var balance BalanceUpdateData
	require.NoError(t, json.Unmarshal(balanceMsg.Data, &balance))
	assert.True(t, balance.NewBalance.Equal(decimal.NewFromInt(900)))

	betMsg := readWS(t, conn, MessageTypeBetResult)
	var betResult BetResultData
	require.NoError(t, json.Unmarshal(betMsg.Data, &betResult))
	require.True(t, betResult.Success, "bet rejected: %s", betResult.Error)
	assert.Equal(t, crash.BetActive, betResult.Bet.Status)

	// Second bet on the same dragon bounces with the stable reason string.
	sendWS(t, conn, MessageTypePlaceBet, PlaceBetData{Amount: decimal.NewFromInt(100), Track: 0})
	betMsg = readWS(t, conn, MessageTypeBetResult)
	require.NoError(t, json.Unmarshal(betMsg.Data, &betResult))
	assert.False(t, betResult.Success)
	assert.Equal(t, "Already placed a bet on this dragon", betResult.Error)
}
