package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

type hubHarness struct {
	hub    *Hub
	server *httptest.Server
}

func newHubHarness(t *testing.T) *hubHarness {
	t.Helper()
	hub := NewHub(DefaultConnectionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)
	t.Cleanup(cancel)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connID := r.URL.Query().Get("conn_id")
		_, err := hub.Upgrade(w, r, connID, "viewer-"+connID, nil, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	return &hubHarness{hub: hub, server: server}
}

func (h *hubHarness) dial(t *testing.T, connID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "?conn_id=" + connID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func TestHub_BroadcastReachesOnlyGroupMembers(t *testing.T) {
	h := newHubHarness(t)

	member := h.dial(t, "conn-member")
	outsider := h.dial(t, "conn-outsider")

	h.hub.AddToGroup("conn-member", "clock.test")
	h.hub.Broadcast("clock.test", []byte(`{"hello":"member"}`))

	assert.JSONEq(t, `{"hello":"member"}`, string(readFrame(t, member)))

	outsider.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := outsider.ReadMessage()
	assert.Error(t, err, "non-member must not receive group traffic")
}

func TestHub_RemoveFromGroupStopsDelivery(t *testing.T) {
	h := newHubHarness(t)

	client := h.dial(t, "conn-1")
	h.hub.AddToGroup("conn-1", "clock.test")
	h.hub.Broadcast("clock.test", []byte(`"first"`))
	readFrame(t, client)

	h.hub.RemoveFromGroup("conn-1", "clock.test")
	h.hub.Broadcast("clock.test", []byte(`"second"`))

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestHub_SendToTargetsOneConnection(t *testing.T) {
	h := newHubHarness(t)

	first := h.dial(t, "conn-1")
	h.dial(t, "conn-2")

	h.hub.SendTo("conn-1", []byte(`"direct"`))
	assert.Equal(t, `"direct"`, string(readFrame(t, first)))
	// Unknown connection is a no-op.
	h.hub.SendTo("conn-missing", []byte(`"void"`))
}

func TestHub_StatsCountConnectionsAndGroups(t *testing.T) {
	h := newHubHarness(t)

	h.dial(t, "conn-1")
	h.dial(t, "conn-2")

	require.Eventually(t, func() bool {
		return h.hub.Stats()["total_connections"] == 2
	}, time.Second, 10*time.Millisecond)

	h.hub.AddToGroup("conn-1", "clock.a")
	h.hub.AddToGroup("conn-2", "clock.a")
	h.hub.AddToGroup("conn-2", "region.NL.Aalsmeer")

	stats := h.hub.Stats()
	assert.Equal(t, 2, stats["active_groups"])
	assert.Equal(t, map[string]int{"clock.a": 2, "region.NL.Aalsmeer": 1}, stats["group_members"])
}

func TestHub_BroadcastWhileConnectionsChurn(t *testing.T) {
	h := newHubHarness(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.hub.Broadcast("clock.churn", []byte(`"tick"`))
			}
		}
	}()

	// Connections joining and dropping mid-broadcast must never crash the
	// dispatch loop.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("conn-%d", i)
		conn := h.dial(t, id)
		h.hub.AddToGroup(id, "clock.churn")
		conn.Close()
	}
	close(stop)
	wg.Wait()

	// The hub still delivers after the churn.
	survivor := h.dial(t, "conn-survivor")
	h.hub.AddToGroup("conn-survivor", "clock.churn")
	h.hub.Broadcast("clock.churn", []byte(`"alive"`))
	for {
		if string(readFrame(t, survivor)) == `"alive"` {
			break
		}
	}
}

func TestHubNotifier_WrapsPayloadInEnvelope(t *testing.T) {
	h := newHubHarness(t)
	notifier := NewHubNotifier(h.hub)

	client := h.dial(t, "conn-1")
	group := events.ClockGroup("abc")
	h.hub.AddToGroup("conn-1", group)

	payload := events.PriceTickPayload{
		ClockID:  "abc",
		LotID:    "lot-1",
		Price:    decimal.RequireFromString("9.98"),
		TickedAt: time.Now().UTC(),
	}
	require.NoError(t, notifier.PriceTick(group, payload))

	var envelope Envelope
	require.NoError(t, json.Unmarshal(readFrame(t, client), &envelope))
	assert.Equal(t, events.TypePriceTick, envelope.Type)
	assert.Equal(t, group, envelope.Group)
	assert.NotEmpty(t, envelope.ID)

	var got events.PriceTickPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &got))
	assert.Equal(t, "abc", got.ClockID)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.98")))
}
