package display

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	natspkg "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// httptestHandler serves the hub's websocket endpoint without the full
// lifecycle (no NATS subscription, no owned HTTP server).
func httptestHandler(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

func TestHub_BroadcastToStationClients(t *testing.T) {
	h := NewHub(HubConfig{Port: 8181}, nil, nil)
	h.shutdown = make(chan struct{})
	defer close(h.shutdown)

	ts := httptest.NewServer(httptestHandler(h))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?station=grill-kds"
	grill, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer grill.Close()

	barURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?station=bar-kds"
	bar, _, err := websocket.DefaultDialer.Dial(barURL, nil)
	require.NoError(t, err)
	defer bar.Close()

	require.Eventually(t, func() bool {
		return h.ClientCount("grill-kds") == 1 && h.ClientCount("bar-kds") == 1
	}, time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(Message{Seq: 1, OrderID: "ord-1"})
	h.handleBroadcast(&natspkg.Msg{Subject: SubjectFor("grill-kds"), Data: payload})

	_ = grill.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := grill.ReadMessage()
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ord-1", got.OrderID)

	// The bar client must not see grill traffic.
	_ = bar.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bar.ReadMessage()
	assert.Error(t, err, "no message expected for other stations")
}

func TestHub_UnsubscribeOnDisconnect(t *testing.T) {
	h := NewHub(HubConfig{Port: 8181}, nil, nil)
	h.shutdown = make(chan struct{})
	defer close(h.shutdown)

	ts := httptest.NewServer(httptestHandler(h))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?station=grill-kds"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.ClientCount("grill-kds") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return h.ClientCount("grill-kds") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting to an empty station is a no-op, not a panic.
	h.handleBroadcast(&natspkg.Msg{Subject: SubjectFor("grill-kds"), Data: []byte("{}")})
}

func TestHub_RequiresStation(t *testing.T) {
	h := NewHub(HubConfig{Port: 8181}, nil, nil)
	h.shutdown = make(chan struct{})
	defer close(h.shutdown)

	ts := httptest.NewServer(httptestHandler(h))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 400, resp.StatusCode)
	}
}

func TestHub_InitializeValidation(t *testing.T) {
	h := NewHub(HubConfig{Port: 80}, nil, nil)
	assert.Error(t, h.Initialize(), "privileged port rejected")

	h = NewHub(HubConfig{Port: 8181}, nil, nil)
	assert.Error(t, h.Initialize(), "missing NATS client rejected")
}
