package meta_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
	"github.com/johnjansen/bayeuxkit/events"
	"github.com/johnjansen/bayeuxkit/meta"
)

func testApp(t *testing.T) (*buffalo.App, *auth.Codec) {
	t.Helper()
	bus := events.NewBus(16)
	t.Cleanup(bus.Stop)

	cfg := broker.DefaultConfig()
	cfg.MaxInterval = time.Hour
	cfg.Timeout = 200 * time.Millisecond
	ctx := broker.New(cfg, bus)

	codec := auth.NewCodec([]byte("0123456789012345678901234567890123456789"), nil)

	app := buffalo.New(buffalo.Options{})
	meta.Mount(app, "", ctx, meta.ConfigFromBroker(cfg), codec, nil)
	return app, codec
}

func post(t *testing.T, app *buffalo.App, path string, body []Message) (*httptest.ResponseRecorder, []meta.Message) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	var reply []meta.Message
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, reply
}

// Message is a local alias so test tables can build requests without
// repeating the package-qualified type everywhere.
type Message = meta.Message

func handshakeCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	resp := http.Response{Header: rec.Header()}
	for _, c := range resp.Cookies() {
		if c.Name == "BAYEUX_BROWSER" {
			return c
		}
	}
	return nil
}

func TestHandshakeSucceeds(t *testing.T) {
	app, _ := testApp(t)

	rec, reply := post(t, app, "/handshake", []Message{{
		ID:                       "1",
		Channel:                  meta.ChannelHandshake,
		Version:                  "1.0",
		MinimumVersion:           "1.0",
		SupportedConnectionTypes: []string{"long-polling"},
	}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(reply) != 1 {
		t.Fatalf("expected one reply message, got %d", len(reply))
	}
	if reply[0].Successful == nil || !*reply[0].Successful {
		t.Fatalf("expected successful:true, got %+v", reply[0])
	}
	if reply[0].ClientID == "" {
		t.Fatal("expected a clientId")
	}
	if handshakeCookie(rec) == nil {
		t.Fatal("expected a BAYEUX_BROWSER cookie to be set")
	}
}

func TestHandshakeRejectsWrongMinimumVersion(t *testing.T) {
	app, _ := testApp(t)

	_, reply := post(t, app, "/handshake", []Message{{
		ID:             "1",
		Channel:        meta.ChannelHandshake,
		MinimumVersion: "0.9",
	}})

	if reply[0].Error != "400::minimum_version_missing" {
		t.Fatalf("expected minimum_version_missing, got %+v", reply[0])
	}
}

// handshakeSession drives a handshake and returns the resulting clientId
// and browser cookie, for subscribe/connect/disconnect tests that need
// an already-registered session.
func handshakeSession(t *testing.T, app *buffalo.App) (clientID string, cookie *http.Cookie) {
	t.Helper()
	rec, reply := post(t, app, "/handshake", []Message{{
		ID:             "1",
		Channel:        meta.ChannelHandshake,
		MinimumVersion: "1.0",
	}})
	cookie = handshakeCookie(rec)
	if cookie == nil {
		t.Fatal("handshake did not set a cookie")
	}
	return reply[0].ClientID, cookie
}

func postWithCookie(t *testing.T, app *buffalo.App, path string, cookie *http.Cookie, body []Message) (*httptest.ResponseRecorder, []meta.Message) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	var reply []meta.Message
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, reply
}

func TestSubscribeSucceeds(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	_, reply := postWithCookie(t, app, "/", cookie, []Message{{
		ID:           "2",
		Channel:      meta.ChannelSubscribe,
		ClientID:     clientID,
		Subscription: meta.Subscription{"/topic"},
	}})

	if reply[0].Successful == nil || !*reply[0].Successful {
		t.Fatalf("expected successful subscribe, got %+v", reply[0])
	}
}

func TestSubscribeEmptySubscriptionFails(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	_, reply := postWithCookie(t, app, "/", cookie, []Message{{
		ID:       "2",
		Channel:  meta.ChannelSubscribe,
		ClientID: clientID,
	}})

	if reply[0].Error != "403::subscription_missing" {
		t.Fatalf("expected subscription_missing, got %+v", reply[0])
	}
}

func TestSubscribeWrongCookieFails(t *testing.T) {
	app, _ := testApp(t)
	clientID, _ := handshakeSession(t, app)

	_, reply := post(t, app, "/", []Message{{
		ID:           "2",
		Channel:      meta.ChannelSubscribe,
		ClientID:     clientID,
		Subscription: meta.Subscription{"/topic"},
	}})

	if reply[0].Error != "402::session_unknown" {
		t.Fatalf("expected session_unknown without cookie, got %+v", reply[0])
	}
}

func TestConnectTimesOutWithRetryAdvice(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	_, reply := postWithCookie(t, app, "/connect", cookie, []Message{{
		ID:       "3",
		Channel:  meta.ChannelConnect,
		ClientID: clientID,
		Advice:   &meta.Advice{Timeout: int64Ptr(50)},
	}})

	if len(reply) != 1 {
		t.Fatalf("expected one reply on timeout, got %d", len(reply))
	}
	if reply[0].Advice == nil || reply[0].Advice.Reconnect != meta.ReconnectRetry {
		t.Fatalf("expected retry advice, got %+v", reply[0])
	}
}

func TestConnectDeliversPublishedMessage(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	postWithCookie(t, app, "/", cookie, []Message{{
		Channel:      meta.ChannelSubscribe,
		ClientID:     clientID,
		Subscription: meta.Subscription{"/topic"},
	}})

	go func() {
		time.Sleep(20 * time.Millisecond)
		postWithCookie(t, app, "/connect", cookie, []Message{{
			Channel:  "/topic",
			ClientID: clientID,
			Data:     json.RawMessage(`{"msg":"hi"}`),
		}})
	}()

	_, reply := postWithCookie(t, app, "/connect", cookie, []Message{{
		ID:       "4",
		Channel:  meta.ChannelConnect,
		ClientID: clientID,
		Advice:   &meta.Advice{Timeout: int64Ptr(2000)},
	}})

	if len(reply) != 2 {
		t.Fatalf("expected a two-message delivery envelope, got %d: %+v", len(reply), reply)
	}
	if reply[0].Channel != "/topic" {
		t.Fatalf("expected delivery on /topic, got %+v", reply[0])
	}
	if reply[1].Successful == nil || !*reply[1].Successful {
		t.Fatalf("expected successful connect ack, got %+v", reply[1])
	}
}

func TestConnectRejectsMetaChannelInPublishBatch(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	rec, _ := postWithCookie(t, app, "/connect", cookie, []Message{
		{Channel: "/topic/a", ClientID: clientID, Data: json.RawMessage(`1`)},
		{Channel: "/x/meta/y", ClientID: clientID, Data: json.RawMessage(`2`)},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDisconnectRepliesBadRequestOnSuccess(t *testing.T) {
	app, _ := testApp(t)
	clientID, cookie := handshakeSession(t, app)

	rec, _ := postWithCookie(t, app, "/disconnect", cookie, []Message{{
		ID:       "5",
		Channel:  meta.ChannelDisconnect,
		ClientID: clientID,
	}})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (the intentional disconnect quirk)", rec.Code)
	}
}

func int64Ptr(v int64) *int64 { return &v }
