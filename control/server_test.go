package control

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/ghazaresan1/notif/session"
)

type fakeEngine struct {
	credsErr    error
	lastCreds   session.Credentials
	forced      int32
	online      int32
	offline     int32
	credentials int32
}

func (f *fakeEngine) OnCredentialsProvided(ctx context.Context, creds session.Credentials) error {
	atomic.AddInt32(&f.credentials, 1)
	f.lastCreds = creds
	return f.credsErr
}

func (f *fakeEngine) ForceCheck()              { atomic.AddInt32(&f.forced, 1) }
func (f *fakeEngine) OnConnectivityLost()      { atomic.AddInt32(&f.offline, 1) }
func (f *fakeEngine) OnConnectivityRestored()  { atomic.AddInt32(&f.online, 1) }

func dialTest(t *testing.T, engine Engine) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(engine, nil).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg Message) Reply {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func TestCredentialsMessage(t *testing.T) {
	engine := &fakeEngine{}
	conn := dialTest(t, engine)

	reply := roundTrip(t, conn, Message{Type: MsgCredentials, Username: "a", Password: "b"})
	if !reply.OK {
		t.Fatalf("expected ok reply, got %+v", reply)
	}
	if engine.lastCreds != (session.Credentials{Username: "a", Password: "b"}) {
		t.Fatalf("credentials not forwarded: %+v", engine.lastCreds)
	}
}

func TestCredentialsFailureReportedOnSocket(t *testing.T) {
	engine := &fakeEngine{credsErr: errors.New("authentication rejected with status 403")}
	conn := dialTest(t, engine)

	reply := roundTrip(t, conn, Message{Type: MsgCredentials, Username: "a", Password: "bad"})
	if reply.OK {
		t.Fatalf("expected failure reply")
	}
	if !strings.Contains(reply.Error, "rejected") {
		t.Fatalf("error not surfaced to the user: %+v", reply)
	}
}

func TestControlMessages(t *testing.T) {
	engine := &fakeEngine{}
	conn := dialTest(t, engine)

	if reply := roundTrip(t, conn, Message{Type: MsgCheckNow}); !reply.OK {
		t.Fatalf("check now failed: %+v", reply)
	}
	if reply := roundTrip(t, conn, Message{Type: MsgOffline}); !reply.OK {
		t.Fatalf("offline failed: %+v", reply)
	}
	if reply := roundTrip(t, conn, Message{Type: MsgOnline}); !reply.OK {
		t.Fatalf("online failed: %+v", reply)
	}
	if reply := roundTrip(t, conn, Message{Type: MsgKeepAlive}); !reply.OK {
		t.Fatalf("keep-alive failed: %+v", reply)
	}
	if atomic.LoadInt32(&engine.forced) != 1 || atomic.LoadInt32(&engine.offline) != 1 || atomic.LoadInt32(&engine.online) != 1 {
		t.Fatalf("engine callbacks not invoked: %+v", engine)
	}
}

func TestUnknownMessageType(t *testing.T) {
	conn := dialTest(t, &fakeEngine{})
	reply := roundTrip(t, conn, Message{Type: "BOGUS"})
	if reply.OK || !strings.Contains(reply.Error, "unknown message type") {
		t.Fatalf("expected unknown-type error, got %+v", reply)
	}
}
