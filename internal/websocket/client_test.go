package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mafia-engine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSnapshots struct {
	snapshots map[string]*domain.SessionSnapshot
}

func (f *fakeSnapshots) GetSession(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	snapshot, ok := f.snapshots[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return snapshot, nil
}

func readMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshaling queued message: %v", err)
		}
		return msg
	default:
		t.Fatal("no message queued for client")
		return Message{}
	}
}

func TestSubscribePushesCurrentSessionState(t *testing.T) {
	hub := NewHub(testLogger())
	hub.SetSnapshotProvider(&fakeSnapshots{snapshots: map[string]*domain.SessionSnapshot{
		"s1": {SessionID: "s1", Phase: domain.PhaseVoting, DayNumber: 2},
	}})

	client := NewClient(hub, nil, testLogger())
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, SessionID: "s1"})

	ack := readMessage(t, client)
	if ack.Type != "subscribed" {
		t.Fatalf("first message type = %q, want subscribed ack", ack.Type)
	}

	state := readMessage(t, client)
	if state.Type != MessageTypeSessionState {
		t.Fatalf("second message type = %q, want %q", state.Type, MessageTypeSessionState)
	}
	if state.SessionID != "s1" {
		t.Errorf("state session id = %q, want s1", state.SessionID)
	}

	payload, err := json.Marshal(state.Data)
	if err != nil {
		t.Fatalf("re-marshaling state payload: %v", err)
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatalf("unmarshaling state payload: %v", err)
	}
	if snap.Phase != domain.PhaseVoting || snap.DayNumber != 2 {
		t.Errorf("pushed snapshot = phase %s day %d, want voting day 2", snap.Phase, snap.DayNumber)
	}
}

func TestSubscribeUnknownSessionSendsOnlyAck(t *testing.T) {
	hub := NewHub(testLogger())
	hub.SetSnapshotProvider(&fakeSnapshots{})

	client := NewClient(hub, nil, testLogger())
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, SessionID: "missing"})

	ack := readMessage(t, client)
	if ack.Type != "subscribed" {
		t.Fatalf("first message type = %q, want subscribed ack", ack.Type)
	}
	select {
	case data := <-client.send:
		t.Fatalf("unexpected extra message after ack: %s", data)
	default:
	}
}

func TestSubscribeWithoutProviderSendsOnlyAck(t *testing.T) {
	hub := NewHub(testLogger())

	client := NewClient(hub, nil, testLogger())
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, SessionID: "s1"})

	ack := readMessage(t, client)
	if ack.Type != "subscribed" {
		t.Fatalf("first message type = %q, want subscribed ack", ack.Type)
	}
	select {
	case data := <-client.send:
		t.Fatalf("unexpected extra message after ack: %s", data)
	default:
	}
}
