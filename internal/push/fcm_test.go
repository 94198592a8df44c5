package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

var errStale = errors.New("registration token not registered")

// fakeClient fails every token listed in bad and records each call.
type fakeClient struct {
	bad   map[string]bool
	calls [][]string
	err   error
}

func (f *fakeClient) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, m.Tokens)
	if f.err != nil {
		return nil, f.err
	}
	resp := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if f.bad[tok] {
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: errStale})
			resp.FailureCount++
			continue
		}
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
		resp.SuccessCount++
	}
	return resp, nil
}

func newTestSender(c MulticastClient) *FCMSender {
	s := NewSender(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.unregistered = func(err error) bool { return errors.Is(err, errStale) }
	return s
}

func TestSendMulticastPartialFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{bad: map[string]bool{"t2": true}}
	res, err := newTestSender(client).SendMulticast(t.Context(), []string{"t1", "t2", "t3"}, Message{Title: "x", Body: "y"})
	if err != nil {
		t.Fatalf("SendMulticast() error: %v", err)
	}
	if res.Success != 2 || res.Failure != 1 {
		t.Errorf("success/failure = %d/%d, want 2/1", res.Success, res.Failure)
	}
	if stale := res.Stale(); len(stale) != 1 || stale[0] != "t2" {
		t.Errorf("Stale() = %v, want [t2]", stale)
	}
	if res.Results[0].MessageID != "m-t1" {
		t.Errorf("Results[0].MessageID = %q", res.Results[0].MessageID)
	}
}

func TestSendMulticastChunks(t *testing.T) {
	t.Parallel()

	tokens := make([]string, maxTokensPerCall+3)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	client := &fakeClient{}
	res, err := newTestSender(client).SendMulticast(t.Context(), tokens, Message{Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(client.calls) != 2 || len(client.calls[0]) != maxTokensPerCall || len(client.calls[1]) != 3 {
		t.Errorf("chunk sizes wrong: %d calls", len(client.calls))
	}
	if res.Success != len(tokens) {
		t.Errorf("Success = %d, want %d", res.Success, len(tokens))
	}
}

func TestSendMulticastCallError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errors.New("unavailable")}
	if _, err := newTestSender(client).SendMulticast(t.Context(), []string{"t1"}, Message{}); err == nil {
		t.Fatal("SendMulticast() returned nil error for a failed call")
	}
}

func TestBuildMulticastImage(t *testing.T) {
	t.Parallel()

	m := buildMulticast([]string{"a"}, Message{Title: "T", Body: "B", ImageURL: "https://img/logo.png", Data: map[string]string{"k": "v"}})
	if m.Android == nil || m.Android.Notification.ImageURL != "https://img/logo.png" {
		t.Error("android image not set")
	}
	if m.APNS.FCMOptions == nil || m.APNS.FCMOptions.ImageURL != "https://img/logo.png" {
		t.Error("apns image not set")
	}
	if !m.APNS.Payload.Aps.MutableContent {
		t.Error("apns mutable-content not set")
	}

	plain := buildMulticast([]string{"a"}, Message{Title: "T"})
	if plain.Android != nil {
		t.Error("android config set without an image")
	}
}

func TestNewFCMSenderRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewFCMSender(t.Context(), "", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("error = %v, want ErrNoCredentials", err)
	}
}
