// Package push sends push notifications to device tokens through Firebase
// Cloud Messaging. The client is built once at startup and injected into the
// delivery gate.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// maxTokensPerCall is the FCM multicast limit.
const maxTokensPerCall = 500

// ErrNoCredentials is returned when neither inline nor file credentials are set.
var ErrNoCredentials = errors.New("push: no firebase credentials configured")

// Message is the transport-neutral push payload. Data values must be strings.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// TokenResult is the outcome for one device token.
type TokenResult struct {
	Token        string
	MessageID    string
	Err          error
	Unregistered bool
}

// BatchResult aggregates the per-token results of one multicast.
type BatchResult struct {
	Success int
	Failure int
	Results []TokenResult
}

// Stale returns tokens the transport reported as no longer registered.
func (b *BatchResult) Stale() []string {
	var out []string
	for _, r := range b.Results {
		if r.Unregistered {
			out = append(out, r.Token)
		}
	}
	return out
}

// MulticastClient is the subset of *messaging.Client the sender needs.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender fans one message out to many device tokens.
type FCMSender struct {
	client       MulticastClient
	logger       *slog.Logger
	unregistered func(error) bool
}

// NewFCMSender initialises a Firebase app from inline service-account JSON
// or, when that is empty, from a credentials file.
func NewFCMSender(ctx context.Context, credentialsJSON, credentialsFile string, logger *slog.Logger) (*FCMSender, error) {
	var opt option.ClientOption
	switch {
	case credentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	case credentialsFile != "":
		opt = option.WithCredentialsFile(credentialsFile)
	default:
		return nil, ErrNoCredentials
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewSender(client, logger), nil
}

// NewSender wraps an existing multicast client.
func NewSender(client MulticastClient, logger *slog.Logger) *FCMSender {
	return &FCMSender{client: client, logger: logger, unregistered: messaging.IsUnregistered}
}

// SendMulticast sends msg to every token, chunked at the FCM limit. A failed
// token never aborts the others; an error is returned only when a whole
// multicast call fails.
func (s *FCMSender) SendMulticast(ctx context.Context, tokens []string, msg Message) (*BatchResult, error) {
	result := &BatchResult{}
	for start := 0; start < len(tokens); start += maxTokensPerCall {
		end := min(start+maxTokensPerCall, len(tokens))
		chunk := tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, buildMulticast(chunk, msg))
		if err != nil {
			return result, fmt.Errorf("fcm multicast (%d tokens): %w", len(chunk), err)
		}

		for i, r := range resp.Responses {
			tr := TokenResult{Token: chunk[i]}
			if r.Success {
				tr.MessageID = r.MessageID
				result.Success++
			} else {
				tr.Err = r.Error
				tr.Unregistered = s.unregistered(r.Error)
				result.Failure++
			}
			result.Results = append(result.Results, tr)
		}
	}

	if result.Failure > 0 {
		s.logger.Warn("Push partially failed",
			"success", result.Success,
			"failure", result.Failure,
			"stale", len(result.Stale()))
	}
	return result, nil
}

func buildMulticast(tokens []string, msg Message) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
		Data: msg.Data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{MutableContent: true},
			},
		},
	}
	if msg.ImageURL != "" {
		m.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{ImageURL: msg.ImageURL},
		}
		m.APNS.FCMOptions = &messaging.APNSFCMOptions{ImageURL: msg.ImageURL}
	}
	return m
}
