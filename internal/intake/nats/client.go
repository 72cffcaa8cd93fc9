// Package nats connects the relay to NATS: requests arrive on a subject,
// dead letters leave on a JetStream subject.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const StreamName = "EASYRELAY"

// Client owns the NATS connection and the JetStream context.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Connect dials url and ensures a stream capturing subjects exists.
// The stream carries dead letters and NATS destination subjects.
func Connect(ctx context.Context, url string, subjects []string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("easyrelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   subjects,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   conn,
		js:     js,
		stream: stream,
	}, nil
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains subscriptions and pending publishes before closing.
func (c *Client) Close() error {
	return c.conn.Drain()
}
