package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/stream"
)

// Dial connects to the broker in config, starts the reactor and completes the
// handshake. config.TimeoutSecond bounds dialing and the handshake together.
func Dial(ctx context.Context, config common.ClientConfig) (*Transport, error) {
	if config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(config.TimeoutSecond)*time.Second)
		defer cancel()
	}

	s, err := stream.Dial(ctx, config)
	if err != nil {
		return nil, err
	}

	t := New(s, config)
	t.Start()
	if err := t.Handshake(ctx, config.Options); err != nil {
		t.shutdown()
		return nil, err
	}

	Logger.Infof("connected to %s (vhost %q, heartbeat %s)", config.Endpoint, config.Options.VirtualHost, t.Heartbeat())
	return t, nil
}

// Handshake starts the connection with opts and waits until the broker accepted it
func (t *Transport) Handshake(ctx context.Context, opts common.ConnectionOptions) error {
	c, err := t.Connect(opts)
	if err != nil {
		return err
	}
	if _, err := c.Wait(ctx); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	return nil
}
