package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultClientPrefix = "coldchain-engine"
	tokenTimeout        = 10 * time.Second
)

var errTimeout = errors.New("mqtt: timed out waiting for broker")

// Handler receives every message arriving on a subscribed topic
type Handler func(topic string, payload []byte)

// Options configures the broker connection
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Topics         []string
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// ClientID returns prefix with a random suffix so two engine processes never
// share a broker session
func ClientID(prefix string) string {
	if prefix == "" {
		prefix = defaultClientPrefix
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Client owns one paho connection. It reconnects on its own schedule instead
// of paho's auto reconnect, and resubscribes after every connect.
type Client struct {
	opts    Options
	handler Handler
	log     *zap.Logger

	mu     sync.Mutex
	client paho.Client

	lost   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	wait func(ctx context.Context, d time.Duration) bool
}

// NewClient builds the client without connecting
func NewClient(opts Options, handler Handler, log *zap.Logger) *Client {
	return newClient(opts, handler, log, paho.NewClient)
}

func newClient(opts Options, handler Handler, log *zap.Logger, factory func(*paho.ClientOptions) paho.Client) *Client {
	c := &Client{
		opts:    opts,
		handler: handler,
		log:     log.Named("mqtt"),
		lost:    make(chan struct{}, 1),
		wait:    sleepCtx,
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetConnectTimeout(tokenTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.connectionLost(err) })
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	c.client = factory(po)
	return c
}

// Start runs the connect loop in the background until Close
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
}

func (c *Client) run(ctx context.Context) {
	backoff := NewBackoff(c.opts.BackoffInitial, c.opts.BackoffMax)
	for {
		if err := c.connect(); err != nil {
			d := backoff.Next()
			c.log.Warn("connect failed, retrying", zap.String("broker", c.opts.Broker), zap.Duration("in", d), zap.Error(err))
			if !c.wait(ctx, d) {
				return
			}
			continue
		}
		backoff.Reset()

		select {
		case <-ctx.Done():
			return
		case <-c.lost:
		}
	}
}

// connect connects and subscribes unless already connected
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client.IsConnected() {
		return nil
	}
	if err := await(c.client.Connect()); err != nil {
		return fmt.Errorf("connect %s: %w", c.opts.Broker, err)
	}
	for _, topic := range c.opts.Topics {
		if err := await(c.client.Subscribe(topic, c.opts.QoS, c.onMessage)); err != nil {
			c.client.Disconnect(250)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		c.log.Info("subscribed", zap.String("topic", topic))
	}
	c.log.Info("connected", zap.String("broker", c.opts.Broker), zap.String("client_id", c.opts.ClientID))
	return nil
}

func (c *Client) connectionLost(err error) {
	c.log.Warn("connection lost", zap.Error(err))
	select {
	case c.lost <- struct{}{}:
	default:
	}
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload to topic, connecting first if the link is down
func (c *Client) Publish(topic string, payload []byte) error {
	if err := c.connect(); err != nil {
		return err
	}
	return await(c.client.Publish(topic, c.opts.QoS, false, payload))
}

// Close stops the connect loop, waits for it to exit and disconnects
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func await(t paho.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return errTimeout
	}
	return t.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
