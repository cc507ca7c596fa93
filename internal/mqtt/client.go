// Package mqtt connects the engine to its sensors, input devices and audio
// device over an MQTT broker.
package mqtt

import (
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBroker is used when Options.BrokerURL is empty.
const DefaultBroker = "tcp://localhost:1883"

const (
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
	publishTimeout   = 2 * time.Second
)

// conn is the part of paho.Client the wrapper uses.
type conn interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// Route pairs a topic with its handler.
type Route struct {
	Topic   string
	Handler paho.MessageHandler
}

// Client wraps the Paho client. Every operation waits on its token with a
// bound, and routes registered through StartWithRetry are re-subscribed after
// paho reconnects, since a clean session drops them on the broker side.
type Client struct {
	client conn
	broker string
	log    *slog.Logger
	mu     sync.Mutex

	routesMu    sync.Mutex
	routes      []Route
	onReconnect []func()
}

// NewClient creates a client but does not connect.
func NewClient(o Options) *Client {
	if o.BrokerURL == "" {
		o.BrokerURL = DefaultBroker
	}
	if o.ClientID == "" {
		o.ClientID = "stridequest"
	}
	c := &Client{broker: o.BrokerURL, log: slog.Default()}
	opts := paho.NewClientOptions().
		AddBroker(o.BrokerURL).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) { c.resubscribe() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("mqtt connection lost", "broker", c.broker, "error", err)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	c.client = paho.NewClient(opts)
	return c
}

// TimeoutError reports an operation the broker did not acknowledge in time.
type TimeoutError struct {
	Op     string // connect, subscribe or publish
	Target string // broker URL or topic
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Target
}

func wait(t paho.Token, d time.Duration, op, target string) error {
	if !t.WaitTimeout(d) {
		return &TimeoutError{Op: op, Target: target}
	}
	return t.Error()
}

// Connect returns once the broker accepts the connection or connectTimeout passes.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wait(c.client.Connect(), connectTimeout, "connect", c.broker)
}

// Subscribe subscribes handler to topic at QoS 1.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wait(c.client.Subscribe(topic, 1, handler), subscribeTimeout, "subscribe", topic)
}

// Publish sends payload to topic at QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wait(c.client.Publish(topic, 1, retained, payload), publishTimeout, "publish", topic)
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.Disconnect(1000)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// StartWithRetry connects and subscribes every route, logging failures
// instead of returning them. It reports whether all subscriptions succeeded;
// on false paho keeps reconnecting and the routes are retried on connect.
func (c *Client) StartWithRetry(log *slog.Logger, routes ...Route) bool {
	c.log = log
	c.routesMu.Lock()
	c.routes = append([]Route(nil), routes...)
	c.routesMu.Unlock()

	if err := c.Connect(); err != nil {
		log.Error("mqtt connect failed", "broker", c.broker, "error", err)
		return false
	}
	return c.subscribeAll(c.registered())
}

// OnReconnect registers fn to run after the static routes are re-subscribed
// on a reconnect. Subscriptions made at runtime use it to renew themselves.
func (c *Client) OnReconnect(fn func()) {
	c.routesMu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.routesMu.Unlock()
}

func (c *Client) registered() []Route {
	c.routesMu.Lock()
	defer c.routesMu.Unlock()
	return c.routes
}

func (c *Client) subscribeAll(routes []Route) bool {
	ok := true
	for _, r := range routes {
		if err := c.Subscribe(r.Topic, r.Handler); err != nil {
			c.log.Error("mqtt subscribe failed", "topic", r.Topic, "error", err)
			ok = false
			continue
		}
		c.log.Info("mqtt subscribed", "topic", r.Topic)
	}
	return ok
}

// resubscribe runs on every (re)connect from paho's own goroutine. Before
// StartWithRetry no routes are registered and it does nothing.
func (c *Client) resubscribe() {
	routes := c.registered()
	if len(routes) == 0 {
		return
	}
	c.subscribeAll(routes)
	c.routesMu.Lock()
	hooks := append([]func(){}, c.onReconnect...)
	c.routesMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
