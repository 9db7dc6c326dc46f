package grid

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 5 * time.Second
	maxRetryDelay    = 60 * time.Second
)

// MQTTClient subscribes to the camera topics and feeds decoded frames to a
// Feed for the control loop.
type MQTTClient struct {
	client mqtt.Client
	cfg    MQTTConfig
	feed   *Feed
	clock  clock.Clock

	mu          sync.RWMutex
	isConnected bool
	stop        chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// ResolveMQTTConfig applies the MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and
// MQTT_PASSWORD environment overrides.
func ResolveMQTTConfig(cfg MQTTConfig) MQTTConfig {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gridlock"
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	return cfg
}

// InitMQTT builds a paho client from the configuration and starts connecting
// in the background. With no broker configured MQTT is disabled and it
// returns nil, nil.
func InitMQTT(cfg MQTTConfig, feed *Feed, clk clock.Clock) (*MQTTClient, error) {
	cfg = ResolveMQTTConfig(cfg)
	if cfg.Broker == "" {
		Logf("[MQTT] disabled: no broker configured")
		return nil, nil
	}
	if cfg.WallsTopic == "" {
		return nil, ErrNoWallsTopic
	}

	c := NewMQTTClient(nil, cfg, feed, clk)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(maxRetryDelay)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Frames are dropped into a latest-value slot, so delivery order is irrelevant.
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()

	return c, nil
}

// NewMQTTClient wraps an existing mqtt.Client. The caller is responsible for
// routing the client's connect callback to the returned value, which
// InitMQTT does through the paho options.
func NewMQTTClient(client mqtt.Client, cfg MQTTConfig, feed *Feed, clk clock.Clock) *MQTTClient {
	if clk == nil {
		clk = clock.New()
	}
	return &MQTTClient{
		client: client,
		cfg:    cfg,
		feed:   feed,
		clock:  clk,
		stop:   make(chan struct{}),
	}
}

// connectWithRetry connects with exponential backoff until it succeeds or
// Disconnect is called.
func (c *MQTTClient) connectWithRetry() {
	delay := time.Second
	for {
		Logf("[MQTT] connecting to %s as %s", c.cfg.Broker, c.cfg.ClientID)

		token := c.client.Connect()
		if token.WaitTimeout(connectTimeout) {
			if token.Error() == nil {
				Logf("[MQTT] connected")
				c.setConnected(true)
				return
			}
			Logf("[MQTT] connection failed: %v", token.Error())
		} else {
			Logf("[MQTT] connection timeout")
		}

		Logf("[MQTT] retrying in %v", delay)
		select {
		case <-c.stop:
			return
		case <-c.clock.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	c.subscribe(client, c.cfg.WallsTopic, c.handleWalls)
	if c.cfg.TrackedTopic != "" {
		c.subscribe(client, c.cfg.TrackedTopic, c.handleSighting)
	}
}

func (c *MQTTClient) subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler) {
	token := client.Subscribe(topic, 0, handler)
	if token.WaitTimeout(subscribeTimeout) && token.Error() != nil {
		Logf("[MQTT] error subscribing to %s: %v", topic, token.Error())
		return
	}
	Logf("[MQTT] subscribed to %s", topic)
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	Logf("[MQTT] reconnecting...")
}

// handleWalls decodes a walls frame, stamping it with its arrival time.
func (c *MQTTClient) handleWalls(_ mqtt.Client, msg mqtt.Message) {
	batch, err := DecodeBatch(msg.Payload(), c.clock.Now())
	if err != nil {
		c.dropped.Add(1)
		Logf("[MQTT] dropping walls frame on %s: %v", msg.Topic(), err)
		return
	}
	c.feed.PutBatch(batch)
}

func (c *MQTTClient) handleSighting(_ mqtt.Client, msg mqtt.Message) {
	s, err := DecodeSighting(msg.Payload(), c.clock.Now())
	if err != nil {
		c.dropped.Add(1)
		Logf("[MQTT] dropping sighting on %s: %v", msg.Topic(), err)
		return
	}
	c.feed.PutSighting(s)
}

// Dropped counts payloads that failed to decode
func (c *MQTTClient) Dropped() uint64 {
	return c.dropped.Load()
}

// IsConnected reports the last known broker connection state
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending retry and closes the connection
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		Logf("[MQTT] disconnecting")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// Client returns the underlying client for publishing
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}
