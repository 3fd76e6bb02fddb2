// Package mqtt adapts the paho MQTT client to the two broker roles the
// service runs: a supervisor connection watching the whole topic tree for
// sensor liveness, and a measurement connection subscribed to the data
// topics of the currently selected sensors.
package mqtt

import (
	"fmt"
	"log"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldscope/fieldscope/internal/model"
)

const (
	// DefaultConnectTimeout bounds the initial broker handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultOpTimeout bounds subscribe and unsubscribe acknowledgements.
	DefaultOpTimeout = 5 * time.Second
)

// Config holds broker connection parameters.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

func (c Config) brokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (c Config) opTimeout() time.Duration {
	if c.OpTimeout > 0 {
		return c.OpTimeout
	}
	return DefaultOpTimeout
}

// SampleSink consumes raw sample payloads arriving on sensor data topics
// and reports the set of topics the measurement connection should hold.
type SampleSink interface {
	OnPayload(sensorID string, payload []byte)
	Topics() []string
}

// Announcer records that a sensor was seen publishing.
type Announcer interface {
	Announce(sensorID string, seen time.Time)
}

// Client wraps one paho connection. The measurement variant satisfies the
// engine's transport contract.
type Client struct {
	cli        paho.Client
	name       string
	connectTTL time.Duration
	opTTL      time.Duration
	handler    paho.MessageHandler
}

// NewMeasurementClient builds the connection that carries sample traffic.
// Subscriptions are driven by the caller through Subscribe and Unsubscribe;
// on reconnect the broker-side state is rebuilt from sink.Topics().
func NewMeasurementClient(cfg Config, topicPrefix string, sink SampleSink) *Client {
	c := &Client{
		name:       "measurement",
		connectTTL: cfg.connectTimeout(),
		opTTL:      cfg.opTimeout(),
	}
	c.handler = func(_ paho.Client, msg paho.Message) {
		id, ok := model.ParseDataTopic(topicPrefix, msg.Topic())
		if !ok {
			return
		}
		sink.OnPayload(id, msg.Payload())
	}
	opts := baseOptions(cfg, c.name)
	opts.SetOnConnectHandler(func(cli paho.Client) {
		topics := sink.Topics()
		log.Printf("mqtt: measurement connected, restoring %d subscription(s)", len(topics))
		for _, topic := range topics {
			tok := cli.Subscribe(topic, 0, c.handler)
			if !tok.WaitTimeout(c.opTTL) || tok.Error() != nil {
				log.Printf("mqtt: measurement resubscribe %s failed: %v", topic, tok.Error())
			}
		}
	})
	c.cli = paho.NewClient(opts)
	return c
}

// NewSupervisorClient builds the connection that watches the whole topic
// tree under topicPrefix and feeds sensor sightings to the announcer.
func NewSupervisorClient(cfg Config, topicPrefix string, ann Announcer) *Client {
	c := &Client{
		name:       "supervisor",
		connectTTL: cfg.connectTimeout(),
		opTTL:      cfg.opTimeout(),
	}
	c.handler = func(_ paho.Client, msg paho.Message) {
		if id, ok := model.ParseDataTopic(topicPrefix, msg.Topic()); ok {
			ann.Announce(id, time.Now())
		}
	}
	opts := baseOptions(cfg, c.name)
	opts.SetOnConnectHandler(func(cli paho.Client) {
		topic := model.WildcardTopic(topicPrefix)
		log.Printf("mqtt: supervisor connected, watching %s", topic)
		tok := cli.Subscribe(topic, 0, c.handler)
		if !tok.WaitTimeout(c.opTTL) || tok.Error() != nil {
			log.Printf("mqtt: supervisor subscribe %s failed: %v", topic, tok.Error())
		}
	})
	c.cli = paho.NewClient(opts)
	return c
}

func baseOptions(cfg Config, name string) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(cfg.brokerURL()).
		SetClientID(clientID(name)).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: %s connection lost: %v", name, err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

func clientID(name string) string {
	return "fieldscope-" + name + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Connect dials the broker and waits for the handshake.
func (c *Client) Connect() error {
	tok := c.cli.Connect()
	if !tok.WaitTimeout(c.connectTTL) {
		return fmt.Errorf("mqtt: %s connect: timed out after %s", c.name, c.connectTTL)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: %s connect: %w", c.name, err)
	}
	return nil
}

// Disconnect flushes in-flight work and closes the connection.
func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
}

// Subscribe adds one topic on the current connection.
func (c *Client) Subscribe(topic string) error {
	return c.wait(c.cli.Subscribe(topic, 0, c.handler), "subscribe "+topic)
}

// Unsubscribe removes one topic from the current connection.
func (c *Client) Unsubscribe(topic string) error {
	return c.wait(c.cli.Unsubscribe(topic), "unsubscribe "+topic)
}

func (c *Client) wait(tok paho.Token, op string) error {
	if !tok.WaitTimeout(c.opTTL) {
		return fmt.Errorf("mqtt: %s %s: timed out after %s", c.name, op, c.opTTL)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: %s %s: %w", c.name, op, err)
	}
	return nil
}

var _ model.Transport = (*Client)(nil)
