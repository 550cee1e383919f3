package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	mqttIface "github.com/tetragramaton/seplos-go/internal/interface/mqtt"
)

var ErrTimeout = errors.New("mqtt: operation timed out")

type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLS       bool

	// WillTopic receives WillPayload, retained, when the session drops uncleanly.
	WillTopic   string
	WillPayload string

	// OnConnect runs after every successful connect, including reconnects.
	OnConnect func(mqttIface.Client)

	Timeout time.Duration
}

type mqttClient struct {
	mqttIface.API
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewClient(cfg Config, log logrus.FieldLogger) (mqttIface.Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("missing broker url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	log = log.WithField("component", "mqtt")

	c := &mqttClient{timeout: cfg.Timeout, log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(5 * time.Second).
		SetPingTimeout(3 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", cfg.BrokerURL).Info("connected")
			if cfg.OnConnect != nil {
				go cfg.OnConnect(c)
			}
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}

	c.API = mqtt.NewClient(opts)
	if err := c.wait(c.API.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.BrokerURL, err)
	}
	return c, nil
}

// Wrap adapts an existing paho client without connecting it.
func Wrap(api mqttIface.API, timeout time.Duration, log logrus.FieldLogger) mqttIface.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &mqttClient{API: api, timeout: timeout, log: log.WithField("component", "mqtt")}
}

func (c *mqttClient) wait(t mqtt.Token) error {
	if !t.WaitTimeout(c.timeout) {
		return ErrTimeout
	}
	return t.Error()
}

func (c *mqttClient) PublishEvent(message mqttIface.Message) error {
	return c.wait(c.API.Publish(message.Topic, message.QoS, message.Retain, message.Payload))
}

func (c *mqttClient) SubscribeToTopic(sub mqttIface.Subscription) error {
	return c.wait(c.API.Subscribe(sub.Topic, sub.QoS, sub.Callback))
}

func (c *mqttClient) IsConnected() bool {
	return c.API.IsConnectionOpen()
}

func (c *mqttClient) Close(quiesce uint) error {
	if c.IsConnectionOpen() {
		c.Disconnect(quiesce)
	}
	return nil
}
