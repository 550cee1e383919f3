package mqtt

import mqtt "github.com/eclipse/paho.mqtt.golang"

type Message struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

type Subscription struct {
	Topic    string              `json:"topic"`
	QoS      byte                `json:"qos"`
	Callback mqtt.MessageHandler `json:"-"`
}

// Client is a connected broker session.
type Client interface {
	PublishEvent(message Message) error
	SubscribeToTopic(subscription Subscription) error
	IsConnected() bool
	Close(quiesce uint) error
}

// API is the part of the paho client the adapter uses.
type API interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
}
