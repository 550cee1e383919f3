package mqtt

import (
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	mqttIface "github.com/tetragramaton/seplos-go/internal/interface/mqtt"
	mock_mqtt "github.com/tetragramaton/seplos-go/internal/interface/mqtt/mock"
	"github.com/tetragramaton/seplos-go/internal/logging"
)

func TestPublishEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_mqtt.NewMockAPI(ctrl)
	api.EXPECT().
		Publish("seplos/battery_0/pack_voltage", byte(0), true, []byte("53.12")).
		Return(&pahomqtt.DummyToken{})

	c := Wrap(api, 0, logging.Discard())
	err := c.PublishEvent(mqttIface.Message{
		Topic:   "seplos/battery_0/pack_voltage",
		Payload: []byte("53.12"),
		Retain:  true,
	})
	assert.NoError(t, err)
}

func TestSubscribeToTopic(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_mqtt.NewMockAPI(ctrl)
	api.EXPECT().Subscribe("seplos/battery_0/set/#", byte(1), gomock.Any()).Return(&pahomqtt.DummyToken{})

	c := Wrap(api, 0, logging.Discard())
	assert.NoError(t, c.SubscribeToTopic(mqttIface.Subscription{Topic: "seplos/battery_0/set/#", QoS: 1}))
}

func TestClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_mqtt.NewMockAPI(ctrl)
	c := Wrap(api, 0, logging.Discard())

	api.EXPECT().IsConnectionOpen().Return(true)
	api.EXPECT().Disconnect(uint(250))
	assert.NoError(t, c.Close(250))

	api.EXPECT().IsConnectionOpen().Return(false)
	assert.NoError(t, c.Close(250))
}

func TestNewClientRequiresBroker(t *testing.T) {
	_, err := NewClient(Config{ClientID: "x"}, logging.Discard())
	assert.Error(t, err)
}
