package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTSink mirrors events to an MQTT broker under {prefix}/{topic}.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(opts MQTTOptions, logger *zap.Logger) (*MQTTSink, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTSinkWithClient(client, opts.TopicPrefix, logger), nil
}

// NewMQTTSinkWithClient wraps an existing client.
func NewMQTTSinkWithClient(client mqtt.Client, prefix string, logger *zap.Logger) *MQTTSink {
	return &MQTTSink{
		client: client,
		prefix: strings.Trim(prefix, "/"),
		qos:    1,
		logger: logger.With(zap.String("component", "mqtt_sink")),
	}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// BrokerTopic maps a bus topic to its MQTT topic.
func (s *MQTTSink) BrokerTopic(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + "/" + topic
}

// Forward publishes the message payload.
func (s *MQTTSink) Forward(ctx context.Context, msg Message) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := s.client.Publish(s.BrokerTopic(msg.Topic), s.qos, false, []byte(msg.Payload))

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to %s", s.BrokerTopic(msg.Topic))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.BrokerTopic(msg.Topic), err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
