// internal/mqtt/client.go
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/handler"
	"tascam-bridge/internal/tascam"
	"tascam-bridge/internal/utils"
)

// Bridge mirrors the player's event feed onto an MQTT broker and accepts
// commands from it. Bridge availability is advertised through a retained
// status topic with a last-will fallback.
type Bridge struct {
	client     pahomqtt.Client
	controller *tascam.Controller
	eventBus   *handler.EventBus
	cfg        *config.MQTTConfig
	logger     *utils.ServiceLogger
	done       chan struct{}
}

// NewBridge creates a new MQTT bridge
func NewBridge(cfg *config.MQTTConfig, broker string, controller *tascam.Controller, eventBus *handler.EventBus, logger *zap.Logger) *Bridge {
	b := &Bridge{
		controller: controller,
		eventBus:   eventBus,
		cfg:        cfg,
		logger:     utils.NewServiceLogger(logger, "mqtt-bridge"),
		done:       make(chan struct{}),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.statusTopic(), "offline", 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = pahomqtt.NewClient(opts)
	return b
}

// Start connects to the broker and begins forwarding events
func (b *Bridge) Start() error {
	token := b.client.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	subID, events := b.eventBus.Subscribe()
	go b.forwardEvents(subID, events)

	b.logger.Info("MQTT bridge started", zap.String("base_topic", b.cfg.BaseTopic))
	return nil
}

// Stop publishes the offline status and disconnects
func (b *Bridge) Stop() {
	close(b.done)
	if b.client.IsConnected() {
		b.client.Publish(b.statusTopic(), 1, true, "offline").WaitTimeout(2 * time.Second)
		b.client.Disconnect(250)
	}
	b.logger.Info("MQTT bridge stopped")
}

// onConnect announces availability and subscribes to the command topic
func (b *Bridge) onConnect(client pahomqtt.Client) {
	client.Publish(b.statusTopic(), 1, true, "online")

	topic := b.cfg.BaseTopic + "/command"
	token := client.Subscribe(topic, 1, b.handleCommand)
	if ok := token.WaitTimeout(5 * time.Second); !ok || token.Error() != nil {
		b.logger.Error("Failed to subscribe to command topic",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
		return
	}

	b.logger.Info("MQTT connected", zap.String("command_topic", topic))
}

// onConnectionLost logs broker loss; paho handles the reconnect
func (b *Bridge) onConnectionLost(_ pahomqtt.Client, err error) {
	b.logger.Warn("MQTT connection lost", zap.Error(err))
}

// handleCommand dispatches a command received from the broker
func (b *Bridge) handleCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	command := string(msg.Payload())
	if command == "" {
		return
	}

	if err := b.controller.Send(command); err != nil {
		b.logger.Warn("MQTT command rejected",
			zap.String("command", command),
			zap.Error(err),
		)
	}
}

// forwardEvents publishes every bus event to the events topic
func (b *Bridge) forwardEvents(subID string, events <-chan handler.Event) {
	defer b.eventBus.Unsubscribe(subID)

	topic := b.cfg.BaseTopic + "/events"
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				b.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			b.client.Publish(topic, 0, false, payload)
		}
	}
}

// statusTopic is the retained bridge availability topic
func (b *Bridge) statusTopic() string {
	return b.cfg.BaseTopic + "/bridge/status"
}
