package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/acgs/agentbus/pkg/message"
)

// kafkaBridge is the Agent Bus's optional external transport: a
// producer publishing outbound messages to a per-tenant/message-type
// topic, and a background poller consuming one well-known inbound
// topic and forwarding everything it reads into the bus's local
// inbox, so Receive never has to know whether a message arrived
// locally or via Kafka.
type kafkaBridge struct {
	writer      *kafka.Writer
	reader      *kafka.Reader
	inboxTarget *inbox
	logger      *slog.Logger
}

const inboundTopic = "agent.inbound"

func newKafkaBridge(brokers []string, groupID string, timeout time.Duration, target *inbox, logger *slog.Logger) *kafkaBridge {
	return &kafkaBridge{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: timeout,
			Async:        false,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   inboundTopic,
			GroupID: groupID,
		}),
		inboxTarget: target,
		logger:      logger.With("component", "kafka_bridge"),
	}
}

// topicFor builds the "agent.{tenant}.{message_type}" outbound topic
// name per the bus's external-transport naming convention.
func topicFor(msg *message.AgentMessage) string {
	tenant := msg.TenantID
	if tenant == "" {
		tenant = "_untenanted"
	}
	return fmt.Sprintf("agent.%s.%s", tenant, msg.MessageType)
}

func (k *kafkaBridge) publish(ctx context.Context, msg *message.AgentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: kafka marshal failed: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicFor(msg),
		Key:   []byte(msg.MessageID),
		Value: payload,
	})
}

// poll runs until ctx is cancelled, forwarding every inbound Kafka
// message into the bus's local inbox. Malformed payloads are logged
// and dropped rather than stalling the poller.
func (k *kafkaBridge) poll(ctx context.Context) {
	for {
		kmsg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			k.logger.WarnContext(ctx, "kafka poller read failed", "error", err)
			continue
		}
		msg, err := message.FromJSON(kmsg.Value)
		if err != nil {
			k.logger.WarnContext(ctx, "kafka poller: dropping malformed message", "error", err)
			continue
		}
		k.inboxTarget.push(msg)
	}
}

func (k *kafkaBridge) close() error {
	werr := k.writer.Close()
	rerr := k.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
