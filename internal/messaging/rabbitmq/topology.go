package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderPartitionKey carries the event key on every published message.
const HeaderPartitionKey = "partitionKey"

// RoutingKey addresses one partition of a binding's topic exchange.
func RoutingKey(binding string, partition int) string {
	return fmt.Sprintf("%s.%d", binding, partition)
}

// QueueName is the durable queue a consumer group reads one partition from.
func QueueName(binding, group string, partition int) string {
	return fmt.Sprintf("%s.%s-%d", binding, group, partition)
}

// declareTopology declares the binding's topic exchange and, when group is
// set, one durable queue per partition bound to its routing key. It is
// idempotent.
func declareTopology(ch *amqp.Channel, binding, group string, partitions int) error {
	if err := ch.ExchangeDeclare(binding, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", binding, err)
	}
	if group == "" {
		return nil
	}
	for p := 0; p < partitions; p++ {
		if err := declarePartitionQueue(ch, binding, group, p); err != nil {
			return err
		}
	}
	return nil
}

func declarePartitionQueue(ch *amqp.Channel, binding, group string, partition int) error {
	q, err := ch.QueueDeclare(QueueName(binding, group, partition), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, RoutingKey(binding, partition), binding, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}
