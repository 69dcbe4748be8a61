package messaging

import "context"

// Message is one serialized event ready for the messaging substrate.
type Message struct {
	Binding      string
	EventType    string
	PartitionKey int
	Partition    int
	MessageID    string
	Body         []byte
}

// Broker hands messages to the substrate. Send returns once the substrate
// has accepted the message or refused it.
type Broker interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// PartitionFor maps a key onto [0, count).
func PartitionFor(key, count int) int {
	if count <= 1 {
		return 0
	}
	p := key % count
	if p < 0 {
		p += count
	}
	return p
}
