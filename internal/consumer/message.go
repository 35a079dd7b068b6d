package consumer

import "context"

// Message is one delivery from a stream, independent of the transport.
type Message struct {
	Source    string
	Partition string
	ID        string
	Payload   []byte

	ack  func(context.Context) error
	nack func(context.Context) error
}

// NewMessage builds a Message with transport-specific settlement hooks. Nil hooks are no-ops.
func NewMessage(source, partition, id string, payload []byte, ack, nack func(context.Context) error) Message {
	return Message{
		Source:    source,
		Partition: partition,
		ID:        id,
		Payload:   payload,
		ack:       ack,
		nack:      nack,
	}
}

// Ack settles the message as handled.
func (m Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

// Nack hands the message back for redelivery where the transport supports it.
func (m Message) Nack(ctx context.Context) error {
	if m.nack == nil {
		return nil
	}
	return m.nack(ctx)
}

// Handler processes one message. A nil error acks it.
type Handler func(ctx context.Context, msg Message) error

// Sink accepts messages from a Source.
type Sink interface {
	Submit(ctx context.Context, msg Message) error
}

// Source pulls messages from a transport and hands them to a Sink.
type Source interface {
	Name() string
	// Consume blocks until ctx is done or the transport fails.
	Consume(ctx context.Context, sink Sink) error
	Close() error
}
