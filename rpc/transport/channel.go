package transport

import (
	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/protocol"
)

// Channel is a handle to one channel of a transport. It carries no state of its
// own, every method queues exactly one frame through the transport.
type Channel struct {
	ID uint16
	t  *Transport
}

// QueueOptions holds the flags of queue.declare
type QueueOptions struct {
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Arguments  codec.Table
}

// Transport returns the transport the channel belongs to
func (ch *Channel) Transport() *Transport { return ch.t }

// Open sends channel.open, the reply is a *codec.ChannelOpenOk
func (ch *Channel) Open(name string) (*Correlator, error) {
	return ch.t.call(func(conn *protocol.Connection) (protocol.RequestID, error) {
		return conn.ChannelOpen(ch.ID, name)
	})
}

// DeclareQueue declares a queue, the reply is a *codec.QueueDeclareOk
func (ch *Channel) DeclareQueue(name string, opts QueueOptions) (*Correlator, error) {
	return ch.invoke(&codec.QueueDeclare{
		Queue:      name,
		Passive:    opts.Passive,
		Durable:    opts.Durable,
		Exclusive:  opts.Exclusive,
		AutoDelete: opts.AutoDelete,
		Arguments:  opts.Arguments,
	})
}

// DeleteQueue deletes a queue, the reply is a *codec.QueueDeleteOk
func (ch *Channel) DeleteQueue(name string, ifUnused, ifEmpty bool) (*Correlator, error) {
	return ch.invoke(&codec.QueueDelete{Queue: name, IfUnused: ifUnused, IfEmpty: ifEmpty})
}

// Close closes the channel, its id can be reused once the correlator finished
func (ch *Channel) Close() (*Correlator, error) {
	return ch.invoke(&codec.ChannelClose{ReplyCode: 200, ReplyText: "channel closed by client"})
}

func (ch *Channel) invoke(m codec.Method) (*Correlator, error) {
	return ch.t.call(func(conn *protocol.Connection) (protocol.RequestID, error) {
		return conn.Call(ch.ID, m)
	})
}
