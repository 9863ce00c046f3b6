package codec

import "fmt"

// MethodID identifies a method by class id (high 16 bits) and method id (low 16 bits)
type MethodID uint32

// NewMethodID combines a class id and a method id
func NewMethodID(class, method uint16) MethodID { return MethodID(uint32(class)<<16 | uint32(method)) }

func (id MethodID) Class() uint16 { return uint16(id >> 16) }
func (id MethodID) Method() uint16 { return uint16(id) }

func (id MethodID) String() string {
	if name, ok := methodNames[id]; ok {
		return name
	}
	return fmt.Sprintf("method(%d,%d)", id.Class(), id.Method())
}

// class ids
const (
	ClassConnection uint16 = 10
	ClassChannel    uint16 = 20
	ClassQueue      uint16 = 50
)

var (
	MethodConnectionStart   = NewMethodID(ClassConnection, 10)
	MethodConnectionStartOk = NewMethodID(ClassConnection, 11)
	MethodConnectionTune    = NewMethodID(ClassConnection, 30)
	MethodConnectionTuneOk  = NewMethodID(ClassConnection, 31)
	MethodConnectionOpen    = NewMethodID(ClassConnection, 40)
	MethodConnectionOpenOk  = NewMethodID(ClassConnection, 41)
	MethodConnectionClose   = NewMethodID(ClassConnection, 50)
	MethodConnectionCloseOk = NewMethodID(ClassConnection, 51)
	MethodChannelOpen       = NewMethodID(ClassChannel, 10)
	MethodChannelOpenOk     = NewMethodID(ClassChannel, 11)
	MethodChannelClose      = NewMethodID(ClassChannel, 40)
	MethodChannelCloseOk    = NewMethodID(ClassChannel, 41)
	MethodQueueDeclare      = NewMethodID(ClassQueue, 10)
	MethodQueueDeclareOk    = NewMethodID(ClassQueue, 11)
	MethodQueueDelete       = NewMethodID(ClassQueue, 40)
	MethodQueueDeleteOk     = NewMethodID(ClassQueue, 41)
)

var methodNames = map[MethodID]string{
	MethodConnectionStart:   "connection.start",
	MethodConnectionStartOk: "connection.start-ok",
	MethodConnectionTune:    "connection.tune",
	MethodConnectionTuneOk:  "connection.tune-ok",
	MethodConnectionOpen:    "connection.open",
	MethodConnectionOpenOk:  "connection.open-ok",
	MethodConnectionClose:   "connection.close",
	MethodConnectionCloseOk: "connection.close-ok",
	MethodChannelOpen:       "channel.open",
	MethodChannelOpenOk:     "channel.open-ok",
	MethodChannelClose:      "channel.close",
	MethodChannelCloseOk:    "channel.close-ok",
	MethodQueueDeclare:      "queue.declare",
	MethodQueueDeclareOk:    "queue.declare-ok",
	MethodQueueDelete:       "queue.delete",
	MethodQueueDeleteOk:     "queue.delete-ok",
}

// replies maps every synchronous request to the reply that completes it
var replies = map[MethodID]MethodID{
	MethodConnectionStart: MethodConnectionStartOk,
	MethodConnectionTune:  MethodConnectionTuneOk,
	MethodConnectionOpen:  MethodConnectionOpenOk,
	MethodConnectionClose: MethodConnectionCloseOk,
	MethodChannelOpen:     MethodChannelOpenOk,
	MethodChannelClose:    MethodChannelCloseOk,
	MethodQueueDeclare:    MethodQueueDeclareOk,
	MethodQueueDelete:     MethodQueueDeleteOk,
}

// ExpectedReply returns the reply method for a synchronous request.
// Requests sent with the no-wait flag set have no reply.
func ExpectedReply(m Method) (MethodID, bool) {
	if nw, ok := m.(interface{ noWait() bool }); ok && nw.noWait() {
		return 0, false
	}
	reply, ok := replies[m.ID()]
	return reply, ok
}

// Method is one AMQP method carried in a method frame
type Method interface {
	ID() MethodID
	appendArgs(dst []byte) ([]byte, error)
	readArgs(r *reader)
}

// newMethod returns an empty method value for decoding
func newMethod(id MethodID) (Method, bool) {
	switch id {
	case MethodConnectionStart:
		return &ConnectionStart{}, true
	case MethodConnectionStartOk:
		return &ConnectionStartOk{}, true
	case MethodConnectionTune:
		return &ConnectionTune{}, true
	case MethodConnectionTuneOk:
		return &ConnectionTuneOk{}, true
	case MethodConnectionOpen:
		return &ConnectionOpen{}, true
	case MethodConnectionOpenOk:
		return &ConnectionOpenOk{}, true
	case MethodConnectionClose:
		return &ConnectionClose{}, true
	case MethodConnectionCloseOk:
		return &ConnectionCloseOk{}, true
	case MethodChannelOpen:
		return &ChannelOpen{}, true
	case MethodChannelOpenOk:
		return &ChannelOpenOk{}, true
	case MethodChannelClose:
		return &ChannelClose{}, true
	case MethodChannelCloseOk:
		return &ChannelCloseOk{}, true
	case MethodQueueDeclare:
		return &QueueDeclare{}, true
	case MethodQueueDeclareOk:
		return &QueueDeclareOk{}, true
	case MethodQueueDelete:
		return &QueueDelete{}, true
	case MethodQueueDeleteOk:
		return &QueueDeleteOk{}, true
	}
	return nil, false
}

// --------------------------------------------------------------------------
// connection class
// --------------------------------------------------------------------------

type ConnectionStart struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties Table
	Mechanisms       string
	Locales          string
}

func (m *ConnectionStart) ID() MethodID { return MethodConnectionStart }

func (m *ConnectionStart) appendArgs(dst []byte) ([]byte, error) {
	dst = appendOctet(dst, m.VersionMajor)
	dst = appendOctet(dst, m.VersionMinor)
	dst, err := appendTable(dst, m.ServerProperties)
	if err != nil {
		return dst, err
	}
	dst = appendLongStr(dst, []byte(m.Mechanisms))
	return appendLongStr(dst, []byte(m.Locales)), nil
}

func (m *ConnectionStart) readArgs(r *reader) {
	m.VersionMajor = r.octet()
	m.VersionMinor = r.octet()
	m.ServerProperties = r.table()
	m.Mechanisms = string(r.longStr())
	m.Locales = string(r.longStr())
}

type ConnectionStartOk struct {
	ClientProperties Table
	Mechanism        string
	Response         []byte
	Locale           string
}

func (m *ConnectionStartOk) ID() MethodID { return MethodConnectionStartOk }

func (m *ConnectionStartOk) appendArgs(dst []byte) ([]byte, error) {
	dst, err := appendTable(dst, m.ClientProperties)
	if err != nil {
		return dst, err
	}
	if dst, err = appendShortStr(dst, m.Mechanism); err != nil {
		return dst, err
	}
	dst = appendLongStr(dst, m.Response)
	return appendShortStr(dst, m.Locale)
}

func (m *ConnectionStartOk) readArgs(r *reader) {
	m.ClientProperties = r.table()
	m.Mechanism = r.shortStr()
	m.Response = r.longStr()
	m.Locale = r.shortStr()
}

type ConnectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTune) ID() MethodID { return MethodConnectionTune }

func (m *ConnectionTune) appendArgs(dst []byte) ([]byte, error) {
	dst = appendShort(dst, m.ChannelMax)
	dst = appendLong(dst, m.FrameMax)
	return appendShort(dst, m.Heartbeat), nil
}

func (m *ConnectionTune) readArgs(r *reader) {
	m.ChannelMax = r.short()
	m.FrameMax = r.long()
	m.Heartbeat = r.short()
}

type ConnectionTuneOk struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTuneOk) ID() MethodID { return MethodConnectionTuneOk }

func (m *ConnectionTuneOk) appendArgs(dst []byte) ([]byte, error) {
	dst = appendShort(dst, m.ChannelMax)
	dst = appendLong(dst, m.FrameMax)
	return appendShort(dst, m.Heartbeat), nil
}

func (m *ConnectionTuneOk) readArgs(r *reader) {
	m.ChannelMax = r.short()
	m.FrameMax = r.long()
	m.Heartbeat = r.short()
}

type ConnectionOpen struct {
	VirtualHost string
}

func (m *ConnectionOpen) ID() MethodID { return MethodConnectionOpen }

func (m *ConnectionOpen) appendArgs(dst []byte) ([]byte, error) {
	dst, err := appendShortStr(dst, m.VirtualHost)
	if err != nil {
		return dst, err
	}
	dst = appendOctet(dst, 0)          // reserved capabilities (empty short string)
	return appendBits(dst, false), nil // reserved insist bit
}

func (m *ConnectionOpen) readArgs(r *reader) {
	m.VirtualHost = r.shortStr()
	_ = r.shortStr()
	var insist bool
	r.bits(&insist)
}

type ConnectionOpenOk struct{}

func (m *ConnectionOpenOk) ID() MethodID { return MethodConnectionOpenOk }

func (m *ConnectionOpenOk) appendArgs(dst []byte) ([]byte, error) {
	return appendOctet(dst, 0), nil // reserved known-hosts
}

func (m *ConnectionOpenOk) readArgs(r *reader) { _ = r.shortStr() }

type ConnectionClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ConnectionClose) ID() MethodID { return MethodConnectionClose }

func (m *ConnectionClose) appendArgs(dst []byte) ([]byte, error) {
	return appendClose(dst, m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID)
}

func (m *ConnectionClose) readArgs(r *reader) {
	m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID = readClose(r)
}

type ConnectionCloseOk struct{}

func (m *ConnectionCloseOk) ID() MethodID { return MethodConnectionCloseOk }
func (m *ConnectionCloseOk) appendArgs(dst []byte) ([]byte, error) { return dst, nil }
func (m *ConnectionCloseOk) readArgs(*reader) {}

// --------------------------------------------------------------------------
// channel class
// --------------------------------------------------------------------------

type ChannelOpen struct{}

func (m *ChannelOpen) ID() MethodID { return MethodChannelOpen }

func (m *ChannelOpen) appendArgs(dst []byte) ([]byte, error) {
	return appendOctet(dst, 0), nil // reserved out-of-band
}

func (m *ChannelOpen) readArgs(r *reader) { _ = r.shortStr() }

type ChannelOpenOk struct{}

func (m *ChannelOpenOk) ID() MethodID { return MethodChannelOpenOk }

func (m *ChannelOpenOk) appendArgs(dst []byte) ([]byte, error) {
	return appendLongStr(dst, nil), nil // reserved channel-id
}

func (m *ChannelOpenOk) readArgs(r *reader) { _ = r.longStr() }

type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ChannelClose) ID() MethodID { return MethodChannelClose }

func (m *ChannelClose) appendArgs(dst []byte) ([]byte, error) {
	return appendClose(dst, m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID)
}

func (m *ChannelClose) readArgs(r *reader) {
	m.ReplyCode, m.ReplyText, m.ClassID, m.MethodID = readClose(r)
}

type ChannelCloseOk struct{}

func (m *ChannelCloseOk) ID() MethodID { return MethodChannelCloseOk }
func (m *ChannelCloseOk) appendArgs(dst []byte) ([]byte, error) { return dst, nil }
func (m *ChannelCloseOk) readArgs(*reader) {}

func appendClose(dst []byte, code uint16, text string, class, method uint16) ([]byte, error) {
	dst = appendShort(dst, code)
	dst, err := appendShortStr(dst, text)
	if err != nil {
		return dst, err
	}
	dst = appendShort(dst, class)
	return appendShort(dst, method), nil
}

func readClose(r *reader) (code uint16, text string, class, method uint16) {
	code = r.short()
	text = r.shortStr()
	class = r.short()
	method = r.short()
	return
}

// --------------------------------------------------------------------------
// queue class
// --------------------------------------------------------------------------

type QueueDeclare struct {
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  Table
}

func (m *QueueDeclare) ID() MethodID { return MethodQueueDeclare }
func (m *QueueDeclare) noWait() bool { return m.NoWait }

func (m *QueueDeclare) appendArgs(dst []byte) ([]byte, error) {
	dst = appendShort(dst, 0) // reserved ticket
	dst, err := appendShortStr(dst, m.Queue)
	if err != nil {
		return dst, err
	}
	dst = appendBits(dst, m.Passive, m.Durable, m.Exclusive, m.AutoDelete, m.NoWait)
	return appendTable(dst, m.Arguments)
}

func (m *QueueDeclare) readArgs(r *reader) {
	_ = r.short()
	m.Queue = r.shortStr()
	r.bits(&m.Passive, &m.Durable, &m.Exclusive, &m.AutoDelete, &m.NoWait)
	m.Arguments = r.table()
}

type QueueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (m *QueueDeclareOk) ID() MethodID { return MethodQueueDeclareOk }

func (m *QueueDeclareOk) appendArgs(dst []byte) ([]byte, error) {
	dst, err := appendShortStr(dst, m.Queue)
	if err != nil {
		return dst, err
	}
	dst = appendLong(dst, m.MessageCount)
	return appendLong(dst, m.ConsumerCount), nil
}

func (m *QueueDeclareOk) readArgs(r *reader) {
	m.Queue = r.shortStr()
	m.MessageCount = r.long()
	m.ConsumerCount = r.long()
}

type QueueDelete struct {
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (m *QueueDelete) ID() MethodID { return MethodQueueDelete }
func (m *QueueDelete) noWait() bool { return m.NoWait }

func (m *QueueDelete) appendArgs(dst []byte) ([]byte, error) {
	dst = appendShort(dst, 0) // reserved ticket
	dst, err := appendShortStr(dst, m.Queue)
	if err != nil {
		return dst, err
	}
	return appendBits(dst, m.IfUnused, m.IfEmpty, m.NoWait), nil
}

func (m *QueueDelete) readArgs(r *reader) {
	_ = r.short()
	m.Queue = r.shortStr()
	r.bits(&m.IfUnused, &m.IfEmpty, &m.NoWait)
}

type QueueDeleteOk struct {
	MessageCount uint32
}

func (m *QueueDeleteOk) ID() MethodID { return MethodQueueDeleteOk }

func (m *QueueDeleteOk) appendArgs(dst []byte) ([]byte, error) {
	return appendLong(dst, m.MessageCount), nil
}

func (m *QueueDeleteOk) readArgs(r *reader) { m.MessageCount = r.long() }
