// Package pumapb contains the relay wire messages, the gRPC codec used to
// carry them and the Relay service stubs. See relay.proto for the wire
// reference.
package pumapb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

type BinlogInfo struct {
	ServerId       int64
	BinlogFile     string
	BinlogPosition int64
	EventIndex     int64
	Timestamp      int64
	Gtid           string
}

func (m *BinlogInfo) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.ServerId))
	b = appendString(b, 2, m.BinlogFile)
	b = appendVarint(b, 3, uint64(m.BinlogPosition))
	b = appendVarint(b, 4, uint64(m.EventIndex))
	b = appendVarint(b, 5, uint64(m.Timestamp))
	b = appendString(b, 6, m.Gtid)
	return b
}

func (m *BinlogInfo) Marshal() ([]byte, error) {
	return m.append(nil), nil
}

func (m *BinlogInfo) Unmarshal(b []byte) error {
	*m = BinlogInfo{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(typ, b, &m.ServerId)
		case 2:
			return consumeString(typ, b, &m.BinlogFile)
		case 3:
			return consumeInt64(typ, b, &m.BinlogPosition)
		case 4:
			return consumeInt64(typ, b, &m.EventIndex)
		case 5:
			return consumeInt64(typ, b, &m.Timestamp)
		case 6:
			return consumeString(typ, b, &m.Gtid)
		}
		return skipField(num, typ, b)
	})
}

type Column struct {
	Name      string
	Before    []byte
	After     []byte
	HasBefore bool
	HasAfter  bool
}

func (m *Column) append(b []byte) []byte {
	b = appendString(b, 1, m.Name)
	b = appendBytes(b, 2, m.Before)
	b = appendBytes(b, 3, m.After)
	b = appendBool(b, 4, m.HasBefore)
	b = appendBool(b, 5, m.HasAfter)
	return b
}

func (m *Column) Marshal() ([]byte, error) {
	return m.append(nil), nil
}

func (m *Column) Unmarshal(b []byte) error {
	*m = Column{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Name)
		case 2:
			return consumeBytes(typ, b, &m.Before)
		case 3:
			return consumeBytes(typ, b, &m.After)
		case 4:
			return consumeBool(typ, b, &m.HasBefore)
		case 5:
			return consumeBool(typ, b, &m.HasAfter)
		}
		return skipField(num, typ, b)
	})
}

// Event kinds on the wire. Unknown kinds must be tolerated by readers.
const (
	KindUnknown     int32 = 0
	KindRowChange   int32 = 1
	KindDDL         int32 = 2
	KindTransaction int32 = 3
	KindGTID        int32 = 4
	KindUnparsed    int32 = 5
)

type Event struct {
	Kind        int32
	Database    string
	Table       string
	Info        *BinlogInfo
	ExecuteTime int64
	Action      int32
	Sql         string
	Gtid        string
	Columns     []*Column
	Raw         []byte
	Begin       bool
	RawType     int32
}

func (m *Event) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(int64(m.Kind)))
	b = appendString(b, 2, m.Database)
	b = appendString(b, 3, m.Table)
	if m.Info != nil {
		b = appendMessage(b, 4, m.Info.append(nil))
	}
	b = appendVarint(b, 5, uint64(m.ExecuteTime))
	b = appendVarint(b, 6, uint64(int64(m.Action)))
	b = appendString(b, 7, m.Sql)
	b = appendString(b, 8, m.Gtid)
	for _, c := range m.Columns {
		b = appendMessage(b, 9, c.append(nil))
	}
	b = appendBytes(b, 10, m.Raw)
	b = appendBool(b, 11, m.Begin)
	b = appendVarint(b, 12, uint64(int64(m.RawType)))
	return b
}

func (m *Event) Marshal() ([]byte, error) {
	return m.append(nil), nil
}

func (m *Event) Unmarshal(b []byte) error {
	*m = Event{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &m.Kind)
		case 2:
			return consumeString(typ, b, &m.Database)
		case 3:
			return consumeString(typ, b, &m.Table)
		case 4:
			m.Info = new(BinlogInfo)
			return consumeMessage(typ, b, m.Info)
		case 5:
			return consumeInt64(typ, b, &m.ExecuteTime)
		case 6:
			return consumeInt32(typ, b, &m.Action)
		case 7:
			return consumeString(typ, b, &m.Sql)
		case 8:
			return consumeString(typ, b, &m.Gtid)
		case 9:
			c := new(Column)
			n, err := consumeMessage(typ, b, c)
			if err != nil {
				return 0, err
			}
			m.Columns = append(m.Columns, c)
			return n, nil
		case 10:
			return consumeBytes(typ, b, &m.Raw)
		case 11:
			return consumeBool(typ, b, &m.Begin)
		case 12:
			return consumeInt32(typ, b, &m.RawType)
		}
		return skipField(num, typ, b)
	})
}

type Subscription struct {
	ClientName  string
	Database    string
	Tables      []string
	Dml         bool
	Ddl         bool
	Transaction bool
}

func (m *Subscription) append(b []byte) []byte {
	b = appendString(b, 1, m.ClientName)
	b = appendString(b, 2, m.Database)
	for _, t := range m.Tables {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, t)
	}
	b = appendBool(b, 4, m.Dml)
	b = appendBool(b, 5, m.Ddl)
	b = appendBool(b, 6, m.Transaction)
	return b
}

func (m *Subscription) Marshal() ([]byte, error) {
	return m.append(nil), nil
}

func (m *Subscription) Unmarshal(b []byte) error {
	*m = Subscription{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ClientName)
		case 2:
			return consumeString(typ, b, &m.Database)
		case 3:
			var t string
			n, err := consumeString(typ, b, &t)
			if err != nil {
				return 0, err
			}
			m.Tables = append(m.Tables, t)
			return n, nil
		case 4:
			return consumeBool(typ, b, &m.Dml)
		case 5:
			return consumeBool(typ, b, &m.Ddl)
		case 6:
			return consumeBool(typ, b, &m.Transaction)
		}
		return skipField(num, typ, b)
	})
}

type FetchRequest struct {
	Subscription *Subscription
	BatchSize    int32
	TimeoutMs    int64
}

func (m *FetchRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Subscription != nil {
		b = appendMessage(b, 1, m.Subscription.append(nil))
	}
	b = appendVarint(b, 2, uint64(int64(m.BatchSize)))
	b = appendVarint(b, 3, uint64(m.TimeoutMs))
	return b, nil
}

func (m *FetchRequest) Unmarshal(b []byte) error {
	*m = FetchRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Subscription = new(Subscription)
			return consumeMessage(typ, b, m.Subscription)
		case 2:
			return consumeInt32(typ, b, &m.BatchSize)
		case 3:
			return consumeInt64(typ, b, &m.TimeoutMs)
		}
		return skipField(num, typ, b)
	})
}

type FetchResponse struct {
	Events         []*Event
	LastBinlogInfo *BinlogInfo
}

func (m *FetchResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, e := range m.Events {
		b = appendMessage(b, 1, e.append(nil))
	}
	if m.LastBinlogInfo != nil {
		b = appendMessage(b, 2, m.LastBinlogInfo.append(nil))
	}
	return b, nil
}

func (m *FetchResponse) Unmarshal(b []byte) error {
	*m = FetchResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			e := new(Event)
			n, err := consumeMessage(typ, b, e)
			if err != nil {
				return 0, err
			}
			m.Events = append(m.Events, e)
			return n, nil
		case 2:
			m.LastBinlogInfo = new(BinlogInfo)
			return consumeMessage(typ, b, m.LastBinlogInfo)
		}
		return skipField(num, typ, b)
	})
}

// positionRequest is the shared body of AckRequest and RollbackRequest.
type positionRequest struct {
	Subscription *Subscription
	BinlogInfo   *BinlogInfo
}

func (m *positionRequest) marshal() []byte {
	var b []byte
	if m.Subscription != nil {
		b = appendMessage(b, 1, m.Subscription.append(nil))
	}
	if m.BinlogInfo != nil {
		b = appendMessage(b, 2, m.BinlogInfo.append(nil))
	}
	return b
}

func (m *positionRequest) unmarshal(b []byte) error {
	*m = positionRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Subscription = new(Subscription)
			return consumeMessage(typ, b, m.Subscription)
		case 2:
			m.BinlogInfo = new(BinlogInfo)
			return consumeMessage(typ, b, m.BinlogInfo)
		}
		return skipField(num, typ, b)
	})
}

type AckRequest struct {
	Subscription *Subscription
	BinlogInfo   *BinlogInfo
}

func (m *AckRequest) Marshal() ([]byte, error) {
	return (*positionRequest)(m).marshal(), nil
}

func (m *AckRequest) Unmarshal(b []byte) error {
	return (*positionRequest)(m).unmarshal(b)
}

type RollbackRequest struct {
	Subscription *Subscription
	BinlogInfo   *BinlogInfo
}

func (m *RollbackRequest) Marshal() ([]byte, error) {
	return (*positionRequest)(m).marshal(), nil
}

func (m *RollbackRequest) Unmarshal(b []byte) error {
	return (*positionRequest)(m).unmarshal(b)
}

type AckResponse struct{}

func (m *AckResponse) Marshal() ([]byte, error) { return nil, nil }

func (m *AckResponse) Unmarshal(b []byte) error {
	return consumeFields(b, skipField)
}

type RollbackResponse struct{}

func (m *RollbackResponse) Marshal() ([]byte, error) { return nil, nil }

func (m *RollbackResponse) Unmarshal(b []byte) error {
	return consumeFields(b, skipField)
}

// Trace carries a span context between processes.
type Trace struct {
	TraceId string
	SpanId  string
	Sampled bool
}

func (m *Trace) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.TraceId)
	b = appendString(b, 2, m.SpanId)
	b = appendBool(b, 3, m.Sampled)
	return b, nil
}

func (m *Trace) Unmarshal(b []byte) error {
	*m = Trace{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.TraceId)
		case 2:
			return consumeString(typ, b, &m.SpanId)
		case 3:
			return consumeBool(typ, b, &m.Sampled)
		}
		return skipField(num, typ, b)
	})
}
