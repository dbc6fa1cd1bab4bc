package puma

import (
	"time"
)

// EventKind identifies the variant of an Event.
type EventKind int

const (
	EventKindUnknown     EventKind = 0
	EventKindRowChange   EventKind = 1
	EventKindDDL         EventKind = 2
	EventKindTransaction EventKind = 3
	EventKindGTID        EventKind = 4
	EventKindUnparsed    EventKind = 5
)

func (k EventKind) String() string {
	switch k {
	case EventKindRowChange:
		return "row_change"
	case EventKindDDL:
		return "ddl"
	case EventKindTransaction:
		return "transaction"
	case EventKindGTID:
		return "gtid"
	case EventKindUnparsed:
		return "unparsed"
	}
	return "unknown"
}

// Event is a decoded binlog event. The set of implementations is closed:
// *RowChangeEvent, *DDLEvent, *TransactionEvent, *GTIDEvent and
// *UnparsedEvent. Use a type switch to handle them.
type Event interface {
	Kind() EventKind
	Header() EventHeader
	isEvent()
}

// EventHeader holds the fields common to all events.
type EventHeader struct {
	Database    string
	Table       string
	Info        BinlogInfo
	ExecuteTime time.Time
}

// RowAction is the kind of row mutation.
type RowAction int

const (
	RowActionUnknown RowAction = 0
	RowActionInsert  RowAction = 1
	RowActionUpdate  RowAction = 2
	RowActionDelete  RowAction = 3
)

func (a RowAction) String() string {
	switch a {
	case RowActionInsert:
		return "insert"
	case RowActionUpdate:
		return "update"
	case RowActionDelete:
		return "delete"
	}
	return "unknown"
}

// Column is a column of a changed row. Before is nil for inserts and After
// is nil for deletes.
type Column struct {
	Name   string
	Before []byte
	After  []byte
}

// RowChangeEvent is an insert, update or delete of a single row.
type RowChangeEvent struct {
	EventHeader
	Action  RowAction
	Columns []Column
}

// DDLEvent is a schema change statement.
type DDLEvent struct {
	EventHeader
	SQL string
}

// TransactionEvent marks a transaction boundary. Begin is false for commits.
type TransactionEvent struct {
	EventHeader
	Begin bool
}

// GTIDEvent carries the global transaction id of the next transaction.
type GTIDEvent struct {
	EventHeader
	GTID string
}

// UnparsedEvent is an event whose kind this client does not decode, for
// example anonymous GTID events. The raw payload is retained so callers can
// detect and inspect it.
type UnparsedEvent struct {
	EventHeader

	// RawType is the MySQL binlog event type code, if known.
	RawType int
	Raw     []byte
}

func (e *RowChangeEvent) Kind() EventKind   { return EventKindRowChange }
func (e *DDLEvent) Kind() EventKind         { return EventKindDDL }
func (e *TransactionEvent) Kind() EventKind { return EventKindTransaction }
func (e *GTIDEvent) Kind() EventKind        { return EventKindGTID }
func (e *UnparsedEvent) Kind() EventKind    { return EventKindUnparsed }

func (e *RowChangeEvent) Header() EventHeader   { return e.EventHeader }
func (e *DDLEvent) Header() EventHeader         { return e.EventHeader }
func (e *TransactionEvent) Header() EventHeader { return e.EventHeader }
func (e *GTIDEvent) Header() EventHeader        { return e.EventHeader }
func (e *UnparsedEvent) Header() EventHeader    { return e.EventHeader }

func (*RowChangeEvent) isEvent()   {}
func (*DDLEvent) isEvent()         {}
func (*TransactionEvent) isEvent() {}
func (*GTIDEvent) isEvent()        {}
func (*UnparsedEvent) isEvent()    {}

// MySQL binlog event type codes that relays forward without decoding.
const (
	RawTypeAnonymousGTID = 34
	RawTypePreviousGTIDs = 35
)
