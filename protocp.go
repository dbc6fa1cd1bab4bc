package puma

import (
	"time"

	"github.com/luno/puma/pumapb"
)

func infoToProto(i BinlogInfo) *pumapb.BinlogInfo {
	return &pumapb.BinlogInfo{
		ServerId:       i.ServerID,
		BinlogFile:     i.BinlogFile,
		BinlogPosition: i.BinlogPosition,
		EventIndex:     int64(i.EventIndex),
		Timestamp:      i.Timestamp,
		Gtid:           i.GTID,
	}
}

func infoFromProto(i *pumapb.BinlogInfo) BinlogInfo {
	if i == nil {
		return BinlogInfo{}
	}
	return BinlogInfo{
		ServerID:       i.ServerId,
		BinlogFile:     i.BinlogFile,
		BinlogPosition: i.BinlogPosition,
		EventIndex:     int(i.EventIndex),
		Timestamp:      i.Timestamp,
		GTID:           i.Gtid,
	}
}

func subscriptionToProto(cfg StreamConfig) *pumapb.Subscription {
	return &pumapb.Subscription{
		ClientName:  cfg.ClientName,
		Database:    cfg.Database,
		Tables:      cfg.Tables,
		Dml:         cfg.DML,
		Ddl:         cfg.DDL,
		Transaction: cfg.Transaction,
	}
}

// SubscriptionFromProto returns the stream config sent by a client. The
// router is not part of the wire format.
func SubscriptionFromProto(s *pumapb.Subscription) StreamConfig {
	if s == nil {
		return StreamConfig{}
	}
	return StreamConfig{
		ClientName:  s.ClientName,
		Database:    s.Database,
		Tables:      s.Tables,
		DML:         s.Dml,
		DDL:         s.Ddl,
		Transaction: s.Transaction,
	}
}

func headerFromProto(e *pumapb.Event) EventHeader {
	h := EventHeader{
		Database: e.Database,
		Table:    e.Table,
		Info:     infoFromProto(e.Info),
	}
	if e.ExecuteTime != 0 {
		h.ExecuteTime = time.UnixMilli(e.ExecuteTime)
	}
	return h
}

// EventFromProto decodes a wire event. Kinds this package does not know
// decode to *UnparsedEvent.
func EventFromProto(e *pumapb.Event) Event {
	h := headerFromProto(e)

	switch e.Kind {
	case pumapb.KindRowChange:
		cols := make([]Column, 0, len(e.Columns))
		for _, c := range e.Columns {
			col := Column{Name: c.Name}
			if c.HasBefore {
				col.Before = nonNil(c.Before)
			}
			if c.HasAfter {
				col.After = nonNil(c.After)
			}
			cols = append(cols, col)
		}
		return &RowChangeEvent{
			EventHeader: h,
			Action:      RowAction(e.Action),
			Columns:     cols,
		}
	case pumapb.KindDDL:
		return &DDLEvent{EventHeader: h, SQL: e.Sql}
	case pumapb.KindTransaction:
		return &TransactionEvent{EventHeader: h, Begin: e.Begin}
	case pumapb.KindGTID:
		return &GTIDEvent{EventHeader: h, GTID: e.Gtid}
	default:
		return &UnparsedEvent{
			EventHeader: h,
			RawType:     int(e.RawType),
			Raw:         e.Raw,
		}
	}
}

// EventToProto encodes an event for the wire.
func EventToProto(e Event) *pumapb.Event {
	h := e.Header()
	pb := &pumapb.Event{
		Database: h.Database,
		Table:    h.Table,
		Info:     infoToProto(h.Info),
	}
	if !h.ExecuteTime.IsZero() {
		pb.ExecuteTime = h.ExecuteTime.UnixMilli()
	}

	switch e := e.(type) {
	case *RowChangeEvent:
		pb.Kind = pumapb.KindRowChange
		pb.Action = int32(e.Action)
		for _, c := range e.Columns {
			pb.Columns = append(pb.Columns, &pumapb.Column{
				Name:      c.Name,
				Before:    c.Before,
				After:     c.After,
				HasBefore: c.Before != nil,
				HasAfter:  c.After != nil,
			})
		}
	case *DDLEvent:
		pb.Kind = pumapb.KindDDL
		pb.Sql = e.SQL
	case *TransactionEvent:
		pb.Kind = pumapb.KindTransaction
		pb.Begin = e.Begin
	case *GTIDEvent:
		pb.Kind = pumapb.KindGTID
		pb.Gtid = e.GTID
	case *UnparsedEvent:
		pb.Kind = pumapb.KindUnparsed
		pb.RawType = int32(e.RawType)
		pb.Raw = e.Raw
	}
	return pb
}

func messageFromProto(res *pumapb.FetchResponse) *BinlogMessage {
	msg := &BinlogMessage{
		Events:         make([]Event, 0, len(res.Events)),
		LastBinlogInfo: infoFromProto(res.LastBinlogInfo),
	}
	for _, e := range res.Events {
		msg.Events = append(msg.Events, EventFromProto(e))
	}
	return msg
}

// MessageToProto encodes a fetched batch for the wire.
func MessageToProto(msg *BinlogMessage) *pumapb.FetchResponse {
	res := new(pumapb.FetchResponse)
	if msg == nil {
		return res
	}
	for _, e := range msg.Events {
		res.Events = append(res.Events, EventToProto(e))
	}
	if !msg.LastBinlogInfo.IsZero() {
		res.LastBinlogInfo = infoToProto(msg.LastBinlogInfo)
	}
	return res
}

// InfoFromProto decodes a wire position. A nil position is the zero
// position.
func InfoFromProto(i *pumapb.BinlogInfo) BinlogInfo {
	return infoFromProto(i)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
