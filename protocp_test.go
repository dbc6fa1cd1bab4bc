package puma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma/pumapb"
)

func TestEventProtoRoundTrip(t *testing.T) {
	h := EventHeader{
		Database: "shop",
		Table:    "orders",
		Info: BinlogInfo{
			ServerID:       3,
			BinlogFile:     "mysql-bin.000002",
			BinlogPosition: 120,
			EventIndex:     1,
			Timestamp:      1700000000,
			GTID:           "3e11fa47-71ca-11e1-9e33-c80aa9429562:23",
		},
	}

	tests := []struct {
		Name  string
		Event Event
	}{
		{
			Name: "insert",
			Event: &RowChangeEvent{EventHeader: h, Action: RowActionInsert, Columns: []Column{
				{Name: "id", After: []byte("1")},
				{Name: "note", After: []byte{}},
			}},
		}, {
			Name: "update",
			Event: &RowChangeEvent{EventHeader: h, Action: RowActionUpdate, Columns: []Column{
				{Name: "status", Before: []byte("new"), After: []byte("paid")},
			}},
		}, {
			Name: "delete",
			Event: &RowChangeEvent{EventHeader: h, Action: RowActionDelete, Columns: []Column{
				{Name: "id", Before: []byte("1")},
			}},
		}, {
			Name:  "ddl",
			Event: &DDLEvent{EventHeader: h, SQL: "alter table orders add column note text"},
		}, {
			Name:  "begin",
			Event: &TransactionEvent{EventHeader: h, Begin: true},
		}, {
			Name:  "commit",
			Event: &TransactionEvent{EventHeader: h},
		}, {
			Name:  "gtid",
			Event: &GTIDEvent{EventHeader: h, GTID: h.Info.GTID},
		}, {
			Name:  "unparsed",
			Event: &UnparsedEvent{EventHeader: h, RawType: RawTypeAnonymousGTID, Raw: []byte{1, 2, 3}},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			b, err := EventToProto(test.Event).Marshal()
			require.NoError(t, err)

			var pb pumapb.Event
			require.NoError(t, pb.Unmarshal(b))

			actual := EventFromProto(&pb)
			assert.Equal(t, test.Event, actual)
			assert.Equal(t, test.Event.Kind(), actual.Kind())
		})
	}
}

func TestEventProtoExecuteTime(t *testing.T) {
	et := time.Date(2024, 3, 1, 12, 30, 15, 250_000_000, time.UTC)
	e := &DDLEvent{EventHeader: EventHeader{Database: "db", ExecuteTime: et}, SQL: "drop table t"}

	pb := EventToProto(e)
	assert.Equal(t, et.UnixMilli(), pb.ExecuteTime)

	actual := EventFromProto(pb)
	assert.True(t, et.Equal(actual.Header().ExecuteTime))
}

func TestEventProtoUnknownKind(t *testing.T) {
	pb := &pumapb.Event{Kind: 42, Database: "db", RawType: 99, Raw: []byte("raw")}

	e := EventFromProto(pb)
	u, ok := e.(*UnparsedEvent)
	require.True(t, ok)
	assert.Equal(t, 99, u.RawType)
	assert.Equal(t, []byte("raw"), u.Raw)
	assert.Equal(t, "db", u.Database)
	assert.True(t, u.ExecuteTime.IsZero())
}

func TestMessageProto(t *testing.T) {
	assert.Equal(t, new(pumapb.FetchResponse), MessageToProto(nil))

	empty := messageFromProto(MessageToProto(new(BinlogMessage)))
	assert.True(t, empty.Empty())
	assert.True(t, empty.LastBinlogInfo.IsZero())

	info := BinlogInfo{ServerID: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: 4}
	msg := &BinlogMessage{
		Events:         []Event{&GTIDEvent{EventHeader: EventHeader{Info: info}, GTID: "uuid:1"}},
		LastBinlogInfo: info,
	}
	assert.Equal(t, msg, messageFromProto(MessageToProto(msg)))
}

func TestSubscriptionProto(t *testing.T) {
	cfg := StreamConfig{
		ClientName:  "c",
		Database:    "db",
		Tables:      []string{"a", "b"},
		DML:         true,
		Transaction: true,
	}
	assert.Equal(t, cfg, SubscriptionFromProto(subscriptionToProto(cfg)))
	assert.Equal(t, StreamConfig{}, SubscriptionFromProto(nil))
}

func TestInfoProtoWideIndex(t *testing.T) {
	info := BinlogInfo{
		ServerID:       3,
		BinlogFile:     "mysql-bin.000002",
		BinlogPosition: 1 << 40,
		EventIndex:     1<<31 + 7,
	}

	b, err := infoToProto(info).Marshal()
	require.NoError(t, err)

	var pb pumapb.BinlogInfo
	require.NoError(t, pb.Unmarshal(b))
	assert.Equal(t, info, infoFromProto(&pb))
}
