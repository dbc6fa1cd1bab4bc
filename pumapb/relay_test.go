package pumapb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestFetchRequest(t *testing.T) {
	req := &FetchRequest{
		Subscription: &Subscription{
			ClientName: "c",
			Database:   "db",
			Tables:     []string{"a", "b"},
			Dml:        true,
			Ddl:        true,
		},
		BatchSize: 100,
		TimeoutMs: 1500,
	}

	b, err := req.Marshal()
	require.NoError(t, err)

	var actual FetchRequest
	require.NoError(t, actual.Unmarshal(b))
	assert.Equal(t, req, &actual)
}

func TestFetchResponse(t *testing.T) {
	res := &FetchResponse{
		Events: []*Event{
			{
				Kind:     KindRowChange,
				Database: "db",
				Table:    "t",
				Info:     &BinlogInfo{ServerId: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: 4},
				Action:   2,
				Columns: []*Column{
					{Name: "id", Before: []byte("1"), After: []byte("1"), HasBefore: true, HasAfter: true},
				},
			},
			{Kind: KindUnparsed, RawType: -1, Raw: []byte{0xff}},
		},
		LastBinlogInfo: &BinlogInfo{ServerId: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: 4},
	}

	b, err := res.Marshal()
	require.NoError(t, err)

	var actual FetchResponse
	require.NoError(t, actual.Unmarshal(b))
	assert.Equal(t, res, &actual)
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b, err := (&BinlogInfo{BinlogFile: "f", BinlogPosition: 9}).Marshal()
	require.NoError(t, err)

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from the future")
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	var actual BinlogInfo
	require.NoError(t, actual.Unmarshal(b))
	assert.Equal(t, BinlogInfo{BinlogFile: "f", BinlogPosition: 9}, actual)
}

func TestWrongWireType(t *testing.T) {
	b := protowire.AppendTag(nil, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var actual Subscription
	require.Error(t, actual.Unmarshal(b))
}

func TestTruncated(t *testing.T) {
	b, err := (&Trace{TraceId: "4bf92f3577b34da6a3ce929d0e0e4736", SpanId: "00f067aa0ba902b7"}).Marshal()
	require.NoError(t, err)

	var actual Trace
	require.Error(t, actual.Unmarshal(b[:len(b)-2]))
}

func TestCodec(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	b, err := c.Marshal(&AckRequest{
		Subscription: &Subscription{ClientName: "c"},
		BinlogInfo:   &BinlogInfo{BinlogFile: "f", BinlogPosition: 1},
	})
	require.NoError(t, err)

	var actual AckRequest
	require.NoError(t, c.Unmarshal(b, &actual))
	assert.Equal(t, "c", actual.Subscription.ClientName)
	assert.Equal(t, int64(1), actual.BinlogInfo.BinlogPosition)

	_, err = c.Marshal("not a message")
	require.Error(t, err)
	require.Error(t, c.Unmarshal(b, new(string)))
}
