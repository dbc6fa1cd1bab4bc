package puma

import (
	"strconv"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// BinlogInfo is a position in a binlog stream. Positions within one stream
// are totally ordered by file, offset and event index.
type BinlogInfo struct {
	ServerID       int64
	BinlogFile     string
	BinlogPosition int64
	EventIndex     int

	// Timestamp is the unix time in seconds of the event at this position.
	Timestamp int64

	// GTID is the global transaction id of the event, if known.
	GTID string
}

// IsZero returns true if the position is unset.
func (i BinlogInfo) IsZero() bool {
	return i == BinlogInfo{}
}

// Compare returns -1, 0 or 1 if i is before, equal to or after o.
// Server id, timestamp and gtid do not take part in the ordering.
func (i BinlogInfo) Compare(o BinlogInfo) int {
	if c := strings.Compare(i.BinlogFile, o.BinlogFile); c != 0 {
		return c
	}
	switch {
	case i.BinlogPosition < o.BinlogPosition:
		return -1
	case i.BinlogPosition > o.BinlogPosition:
		return 1
	case i.EventIndex < o.EventIndex:
		return -1
	case i.EventIndex > o.EventIndex:
		return 1
	}
	return 0
}

const infoSep = "|"

// ErrInvalidBinlogInfo is returned for positions that cannot be stored as
// strings.
var ErrInvalidBinlogInfo = errors.New("invalid binlog info", j.C("ERR_e4b07a9d2c61f358"))

// Validate returns an error if the position cannot be reversed by
// ParseBinlogInfo, which is the case if the file or gtid contain "|".
func (i BinlogInfo) Validate() error {
	if strings.Contains(i.BinlogFile, infoSep) {
		return errors.Wrap(ErrInvalidBinlogInfo, "separator in binlog file",
			j.KS("file", i.BinlogFile))
	}
	if strings.Contains(i.GTID, infoSep) {
		return errors.Wrap(ErrInvalidBinlogInfo, "separator in gtid",
			j.KS("gtid", i.GTID))
	}
	return nil
}

// String returns a format that ParseBinlogInfo reverses if the position is
// valid.
// Ex. 1|mysql-bin.000003|4578|2|1700000000|3e11fa47-71ca-11e1-9e33-c80aa9429562:23
func (i BinlogInfo) String() string {
	if i.IsZero() {
		return ""
	}
	return strings.Join([]string{
		strconv.FormatInt(i.ServerID, 10),
		i.BinlogFile,
		strconv.FormatInt(i.BinlogPosition, 10),
		strconv.Itoa(i.EventIndex),
		strconv.FormatInt(i.Timestamp, 10),
		i.GTID,
	}, infoSep)
}

// ParseBinlogInfo parses the output of BinlogInfo.String. An empty string
// returns the zero position.
func ParseBinlogInfo(s string) (BinlogInfo, error) {
	if s == "" {
		return BinlogInfo{}, nil
	}

	split := strings.Split(s, infoSep)
	if len(split) != 6 {
		return BinlogInfo{}, errors.Wrap(ErrInvalidBinlogInfo, "",
			j.MKV{"info": s, "fields": len(split)})
	}

	var (
		info BinlogInfo
		err  error
	)

	info.ServerID, err = strconv.ParseInt(split[0], 10, 64)
	if err != nil {
		return BinlogInfo{}, errors.Wrap(err, "invalid server id", j.KS("info", s))
	}

	info.BinlogFile = split[1]

	info.BinlogPosition, err = strconv.ParseInt(split[2], 10, 64)
	if err != nil {
		return BinlogInfo{}, errors.Wrap(err, "invalid binlog position", j.KS("info", s))
	}

	info.EventIndex, err = strconv.Atoi(split[3])
	if err != nil {
		return BinlogInfo{}, errors.Wrap(err, "invalid event index", j.KS("info", s))
	}

	info.Timestamp, err = strconv.ParseInt(split[4], 10, 64)
	if err != nil {
		return BinlogInfo{}, errors.Wrap(err, "invalid timestamp", j.KS("info", s))
	}

	info.GTID = split[5]

	return info, nil
}

// BinlogMessage is one fetched batch of events.
type BinlogMessage struct {
	Events []Event

	// LastBinlogInfo is the position of the last event in the batch.
	LastBinlogInfo BinlogInfo
}

// Empty returns true if the batch contains no events.
func (m *BinlogMessage) Empty() bool {
	return m == nil || len(m.Events) == 0
}
