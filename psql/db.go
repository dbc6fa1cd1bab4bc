package psql

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/puma"
)

var errCheckpointBehind = errors.New("attempted to set checkpoint before existing checkpoint",
	j.C("ERR_6c0e2b9d4f81a735"))

func getCheckpoint(ctx context.Context, dbc *sql.DB, s schema, id string) (puma.BinlogInfo, time.Time, error) {
	var (
		raw string
		ts  time.Time
	)
	err := dbc.QueryRowContext(ctx, "select "+s.infoField+","+s.timeField+
		" from "+s.name+" where "+s.idField+"=?", id).Scan(&raw, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return puma.BinlogInfo{}, time.Time{}, nil
	} else if err != nil {
		return puma.BinlogInfo{}, time.Time{}, errors.Wrap(err, "query checkpoint error")
	}

	info, err := puma.ParseBinlogInfo(raw)
	if err != nil {
		return puma.BinlogInfo{}, time.Time{}, err
	}
	return info, ts, nil
}

// setCheckpoint moves the consumer's checkpoint forward to info.
func setCheckpoint(ctx context.Context, dbc *sql.DB, s schema, id string, info puma.BinlogInfo) error {
	opts := []errors.Option{j.KS("consumer", id), j.KS("checkpoint", info.String())}

	res, err := dbc.ExecContext(ctx, "update "+s.name+
		" set "+s.fileField+"=?, "+s.positionField+"=?, "+s.indexField+"=?, "+
		s.infoField+"=?, "+s.timeField+"=now(3)"+
		" where "+s.idField+"=?"+
		" and ("+s.fileField+","+s.positionField+","+s.indexField+") < (?,?,?)",
		info.BinlogFile, info.BinlogPosition, info.EventIndex, info.String(), id,
		info.BinlogFile, info.BinlogPosition, info.EventIndex)
	if err != nil {
		return errors.Wrap(err, "set checkpoint error", opts...)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected error", opts...)
	} else if rows > 1 {
		return errors.New("invalid rows affected error", opts...)
	} else if rows == 1 {
		// done
		return nil
	}

	// Insert since rows == 0
	_, err = dbc.ExecContext(ctx, "insert into "+s.name+" set "+s.idField+"=?, "+
		s.fileField+"=?, "+s.positionField+"=?, "+s.indexField+"=?, "+
		s.infoField+"=?, "+s.timeField+"=now(3)",
		id, info.BinlogFile, info.BinlogPosition, info.EventIndex, info.String())
	if isMySQLErrDupEntry(err) {
		existing, updatedAt, getErr := getCheckpoint(ctx, dbc, s, id)
		if getErr != nil {
			return errors.Wrap(err, "set checkpoint error", opts...)
		}
		if existing.Compare(info) == 0 {
			// Same position again.
			return nil
		}
		opts = append(opts, j.MKV{"existing": existing.String(), "updated_at": updatedAt})
		return errors.Wrap(errCheckpointBehind, "", opts...)
	} else if err != nil {
		return errors.Wrap(err, "insert checkpoint error", opts...)
	}

	return nil
}

// isMySQLErrDupEntry returns true if the error is a duplicate key error.
//   - 1062: ER_DUP_ENTRY
func isMySQLErrDupEntry(err error) bool {
	return isMySQLErr(err, 1062)
}

func isMySQLErr(err error, nums ...uint16) bool {
	if err == nil {
		return false
	}

	me := new(mysql.MySQLError)
	if !errors.As(err, &me) {
		return false
	}

	for _, num := range nums {
		if me.Number == num {
			return true
		}
	}
	return false
}

// CreateTableSQL returns the default schema of a checkpoints table.
func CreateTableSQL(name string) string {
	return "create table " + name + " (" +
		defaultIDField + " varchar(255) not null, " +
		defaultFileField + " varchar(255) not null, " +
		defaultPositionField + " bigint not null, " +
		defaultIndexField + " bigint not null, " +
		defaultInfoField + " varchar(1024) not null, " +
		defaultTimeField + " datetime(3) not null, " +
		"primary key (" + defaultIDField + "))"
}
