package clocksync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const sqlOperationTimeout = 5 * time.Second

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// sqlDialect carries the per-driver differences between the SQLite and
// Postgres backends; everything else is shared by sqlStore.
type sqlDialect struct {
	driver      string
	placeholder func(n int) string
	createTable string
	createIndex string
}

// sqlStore persists each operation as a row keyed by id, with a secondary
// index on (status, enqueued_at_ns) for status-filtered, time-ordered reads.
type sqlStore struct {
	dsn     string
	table   string
	dialect sqlDialect
	openDB  sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func newSQLStore(dsn, table string, dialect sqlDialect) (*sqlStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || strings.TrimSpace(table) == "" {
		return nil, ErrInvalidInput
	}
	return &sqlStore{
		dsn:     dsn,
		table:   table,
		dialect: dialect,
		openDB:  sql.Open,
	}, nil
}

func (s *sqlStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB(s.dialect.driver, s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
		defer cancel()

		if _, err := db.ExecContext(ctx, fmt.Sprintf(s.dialect.createTable, quoteIdentifier(s.table))); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		indexName := s.table + "_status_enqueued_idx"
		if _, err := db.ExecContext(ctx, fmt.Sprintf(s.dialect.createIndex, quoteIdentifier(indexName), quoteIdentifier(s.table))); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *sqlStore) Enqueue(op Operation) error {
	if err := validateRecord(op); err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	record, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, status, enqueued_at_ns, record) VALUES (%s, %s, %s, %s)",
		quoteIdentifier(s.table),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4),
	)
	if _, err := s.db.ExecContext(ctx, query, op.ID, string(op.Status), op.EnqueuedAt.UnixNano(), string(record)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *sqlStore) Get(id string) (Operation, error) {
	if err := s.ensureReady(); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT record FROM %s WHERE id = %s", quoteIdentifier(s.table), s.dialect.placeholder(1))
	var record string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, ErrNotFound
	}
	if err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	var op Operation
	if err := json.Unmarshal([]byte(record), &op); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return op, nil
}

func (s *sqlStore) ListByStatus(status OpStatus) ([]Operation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT record FROM %s WHERE status = %s ORDER BY enqueued_at_ns ASC, id ASC",
		quoteIdentifier(s.table), s.dialect.placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer rows.Close()

	ops := make([]Operation, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		var op Operation
		if err := json.Unmarshal([]byte(record), &op); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ops, nil
}

func (s *sqlStore) Update(op Operation) error {
	if err := validateRecord(op); err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	record, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"UPDATE %s SET status = %s, record = %s WHERE id = %s",
		quoteIdentifier(s.table),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3),
	)
	result, err := s.db.ExecContext(ctx, query, string(op.Status), string(record), op.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Remove(id string) error {
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", quoteIdentifier(s.table), s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *sqlStore) ClearByStatus(status OpStatus) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE status = %s", quoteIdentifier(s.table), s.dialect.placeholder(1))
	result, err := s.db.ExecContext(ctx, query, string(status))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return int(affected), nil
}

func (s *sqlStore) Clear() error {
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s", quoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *sqlStore) CountByStatus(status OpStatus) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = %s", quoteIdentifier(s.table), s.dialect.placeholder(1))
	var count int
	if err := s.db.QueryRowContext(ctx, query, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return count, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
