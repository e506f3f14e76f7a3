// 包 store 提供按数据类型自适应建表的存储实现：
// - SQLite：按需建表/加列，以 date 为主键幂等写入
// - Memory：演练模式下的内存实现，规则与 SQLite 一致
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"oura-sync/internal/errors"
	"oura-sync/internal/model"
	"oura-sync/internal/record"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
// 每个表一把锁，保证加列与写入不会在同一张表上交错。
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	schemas map[string]*TableSchema
	locks   map[string]*sync.Mutex
}

// OpenSQLite 打开（必要时创建）数据库文件。
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &errors.ErrDatabaseOpen{Path: path, Err: err}
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: path, Err: err}
	}
	return &SQLite{
		db:      db,
		schemas: make(map[string]*TableSchema),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) tableLock(table string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[table]
	if !ok {
		l = &sync.Mutex{}
		s.locks[table] = l
	}
	return l
}

func (s *SQLite) cachedSchema(table string) *TableSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.schemas[table]; ok {
		return t.Clone()
	}
	return nil
}

func (s *SQLite) setSchema(t *TableSchema) {
	s.mu.Lock()
	s.schemas[t.Name] = t
	s.mu.Unlock()
}

// Upsert 写入一条扁平记录：
//  1. 按类型规则解析日期，缺失且不可选时返回 *errors.ErrRecordRejected
//  2. 表不存在则建表（有日期时 date 为主键）
//  3. 记录中的新键按顺序追加为 TEXT 列
//  4. 有日期时写入 date 列
//  5. 主键冲突时覆盖全部非主键列；无日期的记录直接追加
//
// 建表/加列/写入在同一事务中，失败时该记录整体回滚。
func (s *SQLite) Upsert(ctx context.Context, dataType string, rec *record.Flat) error {
	row, date, err := resolveDate(dataType, rec)
	if err != nil {
		return err
	}
	if row.Len() == 0 {
		return nil
	}
	hasDate := date != ""

	lock := s.tableLock(dataType)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrPersistence{Table: dataType, Operation: "begin", Err: err}
	}
	defer tx.Rollback()

	schema := s.cachedSchema(dataType)
	if schema == nil {
		if schema, err = readSchema(ctx, tx, dataType); err != nil {
			return err
		}
	}
	if schema == nil {
		if schema, err = createTable(ctx, tx, dataType, row.Keys(), hasDate); err != nil {
			return err
		}
	} else {
		for _, col := range schema.Missing(row.Keys()) {
			q := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT`, quoteIdent(dataType), quoteIdent(col))
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return &errors.ErrPersistence{Table: dataType, Operation: "add column " + col, Err: err}
			}
			schema.Add(col)
		}
	}

	q, args := insertStmt(dataType, row, schema.Keyed && hasDate)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return &errors.ErrPersistence{Table: dataType, Operation: "insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &errors.ErrPersistence{Table: dataType, Operation: "commit", Err: err}
	}
	s.setSchema(schema)
	return nil
}

func createTable(ctx context.Context, tx *sql.Tx, table string, keys []string, keyed bool) (*TableSchema, error) {
	schema := NewTableSchema(table, keyed)
	var defs []string
	if keyed {
		schema.Add(DateColumn)
		defs = append(defs, quoteIdent(DateColumn)+" TEXT PRIMARY KEY")
	}
	for _, k := range keys {
		if schema.Add(k) {
			defs = append(defs, quoteIdent(k)+" TEXT")
		}
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(table), strings.Join(defs, ",\n\t"))
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return nil, &errors.ErrPersistence{Table: table, Operation: "create table", Err: err}
	}
	return schema, nil
}

// readSchema 通过 PRAGMA table_info 读取已有表结构；表不存在时返回 nil。
func readSchema(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, table string) (*TableSchema, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, &errors.ErrPersistence{Table: table, Operation: "read schema", Err: err}
	}
	defer rows.Close()
	schema := NewTableSchema(table, false)
	n := 0
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, &errors.ErrPersistence{Table: table, Operation: "read schema", Err: err}
		}
		schema.Add(name)
		if pk > 0 && strings.EqualFold(name, DateColumn) {
			schema.Keyed = true
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrPersistence{Table: table, Operation: "read schema", Err: err}
	}
	if n == 0 {
		return nil, nil
	}
	return schema, nil
}

func insertStmt(table string, row *record.Flat, upsert bool) (string, []any) {
	fields := row.Fields()
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	var sets []string
	for i, f := range fields {
		cols[i] = quoteIdent(f.Key)
		marks[i] = "?"
		if f.Null {
			args[i] = nil
		} else {
			args[i] = f.Value
		}
		if !strings.EqualFold(f.Key, DateColumn) {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", cols[i], cols[i]))
		}
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if upsert {
		if len(sets) == 0 {
			q += fmt.Sprintf(` ON CONFLICT(%s) DO NOTHING`, quoteIdent(DateColumn))
		} else {
			q += fmt.Sprintf(` ON CONFLICT(%s) DO UPDATE SET %s`, quoteIdent(DateColumn), strings.Join(sets, ", "))
		}
	}
	return q, args
}

// Columns 返回表的列（按定义顺序），表不存在时返回 nil。
func (s *SQLite) Columns(ctx context.Context, table string) ([]string, error) {
	schema, err := readSchema(ctx, s.db, table)
	if err != nil || schema == nil {
		return nil, err
	}
	return schema.Columns(), nil
}

// Rows 返回表中全部行（按 rowid），NULL 列不出现在结果中。
func (s *SQLite) Rows(ctx context.Context, table string) ([]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY rowid`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", table, err)
	}
	var out []map[string]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		m := make(map[string]string, len(cols))
		for i, c := range cols {
			if vals[i].Valid {
				m[c] = vals[i].String
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Stats 统计所有数据表的列数与行数，按表名排序。
func (s *SQLite) Stats(ctx context.Context) ([]model.TableStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	out := make([]model.TableStats, 0, len(names))
	for _, n := range names {
		schema, err := readSchema(ctx, s.db, n)
		if err != nil {
			return nil, err
		}
		st := model.TableStats{Name: n}
		if schema != nil {
			st.Columns = len(schema.Columns())
			st.Keyed = schema.Keyed
		}
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %s`, quoteIdent(n))).Scan(&st.Rows); err != nil {
			return nil, fmt.Errorf("count %s: %w", n, err)
		}
		out = append(out, st)
	}
	return out, nil
}
