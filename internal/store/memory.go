package store

import (
	"context"
	"sort"
	"sync"

	"oura-sync/internal/model"
	"oura-sync/internal/record"
)

// Memory 在演练模式（--dry-run）下收集记录，避免落库。
// 日期规则/列合并/覆盖语义与 SQLite 一致。
type Memory struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

type memTable struct {
	schema *TableSchema
	rows   []*record.Flat
	byDate map[string]int // date -> rows 下标
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

func (m *Memory) Upsert(_ context.Context, dataType string, rec *record.Flat) error {
	row, date, err := resolveDate(dataType, rec)
	if err != nil {
		return err
	}
	if row.Len() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[dataType]
	if !ok {
		t = &memTable{schema: NewTableSchema(dataType, date != ""), byDate: make(map[string]int)}
		if t.schema.Keyed {
			t.schema.Add(DateColumn)
		}
		m.tables[dataType] = t
	}
	for _, col := range t.schema.Missing(row.Keys()) {
		t.schema.Add(col)
	}
	if t.schema.Keyed && date != "" {
		if i, ok := t.byDate[date]; ok {
			merged := t.rows[i]
			for _, f := range row.Fields() {
				if f.Null {
					merged.SetNull(f.Key)
				} else {
					merged.Set(f.Key, f.Value)
				}
			}
			return nil
		}
		t.byDate[date] = len(t.rows)
	}
	t.rows = append(t.rows, row)
	return nil
}

// Rows 返回表中全部行的副本（按写入顺序），NULL 列不出现在结果中。
func (m *Memory) Rows(_ context.Context, table string) ([]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	out := make([]map[string]string, 0, len(t.rows))
	for _, r := range t.rows {
		m := make(map[string]string, r.Len())
		for _, f := range r.Fields() {
			if !f.Null {
				m[f.Key] = f.Value
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Columns 返回表的列（按添加顺序），表不存在时返回 nil。
func (m *Memory) Columns(_ context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return t.schema.Columns(), nil
	}
	return nil, nil
}

// Stats 返回快照，按表名排序。
func (m *Memory) Stats(_ context.Context) ([]model.TableStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TableStats, 0, len(m.tables))
	for name, t := range m.tables {
		out = append(out, model.TableStats{
			Name:    name,
			Columns: len(t.schema.Columns()),
			Rows:    len(t.rows),
			Keyed:   t.schema.Keyed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Close() error { return nil }
