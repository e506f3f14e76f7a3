package store

import "strings"

// TableSchema 为内存中维护的表结构：列按添加顺序排列，
// 名称比较不区分大小写（与 SQLite 一致）。
type TableSchema struct {
	Name    string
	Keyed   bool // date 为主键
	columns []string
	index   map[string]struct{}
}

func NewTableSchema(name string, keyed bool) *TableSchema {
	return &TableSchema{Name: name, Keyed: keyed, index: make(map[string]struct{})}
}

func (t *TableSchema) Has(col string) bool {
	_, ok := t.index[strings.ToLower(col)]
	return ok
}

// Add 追加列，已存在时返回 false。
func (t *TableSchema) Add(col string) bool {
	k := strings.ToLower(col)
	if _, ok := t.index[k]; ok {
		return false
	}
	t.index[k] = struct{}{}
	t.columns = append(t.columns, col)
	return true
}

func (t *TableSchema) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Missing 返回记录中尚未存在的列，保持记录键顺序。
func (t *TableSchema) Missing(keys []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, dup := seen[lk]; dup || t.Has(k) {
			continue
		}
		seen[lk] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (t *TableSchema) Clone() *TableSchema {
	c := NewTableSchema(t.Name, t.Keyed)
	for _, col := range t.columns {
		c.Add(col)
	}
	return c
}

// quoteIdent 以双引号包裹标识符，内部引号加倍。
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
