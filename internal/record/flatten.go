package record

import "strings"

const (
	// DefaultSeparator 连接父键与子键。
	DefaultSeparator = "_"
	// contributorPrefix 仅从当前层的键名上去除，不影响已拼接的父前缀。
	contributorPrefix = "contributor_"
	listJoiner        = ", "
)

// Field 为扁平记录中的一列；Null 表示 JSON null（落库为 NULL）。
type Field struct {
	Key   string
	Value string
	Null  bool
}

// Flat 为有序的扁平记录：键唯一，重复写入时覆盖值但保留首次出现的位置。
type Flat struct {
	fields []Field
	index  map[string]int
}

func NewFlat() *Flat {
	return &Flat{index: make(map[string]int)}
}

// Set 写入文本值。
func (f *Flat) Set(key, value string) { f.put(Field{Key: key, Value: value}) }

// SetNull 写入 NULL。
func (f *Flat) SetNull(key string) { f.put(Field{Key: key, Null: true}) }

func (f *Flat) put(fd Field) {
	if i, ok := f.index[fd.Key]; ok {
		f.fields[i] = fd
		return
	}
	f.index[fd.Key] = len(f.fields)
	f.fields = append(f.fields, fd)
}

// Get 返回非 NULL 的值。
func (f *Flat) Get(key string) (string, bool) {
	i, ok := f.index[key]
	if !ok || f.fields[i].Null {
		return "", false
	}
	return f.fields[i].Value, true
}

// Has 判断键是否存在（含 NULL）。
func (f *Flat) Has(key string) bool {
	_, ok := f.index[key]
	return ok
}

func (f *Flat) Len() int { return len(f.fields) }

// Keys 返回按插入顺序排列的键。
func (f *Flat) Keys() []string {
	out := make([]string, len(f.fields))
	for i, fd := range f.fields {
		out[i] = fd.Key
	}
	return out
}

// Fields 返回字段副本。
func (f *Flat) Fields() []Field {
	out := make([]Field, len(f.fields))
	copy(out, f.fields)
	return out
}

// Map 返回 key→value 视图（NULL 映射为空串），便于测试比较。
func (f *Flat) Map() map[string]string {
	m := make(map[string]string, len(f.fields))
	for _, fd := range f.fields {
		m[fd.Key] = fd.Value
	}
	return m
}

// Clone 复制记录，避免调用方修改共享状态。
func (f *Flat) Clone() *Flat {
	c := &Flat{fields: f.Fields(), index: make(map[string]int, len(f.index))}
	for k, v := range f.index {
		c.index[k] = v
	}
	return c
}

// Flattener 将嵌套对象展平为单层键值。零值可用，分隔符默认为下划线。
type Flattener struct {
	Separator string
}

// Flatten 使用默认分隔符展平。
func Flatten(v Value) *Flat { return Flattener{}.Flatten(v) }

// Flatten 深度优先展平对象：
// - 列表转为 ", " 连接的字符串（空列表为空串）
// - 嵌套对象以 父键+分隔符+子键 合并（空对象不产生键）
// - 非对象输入返回空记录
func (fl Flattener) Flatten(v Value) *Flat {
	out := NewFlat()
	if v.Kind == Object {
		fl.walk(out, "", v.Members)
	}
	return out
}

func (fl Flattener) walk(out *Flat, parent string, members []Member) {
	sep := fl.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	for _, m := range members {
		key := strings.TrimPrefix(m.Key, contributorPrefix)
		if key == "" {
			key = m.Key
		}
		if parent != "" {
			key = parent + sep + key
		}
		switch m.Value.Kind {
		case Object:
			fl.walk(out, key, m.Value.Members)
		case List:
			out.Set(key, joinItems(m.Value.Items))
		case Null:
			out.SetNull(key)
		default:
			out.Set(key, m.Value.Text)
		}
	}
}

func joinItems(items []Value) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, listJoiner)
}
