// 包 record 定义接口返回记录的递归值类型（标量/列表/对象），
// 并负责从 JSON 解码（保留对象键顺序）与扁平化。
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind 为值的类别。
type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
	List
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value 为带标签的递归值：
// - String/Number/Bool 使用 Text（数字保留 JSON 字面量原样）
// - List 使用 Items
// - Object 使用 Members（按出现顺序）
type Value struct {
	Kind    Kind
	Text    string
	Items   []Value
	Members []Member
}

// Member 为对象中的一个键值对。
type Member struct {
	Key   string
	Value Value
}

// 便捷构造函数，主要用于测试与手工构造记录。
func Str(s string) Value      { return Value{Kind: String, Text: s} }
func Num(lit string) Value    { return Value{Kind: Number, Text: lit} }
func NullValue() Value        { return Value{Kind: Null} }
func ListOf(v ...Value) Value { return Value{Kind: List, Items: v} }
func BoolValue(b bool) Value {
	if b {
		return Value{Kind: Bool, Text: "true"}
	}
	return Value{Kind: Bool, Text: "false"}
}

// Obj 由键值交替的参数构造对象，键必须为 string。
func Obj(kv ...any) Value {
	v := Value{Kind: Object}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Members = append(v.Members, Member{Key: kv[i].(string), Value: kv[i+1].(Value)})
	}
	return v
}

// Get 返回对象中指定键的值（同名键取最后一个）。
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != Object {
		return Value{}, false
	}
	for i := len(v.Members) - 1; i >= 0; i-- {
		if v.Members[i].Key == key {
			return v.Members[i].Value, true
		}
	}
	return Value{}, false
}

// String 返回值的文本形式：标量为原文，null 为 "null"，容器为紧凑 JSON。
func (v Value) String() string {
	switch v.Kind {
	case String, Number, Bool:
		return v.Text
	case Null:
		return "null"
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// MarshalJSON 按原始键顺序输出 JSON。
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.Kind {
	case Null:
		buf.WriteString("null")
	case Number, Bool:
		buf.WriteString(v.Text)
	case String:
		b, err := json.Marshal(v.Text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case List:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown kind %d", int(v.Kind))
	}
	return nil
}

// Decode 解析单个 JSON 文档为 Value，拒绝尾随数据。
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// DecodeData 解析接口响应体并返回 data 列表；缺少 data 时返回空列表。
func DecodeData(body []byte) ([]Value, error) {
	doc, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if doc.Kind != Object {
		return nil, fmt.Errorf("decode response: top-level %s, want object", doc.Kind)
	}
	data, ok := doc.Get("data")
	if !ok || data.Kind == Null {
		return nil, nil
	}
	if data.Kind != List {
		return nil, fmt.Errorf("decode response: data is %s, want list", data.Kind)
	}
	return data.Items, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := Value{Kind: Object, Members: []Member{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key %v is not a string", kt)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Members = append(v.Members, Member{Key: key, Value: child})
			}
			if _, err := dec.Token(); err != nil { // '}'
				return Value{}, err
			}
			return v, nil
		case '[':
			v := Value{Kind: List, Items: []Value{}}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.Items = append(v.Items, child)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return Value{}, err
			}
			return v, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case string:
		return Str(t), nil
	case json.Number:
		return Num(t.String()), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return NullValue(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %T", tok)
	}
}
