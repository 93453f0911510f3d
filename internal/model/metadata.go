package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind はMetadataが保持する値の種別を表す。
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value はプロバイダーのレスポンスに含まれる1つの値を表す。
// JSONで表現可能な値の閉じた集合のみを保持する。
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  *Metadata
}

// NullValue はnull値を返す。
func NullValue() Value { return Value{kind: KindNull} }

// BoolValue は真偽値を返す。
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue はjson.Numberをそのまま保持する数値を返す。
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, n: n} }

// IntValue は整数値を返す。
func IntValue(i int64) Value { return NumberValue(json.Number(strconv.FormatInt(i, 10))) }

// FloatValue は浮動小数点数値を返す。
func FloatValue(f float64) Value {
	return NumberValue(json.Number(strconv.FormatFloat(f, 'f', -1, 64)))
}

// StringValue は文字列値を返す。
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ArrayValue は配列値を返す。
func ArrayValue(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// ObjectValue はネストしたマッピング値を返す。nilの場合は空オブジェクトとして扱う。
func ObjectValue(m *Metadata) Value {
	if m == nil {
		m = NewMetadata()
	}
	return Value{kind: KindObject, obj: m}
}

// Kind は値の種別を返す。
func (v Value) Kind() Kind { return v.kind }

// IsNull はnull値かどうかを返す。
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString は文字列値を返す。文字列以外の場合はfalseを返す。
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBool は真偽値を返す。
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt は整数値を返す。整数として解釈できない数値の場合はfalseを返す。
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// AsFloat は浮動小数点数値を返す。
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsNumber は数値の元の表現を返す。
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.n, true
}

// AsArray は配列値を返す。
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject はネストしたマッピングを返す。
func (v Value) AsObject() (*Metadata, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Interface はキャプション表示などで使うためにGoのネイティブ値へ変換する。
// 数値は整数として表現できればint64、そうでなければfloat64になる。
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if i, err := v.n.Int64(); err == nil {
			return i
		}
		if f, err := v.n.Float64(); err == nil {
			return f
		}
		return v.n.String()
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		for _, k := range v.obj.keys {
			out[k] = v.obj.values[k].Interface()
		}
		return out
	default:
		return nil
	}
}

// Scalar は文字列・数値・真偽値を文字列表現で返す。それ以外は空文字列。
func (v Value) Scalar() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.n.String()
	case KindString:
		return v.s
	}
	return ""
}

func (v Value) clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// MarshalJSON はValueをJSONとして出力する。
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.n.String()), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value kind: %d", v.kind)
	}
}

// Metadata はプロバイダーの生レスポンスをキーの出現順を保持したまま表現するマッピング。
// 永続化層へのシリアライズが全域かつ可逆になるよう、値はValueの閉じた種別に限定する。
type Metadata struct {
	keys   []string
	values map[string]Value
}

// NewMetadata は空のMetadataを生成する。
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// ParseMetadata はJSONオブジェクトをMetadataへデコードする。
func ParseMetadata(data []byte) (*Metadata, error) {
	m := NewMetadata()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Len はキー数を返す。
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys はキーを出現順で返す。
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Set はキーに値を設定する。既存キーは位置を保ったまま上書きする。
func (m *Metadata) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get はキーの値を返す。
func (m *Metadata) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has はキーが存在するかどうかを返す。
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// String はキーの文字列値を返す。存在しないか文字列でない場合は空文字列を返す。
func (m *Metadata) String(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Int はキーの整数値を返す。
func (m *Metadata) Int(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Bool はキーの真偽値を返す。存在しない場合はfalse。
func (m *Metadata) Bool(key string) bool {
	v, ok := m.Get(key)
	if !ok {
		return false
	}
	b, _ := v.AsBool()
	return b
}

// Object はキーのネストしたマッピングを返す。存在しない場合はnil。
func (m *Metadata) Object(key string) *Metadata {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	obj, _ := v.AsObject()
	return obj
}

// Array はキーの配列値を返す。
func (m *Metadata) Array(key string) []Value {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	arr, _ := v.AsArray()
	return arr
}

// Clone はMetadataの深いコピーを返す。
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, m.values[k].clone())
	}
	return out
}

// MarshalJSON はキー順を保ったJSONオブジェクトを出力する。
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := m.values[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON はJSONオブジェクトをキー順を保ってデコードする。
// トップレベルがオブジェクトでない場合と、オブジェクトの後にデータが続く場合はエラーを返す。
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: JSONオブジェクトではありません")
	}

	obj, err := decodeObject(dec)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("metadata: オブジェクトの後に余分なデータがあります")
	}
	m.keys = obj.keys
	m.values = obj.values
	return nil
}

// decodeObject は開き括弧を読んだ直後のデコーダからオブジェクトを読み取る。
func decodeObject(dec *json.Decoder) (*Metadata, error) {
	m := NewMetadata()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("オブジェクトのキーが文字列ではありません: %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return ObjectValue(obj), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(items...), nil
		}
	}
	return Value{}, fmt.Errorf("予期しないトークン: %v", tok)
}
