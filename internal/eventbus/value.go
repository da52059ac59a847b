package eventbus

// Value is a sum type over the event payload types the wire protocol and
// in-process handlers both understand. Go has no native variant type, so
// this is a tagged union with typed accessors.
type Value struct {
	kind  kind
	b     bool
	i     int64
	f     float64
	s     string
	list  []string
	strm  map[string]string
}

type kind int

const (
	kindNull kind = iota
	kindBool
	kindInt64
	kindFloat64
	kindString
	kindStringList
	kindStringMap
)

func Null() Value                          { return Value{kind: kindNull} }
func Bool(v bool) Value                    { return Value{kind: kindBool, b: v} }
func Int64(v int64) Value                  { return Value{kind: kindInt64, i: v} }
func Float64(v float64) Value              { return Value{kind: kindFloat64, f: v} }
func String(v string) Value                { return Value{kind: kindString, s: v} }
func StringList(v []string) Value          { return Value{kind: kindStringList, list: v} }
func StringMap(v map[string]string) Value  { return Value{kind: kindStringMap, strm: v} }

func (v Value) IsNull() bool { return v.kind == kindNull }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == kindBool }
func (v Value) Int64() (int64, bool)     { return v.i, v.kind == kindInt64 }
func (v Value) Float64() (float64, bool) { return v.f, v.kind == kindFloat64 }
func (v Value) String() (string, bool)   { return v.s, v.kind == kindString }

func (v Value) StringList() ([]string, bool) { return v.list, v.kind == kindStringList }

func (v Value) StringMap() (map[string]string, bool) { return v.strm, v.kind == kindStringMap }
