package change

import "encoding/json"

// jsonValue is the wire shape used to (de)serialize a Value through JSON,
// needed because Value's Go struct mixes mutually-exclusive fields rather
// than a native tagged union json.Marshal can express directly.
type jsonValue struct {
	Kind ValueKind                `json:"k"`
	Bool bool                     `json:"b,omitempty"`
	I64  int64                    `json:"i,omitempty"`
	F64  float64                  `json:"f,omitempty"`
	Str  string                   `json:"s,omitempty"`
	Bin  []byte                   `json:"bin,omitempty"`
	List []jsonValue              `json:"l,omitempty"`
	Map  map[string]jsonValue     `json:"m,omitempty"`
	Cid  *jsonContainerID         `json:"c,omitempty"`
}

type jsonContainerID struct {
	IsRoot  bool          `json:"root"`
	Name    string        `json:"name,omitempty"`
	Peer    PeerID        `json:"peer,omitempty"`
	Counter Counter       `json:"counter,omitempty"`
	Kind    ContainerKind `json:"kind"`
}

func toJSONValue(v Value) jsonValue {
	jv := jsonValue{Kind: v.Kind, Bool: v.Bool, I64: v.I64, F64: v.F64, Str: v.Str, Bin: v.Bin}
	if v.Kind == KindValueList {
		jv.List = make([]jsonValue, len(v.List))
		for i, e := range v.List {
			jv.List[i] = toJSONValue(e)
		}
	}
	if v.Kind == KindValueMap {
		jv.Map = make(map[string]jsonValue, len(v.Map))
		for k, e := range v.Map {
			jv.Map[k] = toJSONValue(e)
		}
	}
	if v.Kind == KindContainer {
		jv.Cid = &jsonContainerID{
			IsRoot: v.Container.IsRoot, Name: v.Container.Name,
			Peer: v.Container.Peer, Counter: v.Container.Counter, Kind: v.Container.Kind,
		}
	}
	return jv
}

func fromJSONValue(jv jsonValue) Value {
	v := Value{Kind: jv.Kind, Bool: jv.Bool, I64: jv.I64, Str: jv.Str, Bin: jv.Bin}
	v.F64 = jv.F64
	if jv.Kind == KindValueList {
		v.List = make([]Value, len(jv.List))
		for i, e := range jv.List {
			v.List[i] = fromJSONValue(e)
		}
	}
	if jv.Kind == KindValueMap {
		v.Map = make(map[string]Value, len(jv.Map))
		for k, e := range jv.Map {
			v.Map[k] = fromJSONValue(e)
		}
	}
	if jv.Kind == KindContainer && jv.Cid != nil {
		v.Container = ContainerID{
			IsRoot: jv.Cid.IsRoot, Name: jv.Cid.Name,
			Peer: jv.Cid.Peer, Counter: jv.Cid.Counter, Kind: jv.Cid.Kind,
		}
	}
	return v
}

// MarshalValueJSON serializes a Value to JSON bytes.
func MarshalValueJSON(v Value) ([]byte, error) {
	return json.Marshal(toJSONValue(v))
}

// UnmarshalValueJSON parses a Value previously produced by
// MarshalValueJSON. An empty input decodes to Null.
func UnmarshalValueJSON(b []byte) (Value, error) {
	if len(b) == 0 {
		return NullValue(), nil
	}
	var jv jsonValue
	if err := json.Unmarshal(b, &jv); err != nil {
		return Value{}, err
	}
	return fromJSONValue(jv), nil
}
