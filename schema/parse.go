package schema

import (
	"encoding/json"
	"fmt"
)

// rawSchema mirrors the handful of JSON shapes an Avro schema document can
// take: a bare string (primitive or named-type reference), an array
// (union), or an object (record/array/map/enum/fixed... only the fields
// this decoder cares about are modelled).
type rawSchema struct {
	scalar string
	list   []json.RawMessage
	obj    map[string]json.RawMessage
}

func (r *rawSchema) UnmarshalJSON(data []byte) error {
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &r.scalar)
	case '[':
		return json.Unmarshal(data, &r.list)
	case '{':
		return json.Unmarshal(data, &r.obj)
	default:
		return fmt.Errorf("schema: unexpected JSON token %q", data[:1])
	}
}

// Parse builds a Node tree from an Avro JSON schema document. Named types
// (record, enum) are registered as they're encountered so later "custom"
// string references resolve to the same Node instance.
func Parse(data []byte) (Node, error) {
	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	p := &parser{registry: map[string]Node{}}
	n, err := p.parse(&raw)
	if err != nil {
		return nil, err
	}
	if err := p.resolvePending(); err != nil {
		return nil, err
	}
	return n, nil
}

type parser struct {
	nextID   int
	registry map[string]Node
	pending  []*Custom
}

func (p *parser) id() int {
	id := p.nextID
	p.nextID++
	return id
}

func (p *parser) resolvePending() error {
	for _, c := range p.pending {
		def, ok := p.registry[c.Name]
		if !ok {
			return fmt.Errorf("schema: unresolved type reference %q", c.Name)
		}
		c.Definition = def
	}
	return nil
}

func (p *parser) parse(raw *rawSchema) (Node, error) {
	switch {
	case raw.scalar != "":
		return p.parseScalar(raw.scalar)
	case raw.list != nil:
		return p.parseUnion(raw.list)
	case raw.obj != nil:
		return p.parseObject(raw.obj)
	default:
		return nil, fmt.Errorf("schema: empty schema node")
	}
}

func (p *parser) parseScalar(name string) (Node, error) {
	if k, ok := primitiveKind(name); ok {
		return &primitive{base: base{id: p.id()}, kind: k}, nil
	}
	c := &Custom{base: base{id: p.id()}, Name: name}
	p.pending = append(p.pending, c)
	return c, nil
}

func primitiveKind(name string) (Kind, bool) {
	switch name {
	case "string":
		return KindString, true
	case "bytes":
		return KindBytes, true
	case "int":
		return KindInt, true
	case "long":
		return KindLong, true
	case "float":
		return KindFloat, true
	case "double":
		return KindDouble, true
	case "boolean":
		return KindBoolean, true
	case "null":
		return KindNull, true
	default:
		return 0, false
	}
}

func (p *parser) parseUnion(list []json.RawMessage) (Node, error) {
	u := &Union{base: base{id: p.id()}, NullIndex: -1}
	for i, raw := range list {
		var rs rawSchema
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, fmt.Errorf("schema: union branch %d: %w", i, err)
		}
		branch, err := p.parse(&rs)
		if err != nil {
			return nil, err
		}
		if branch.Kind() == KindNull {
			u.NullIndex = i
		}
		u.Branches = append(u.Branches, branch)
	}
	return u, nil
}

func (p *parser) parseObject(obj map[string]json.RawMessage) (Node, error) {
	typ, err := stringField(obj, "type")
	if err != nil {
		return nil, err
	}
	switch typ {
	case "record", "error":
		return p.parseRecord(obj)
	case "array":
		return p.parseArray(obj)
	case "map":
		return p.parseMap(obj)
	case "enum":
		return p.parseEnum(obj)
	case "fixed":
		// Modelled as bytes: the core never needs fixed's declared
		// size, only that it reads a byte string.
		return &primitive{base: base{id: p.id()}, kind: KindBytes}, nil
	default:
		// A bare {"type": "int"} style wrapper around a primitive.
		if k, ok := primitiveKind(typ); ok {
			return &primitive{base: base{id: p.id()}, kind: k}, nil
		}
		return p.parseScalar(typ)
	}
}

func (p *parser) parseRecord(obj map[string]json.RawMessage) (Node, error) {
	name, err := stringField(obj, "name")
	if err != nil {
		return nil, err
	}
	r := &Record{base: base{id: p.id()}, Name: name}
	p.registry[name] = r

	var rawFields []json.RawMessage
	if f, ok := obj["fields"]; ok {
		if err := json.Unmarshal(f, &rawFields); err != nil {
			return nil, fmt.Errorf("schema: record %q fields: %w", name, err)
		}
	}
	for _, rf := range rawFields {
		var fieldObj map[string]json.RawMessage
		if err := json.Unmarshal(rf, &fieldObj); err != nil {
			return nil, fmt.Errorf("schema: record %q: %w", name, err)
		}
		fname, err := stringField(fieldObj, "name")
		if err != nil {
			return nil, err
		}
		var fieldSchema rawSchema
		if err := json.Unmarshal(fieldObj["type"], &fieldSchema); err != nil {
			return nil, fmt.Errorf("schema: record %q field %q: %w", name, fname, err)
		}
		child, err := p.parse(&fieldSchema)
		if err != nil {
			return nil, err
		}
		child = withItemName(child, fname)
		r.Fields = append(r.Fields, Field{Name: fname, Schema: child})
	}
	return r, nil
}

// withItemName stamps a field name onto a node's base. Nodes are parsed
// before their field name is known, so this rewrites the base in place.
func withItemName(n Node, name string) Node {
	switch t := n.(type) {
	case *Record:
		t.itemName = name
	case *Union:
		t.itemName = name
	case *Array:
		t.itemName = name
	case *Map:
		t.itemName = name
	case *Enum:
		t.itemName = name
	case *Custom:
		t.itemName = name
	case *primitive:
		t.itemName = name
	}
	return n
}

func (p *parser) parseArray(obj map[string]json.RawMessage) (Node, error) {
	var items rawSchema
	raw, ok := obj["items"]
	if !ok {
		return nil, fmt.Errorf("schema: array missing items")
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("schema: array items: %w", err)
	}
	a := &Array{base: base{id: p.id()}}
	child, err := p.parse(&items)
	if err != nil {
		return nil, err
	}
	a.Items = child
	return a, nil
}

func (p *parser) parseMap(obj map[string]json.RawMessage) (Node, error) {
	var values rawSchema
	raw, ok := obj["values"]
	if !ok {
		return nil, fmt.Errorf("schema: map missing values")
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("schema: map values: %w", err)
	}
	m := &Map{base: base{id: p.id()}}
	child, err := p.parse(&values)
	if err != nil {
		return nil, err
	}
	m.Values = child
	return m, nil
}

func (p *parser) parseEnum(obj map[string]json.RawMessage) (Node, error) {
	name, err := stringField(obj, "name")
	if err != nil {
		return nil, err
	}
	var symbols []string
	raw, ok := obj["symbols"]
	if !ok {
		return nil, fmt.Errorf("schema: enum %q missing symbols", name)
	}
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("schema: enum %q symbols: %w", name, err)
	}
	e := &Enum{base: base{id: p.id()}, Name: name, Symbols: symbols}
	p.registry[name] = e
	return e, nil
}

func stringField(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("schema: missing field %q", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("schema: field %q: %w", key, err)
	}
	return s, nil
}
