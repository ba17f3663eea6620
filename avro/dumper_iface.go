package avro

// Dumper receives a stream of calls describing one record's shape and
// values as the walker (recursive or compiled) traverses it. Both the
// structured ("fool") dumper and the TSV projection dumper in
// github.com/negram/aq/avro/dumper implement this, so the walkers never
// know which output format they're feeding.
type Dumper interface {
	RecordBegin()
	RecordEnd()
	// FieldName is called immediately before each Record field is
	// walked, so a human-readable dumper can label the value that
	// follows; a column-indexed dumper (TSV) can ignore it.
	FieldName(name string)
	ArrayBegin()
	ArrayEnd()
	MapBegin()
	MapEnd()
	MapName(name string)

	// Leaf methods carry the schema node ID alongside the value so a
	// projection-driven dumper (TSV) can map it to a column without the
	// walker knowing anything about projections.
	String(id int, v string)
	Int(id int, v int32)
	Long(id int, v int64)
	Float(id int, v float32)
	Double(id int, v float64)
	Boolean(id int, v bool)
	Null(id int)
	Enum(id int, symbol string, index int)

	// EndDocument is called once per record, after the matching
	// RecordEnd for the record's top-level schema, to let the dumper
	// flush whatever it buffered (e.g. TSV's tab-joined row).
	EndDocument()
}
