package onnx

import (
	"encoding/binary"
	"math"
	"testing"
)

// pb builds protobuf wire format bytes for test models.
type pb struct {
	buf []byte
}

func (b *pb) varint(v int64) {
	u := uint64(v)
	for u >= 0x80 {
		b.buf = append(b.buf, byte(u)|0x80)
		u >>= 7
	}
	b.buf = append(b.buf, byte(u))
}

func (b *pb) tag(field, wire int) {
	b.varint(int64(field<<3 | wire))
}

func (b *pb) bytes(data []byte) {
	b.varint(int64(len(data)))
	b.buf = append(b.buf, data...)
}

func (b *pb) str(s string) {
	b.bytes([]byte(s))
}

// buildValueInfo encodes a ValueInfoProto with a float32 tensor type.
// Negative dims are encoded as dynamic (dim_param).
func buildValueInfo(name string, dims []int64) []byte {
	shape := &pb{}
	for _, d := range dims {
		dim := &pb{}
		if d > 0 {
			dim.tag(1, wireVarint) // dim_value
			dim.varint(d)
		} else {
			dim.tag(2, wireBytes) // dim_param
			dim.str("batch")
		}
		shape.tag(1, wireBytes) // dim
		shape.bytes(dim.buf)
	}

	tensorType := &pb{}
	tensorType.tag(1, wireVarint) // elem_type
	tensorType.varint(dtypeFloat32)
	tensorType.tag(2, wireBytes) // shape
	tensorType.bytes(shape.buf)

	typ := &pb{}
	typ.tag(1, wireBytes) // tensor_type
	typ.bytes(tensorType.buf)

	vi := &pb{}
	vi.tag(1, wireBytes) // name
	vi.str(name)
	vi.tag(2, wireBytes) // type
	vi.bytes(typ.buf)
	return vi.buf
}

// buildNode encodes a NodeProto.
func buildNode(opType string, inputs, outputs []string, attrs []byte) []byte {
	n := &pb{}
	for _, in := range inputs {
		n.tag(1, wireBytes)
		n.str(in)
	}
	for _, out := range outputs {
		n.tag(2, wireBytes)
		n.str(out)
	}
	n.tag(3, wireBytes) // name
	n.str(opType + "_0")
	n.tag(4, wireBytes) // op_type
	n.str(opType)
	if attrs != nil {
		n.tag(5, wireBytes)
		n.bytes(attrs)
	}
	return n.buf
}

// buildIntAttr encodes an INT attribute.
func buildIntAttr(name string, v int64) []byte {
	a := &pb{}
	a.tag(1, wireBytes)
	a.str(name)
	a.tag(3, wireVarint) // i
	a.varint(v)
	a.tag(20, wireVarint) // type
	a.varint(attrInt)
	return a.buf
}

// buildInitializer encodes a float32 TensorProto with raw data.
func buildInitializer(name string, dims []int64, values []float32) []byte {
	t := &pb{}
	for _, d := range dims {
		t.tag(1, wireVarint) // dims
		t.varint(d)
	}
	t.tag(2, wireVarint) // data_type
	t.varint(dtypeFloat32)
	t.tag(8, wireBytes) // name
	t.str(name)

	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	t.tag(9, wireBytes) // raw_data
	t.bytes(raw)
	return t.buf
}

// buildModel wraps a graph into a ModelProto with opset 13.
func buildModel(graph []byte) []byte {
	opset := &pb{}
	opset.tag(1, wireBytes) // domain
	opset.str("")
	opset.tag(2, wireVarint) // version
	opset.varint(13)

	m := &pb{}
	m.tag(1, wireVarint) // ir_version
	m.varint(7)
	m.tag(2, wireBytes) // producer_name
	m.str("vision-test")
	m.tag(8, wireBytes) // opset_import
	m.bytes(opset.buf)
	m.tag(7, wireBytes) // graph
	m.bytes(graph)
	return m.buf
}

// buildSigmoidModel creates: output = Sigmoid(images), images [1,3,2,2].
func buildSigmoidModel() []byte {
	g := &pb{}
	g.tag(2, wireBytes) // name
	g.str("sigmoid_graph")
	g.tag(1, wireBytes) // node
	g.bytes(buildNode("Sigmoid", []string{"images"}, []string{"output"}, nil))
	g.tag(11, wireBytes) // input
	g.bytes(buildValueInfo("images", []int64{1, 3, 2, 2}))
	g.tag(12, wireBytes) // output
	g.bytes(buildValueInfo("output", []int64{1, 3, 2, 2}))
	return buildModel(g.buf)
}

// buildAddBiasModel creates: output = Add(x, bias) with a weight initializer.
func buildAddBiasModel(bias []float32) []byte {
	g := &pb{}
	g.tag(2, wireBytes)
	g.str("add_bias")
	g.tag(1, wireBytes)
	g.bytes(buildNode("Add", []string{"x", "bias"}, []string{"output"}, nil))
	g.tag(5, wireBytes) // initializer
	g.bytes(buildInitializer("bias", []int64{int64(len(bias))}, bias))
	g.tag(11, wireBytes)
	g.bytes(buildValueInfo("x", []int64{int64(len(bias))}))
	g.tag(11, wireBytes) // initializer also listed as graph input
	g.bytes(buildValueInfo("bias", []int64{int64(len(bias))}))
	g.tag(12, wireBytes)
	g.bytes(buildValueInfo("output", []int64{int64(len(bias))}))
	return buildModel(g.buf)
}

func TestParseSigmoidModel(t *testing.T) {
	model, err := parseModel(buildSigmoidModel())
	if err != nil {
		t.Fatalf("parseModel failed: %v", err)
	}

	if model.IRVersion != 7 {
		t.Errorf("IRVersion = %d, want 7", model.IRVersion)
	}
	if model.OpsetVersion != 13 {
		t.Errorf("OpsetVersion = %d, want 13", model.OpsetVersion)
	}
	if model.ProducerName != "vision-test" {
		t.Errorf("ProducerName = %q", model.ProducerName)
	}

	g := model.Graph
	if len(g.Nodes) != 1 || g.Nodes[0].OpType != "Sigmoid" {
		t.Fatalf("Nodes = %+v, want one Sigmoid", g.Nodes)
	}
	if len(g.Nodes[0].Inputs) != 1 || g.Nodes[0].Inputs[0] != "images" {
		t.Errorf("Node inputs = %v", g.Nodes[0].Inputs)
	}
	if len(g.Inputs) != 1 || g.Inputs[0].Name != "images" {
		t.Fatalf("Inputs = %+v", g.Inputs)
	}
	wantDims := []int64{1, 3, 2, 2}
	if len(g.Inputs[0].Dims) != len(wantDims) {
		t.Fatalf("Input dims = %v, want %v", g.Inputs[0].Dims, wantDims)
	}
	for i, d := range wantDims {
		if g.Inputs[0].Dims[i] != d {
			t.Errorf("Dim %d = %d, want %d", i, g.Inputs[0].Dims[i], d)
		}
	}
	if g.Inputs[0].ElemType != dtypeFloat32 {
		t.Errorf("ElemType = %d, want float32", g.Inputs[0].ElemType)
	}
}

func TestParseDynamicDims(t *testing.T) {
	vi := buildValueInfo("x", []int64{-1, 84, 8400})

	g := &pb{}
	g.tag(11, wireBytes)
	g.bytes(vi)
	g.tag(12, wireBytes)
	g.bytes(buildValueInfo("y", nil))
	g.tag(1, wireBytes)
	g.bytes(buildNode("Identity", []string{"x"}, []string{"y"}, nil))

	model, err := parseModel(buildModel(g.buf))
	if err != nil {
		t.Fatalf("parseModel failed: %v", err)
	}

	dims := model.Graph.Inputs[0].Dims
	if len(dims) != 3 || dims[0] != -1 || dims[1] != 84 || dims[2] != 8400 {
		t.Errorf("Dims = %v, want [-1 84 8400]", dims)
	}
}

func TestParseInitializer(t *testing.T) {
	model, err := parseModel(buildAddBiasModel([]float32{1.5, -2.5}))
	if err != nil {
		t.Fatalf("parseModel failed: %v", err)
	}

	inits := model.Graph.Initializers
	if len(inits) != 1 {
		t.Fatalf("Initializers = %d, want 1", len(inits))
	}
	if inits[0].Name != "bias" || inits[0].DataType != dtypeFloat32 {
		t.Errorf("Initializer %q dtype %d", inits[0].Name, inits[0].DataType)
	}
	if len(inits[0].RawData) != 8 {
		t.Errorf("RawData length = %d, want 8", len(inits[0].RawData))
	}
}

func TestParseAttributes(t *testing.T) {
	node := buildNode("Flatten", []string{"x"}, []string{"y"}, buildIntAttr("axis", 2))

	g := &pb{}
	g.tag(1, wireBytes)
	g.bytes(node)
	g.tag(11, wireBytes)
	g.bytes(buildValueInfo("x", []int64{1, 2, 3}))
	g.tag(12, wireBytes)
	g.bytes(buildValueInfo("y", nil))

	model, err := parseModel(buildModel(g.buf))
	if err != nil {
		t.Fatalf("parseModel failed: %v", err)
	}

	attrs := model.Graph.Nodes[0].Attributes
	if len(attrs) != 1 || attrs[0].Name != "axis" || attrs[0].I != 2 {
		t.Errorf("Attributes = %+v, want axis=2", attrs)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := parseModel(nil); err == nil {
		t.Error("Expected error for empty bytes, got nil")
	}
	if _, err := parseModel([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("Expected error for garbage bytes, got nil")
	}
	// A valid-looking model without a graph is also malformed.
	m := &pb{}
	m.tag(1, wireVarint)
	m.varint(7)
	if _, err := parseModel(m.buf); err == nil {
		t.Error("Expected error for model without graph, got nil")
	}
}

func TestParseSkipsUnknownFields(t *testing.T) {
	base := buildSigmoidModel()

	// Append an unknown length-delimited field (field 99).
	b := &pb{buf: append([]byte(nil), base...)}
	b.tag(99, wireBytes)
	b.str("future extension")

	if _, err := parseModel(b.buf); err != nil {
		t.Errorf("parseModel should skip unknown fields, got %v", err)
	}
}
