package onnx

// Hand-written ONNX protobuf structures, trimmed to the fields the
// worker's engine consumes.

// modelProto is the top-level ONNX model.
type modelProto struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	Graph           *graphProto
}

// graphProto is the computation graph.
type graphProto struct {
	Name         string
	Nodes        []nodeProto
	Inputs       []valueInfoProto
	Outputs      []valueInfoProto
	Initializers []tensorProto
}

// nodeProto is a single operation in the graph.
type nodeProto struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []attributeProto
}

// tensorProto is a weight/initializer tensor.
type tensorProto struct {
	Name      string
	DataType  int32
	Dims      []int64
	RawData   []byte
	FloatData []float32
}

// valueInfoProto declares an input or output tensor.
type valueInfoProto struct {
	Name     string
	ElemType int32
	Dims     []int64 // -1 for dynamic dimensions
}

// attributeProto carries node attributes; only scalar int and int list
// attributes are consumed (Flatten axis, Transpose perm).
type attributeProto struct {
	Name string
	Type int32
	I    int64
	Ints []int64
}

// ONNX TensorProto.DataType values the engine recognizes.
const (
	dtypeFloat32 = 1
)

// ONNX AttributeProto.Type values.
const (
	attrInt  = 2
	attrInts = 7
)
