package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Minimal protobuf wire format decoder for ONNX model files.

// Protobuf wire types.
const (
	wireVarint = 0 // int32, int64, bool, enum
	wire64Bit  = 1 // fixed64, double
	wireBytes  = 2 // string, bytes, embedded messages, packed repeated
	wire32Bit  = 5 // fixed32, float
)

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) more() bool {
	return d.pos < len(d.data)
}

func (d *decoder) tag() (fieldNum, wireType int, err error) {
	v, err := d.varint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), int(v & 0x7), nil
}

func (d *decoder) varint() (int64, error) {
	var result uint64
	var shift uint
	for {
		if d.pos >= len(d.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := d.data[d.pos]
		d.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
	return int64(result), nil //nolint:gosec // G115: protobuf varint fits in int64
}

func (d *decoder) bytes() ([]byte, error) {
	length, err := d.varint()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errors.New("negative length")
	}
	end := d.pos + int(length)
	if end > len(d.data) || end < d.pos {
		return nil, io.ErrUnexpectedEOF
	}
	result := d.data[d.pos:end]
	d.pos = end
	return result, nil
}

func (d *decoder) skip(wireType int) error {
	switch wireType {
	case wireVarint:
		_, err := d.varint()
		return err
	case wire64Bit:
		if d.pos+8 > len(d.data) {
			return io.ErrUnexpectedEOF
		}
		d.pos += 8
		return nil
	case wireBytes:
		_, err := d.bytes()
		return err
	case wire32Bit:
		if d.pos+4 > len(d.data) {
			return io.ErrUnexpectedEOF
		}
		d.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wireType)
	}
}

// packedInt64s decodes a repeated int64 field, which may be packed
// (length-delimited varints) or a single varint occurrence.
func (d *decoder) packedInt64s(wireType int, dst []int64) ([]int64, error) {
	if wireType == wireBytes {
		data, err := d.bytes()
		if err != nil {
			return nil, err
		}
		sub := &decoder{data: data}
		for sub.more() {
			v, err := sub.varint()
			if err != nil {
				return nil, err
			}
			dst = append(dst, v)
		}
		return dst, nil
	}
	v, err := d.varint()
	if err != nil {
		return nil, err
	}
	return append(dst, v), nil
}

// parseModel decodes ONNX model bytes into a modelProto.
func parseModel(data []byte) (*modelProto, error) {
	if len(data) == 0 {
		return nil, errors.New("empty model bytes")
	}
	m := &modelProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1: // ir_version
			if m.IRVersion, err = d.varint(); err != nil {
				return nil, err
			}
		case 2: // producer_name
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			m.ProducerName = string(b)
		case 3: // producer_version
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			m.ProducerVersion = string(b)
		case 7: // graph
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if m.Graph, err = parseGraph(b); err != nil {
				return nil, err
			}
		case 8: // opset_import
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			domain, version, err := parseOpset(b)
			if err != nil {
				return nil, err
			}
			if domain == "" || domain == "ai.onnx" {
				m.OpsetVersion = version
			}
		default:
			if err := d.skip(wire); err != nil {
				return nil, err
			}
		}
	}
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	return m, nil
}

func parseOpset(data []byte) (domain string, version int64, err error) {
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return "", 0, err
		}
		switch field {
		case 1: // domain
			b, err := d.bytes()
			if err != nil {
				return "", 0, err
			}
			domain = string(b)
		case 2: // version
			if version, err = d.varint(); err != nil {
				return "", 0, err
			}
		default:
			if err := d.skip(wire); err != nil {
				return "", 0, err
			}
		}
	}
	return domain, version, nil
}

func parseGraph(data []byte) (*graphProto, error) {
	g := &graphProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1: // node
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			node, err := parseNode(b)
			if err != nil {
				return nil, err
			}
			g.Nodes = append(g.Nodes, node)
		case 2: // name
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			g.Name = string(b)
		case 5: // initializer
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			init, err := parseTensor(b)
			if err != nil {
				return nil, err
			}
			g.Initializers = append(g.Initializers, init)
		case 11: // input
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			vi, err := parseValueInfo(b)
			if err != nil {
				return nil, err
			}
			g.Inputs = append(g.Inputs, vi)
		case 12: // output
			b, err := d.bytes()
			if err != nil {
				return nil, err
			}
			vi, err := parseValueInfo(b)
			if err != nil {
				return nil, err
			}
			g.Outputs = append(g.Outputs, vi)
		default:
			if err := d.skip(wire); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func parseNode(data []byte) (nodeProto, error) {
	n := nodeProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return n, err
		}
		switch field {
		case 1: // input
			b, err := d.bytes()
			if err != nil {
				return n, err
			}
			n.Inputs = append(n.Inputs, string(b))
		case 2: // output
			b, err := d.bytes()
			if err != nil {
				return n, err
			}
			n.Outputs = append(n.Outputs, string(b))
		case 3: // name
			b, err := d.bytes()
			if err != nil {
				return n, err
			}
			n.Name = string(b)
		case 4: // op_type
			b, err := d.bytes()
			if err != nil {
				return n, err
			}
			n.OpType = string(b)
		case 5: // attribute
			b, err := d.bytes()
			if err != nil {
				return n, err
			}
			attr, err := parseAttribute(b)
			if err != nil {
				return n, err
			}
			n.Attributes = append(n.Attributes, attr)
		default:
			if err := d.skip(wire); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func parseAttribute(data []byte) (attributeProto, error) {
	a := attributeProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return a, err
		}
		switch field {
		case 1: // name
			b, err := d.bytes()
			if err != nil {
				return a, err
			}
			a.Name = string(b)
		case 3: // i
			if a.I, err = d.varint(); err != nil {
				return a, err
			}
		case 8: // ints
			if a.Ints, err = d.packedInt64s(wire, a.Ints); err != nil {
				return a, err
			}
		case 20: // type
			v, err := d.varint()
			if err != nil {
				return a, err
			}
			a.Type = int32(v) //nolint:gosec // G115: ONNX attribute type fits in int32
		default:
			if err := d.skip(wire); err != nil {
				return a, err
			}
		}
	}
	return a, nil
}

func parseTensor(data []byte) (tensorProto, error) {
	t := tensorProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return t, err
		}
		switch field {
		case 1: // dims
			if t.Dims, err = d.packedInt64s(wire, t.Dims); err != nil {
				return t, err
			}
		case 2: // data_type
			v, err := d.varint()
			if err != nil {
				return t, err
			}
			t.DataType = int32(v) //nolint:gosec // G115: ONNX dtype fits in int32
		case 4: // float_data (packed)
			b, err := d.bytes()
			if err != nil {
				return t, err
			}
			for i := 0; i+4 <= len(b); i += 4 {
				t.FloatData = append(t.FloatData, math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
			}
		case 8: // name
			b, err := d.bytes()
			if err != nil {
				return t, err
			}
			t.Name = string(b)
		case 9: // raw_data
			if t.RawData, err = d.bytes(); err != nil {
				return t, err
			}
		default:
			if err := d.skip(wire); err != nil {
				return t, err
			}
		}
	}
	return t, nil
}

func parseValueInfo(data []byte) (valueInfoProto, error) {
	vi := valueInfoProto{}
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return vi, err
		}
		switch field {
		case 1: // name
			b, err := d.bytes()
			if err != nil {
				return vi, err
			}
			vi.Name = string(b)
		case 2: // type
			b, err := d.bytes()
			if err != nil {
				return vi, err
			}
			if err := parseTypeInto(b, &vi); err != nil {
				return vi, err
			}
		default:
			if err := d.skip(wire); err != nil {
				return vi, err
			}
		}
	}
	return vi, nil
}

// parseTypeInto walks TypeProto -> TensorTypeProto -> TensorShapeProto and
// records the element type and declared dims on the value info.
func parseTypeInto(data []byte, vi *valueInfoProto) error {
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return err
		}
		if field != 1 { // tensor_type
			if err := d.skip(wire); err != nil {
				return err
			}
			continue
		}
		b, err := d.bytes()
		if err != nil {
			return err
		}
		td := &decoder{data: b}
		for td.more() {
			tf, tw, err := td.tag()
			if err != nil {
				return err
			}
			switch tf {
			case 1: // elem_type
				v, err := td.varint()
				if err != nil {
					return err
				}
				vi.ElemType = int32(v) //nolint:gosec // G115: ONNX dtype fits in int32
			case 2: // shape
				sb, err := td.bytes()
				if err != nil {
					return err
				}
				if err := parseShapeInto(sb, vi); err != nil {
					return err
				}
			default:
				if err := td.skip(tw); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func parseShapeInto(data []byte, vi *valueInfoProto) error {
	d := &decoder{data: data}
	for d.more() {
		field, wire, err := d.tag()
		if err != nil {
			return err
		}
		if field != 1 { // dim
			if err := d.skip(wire); err != nil {
				return err
			}
			continue
		}
		b, err := d.bytes()
		if err != nil {
			return err
		}
		dim := int64(-1) // dynamic unless a static dim_value is present
		dd := &decoder{data: b}
		for dd.more() {
			df, dw, err := dd.tag()
			if err != nil {
				return err
			}
			if df == 1 { // dim_value
				if dim, err = dd.varint(); err != nil {
					return err
				}
				continue
			}
			// dim_param or unknown: keep dynamic
			if err := dd.skip(dw); err != nil {
				return err
			}
		}
		vi.Dims = append(vi.Dims, dim)
	}
	return nil
}
