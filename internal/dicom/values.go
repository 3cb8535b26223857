package dicom

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// findElement returns the element with tag t in elements, or nil.
func findElement(elements []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, elem := range elements {
		if elem.Tag == t {
			return elem
		}
	}
	return nil
}

// stringValue returns the first string value of t, trimmed, or "".
func stringValue(elements []*dicom.Element, t tag.Tag) string {
	values := stringValues(elements, t)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func stringValues(elements []*dicom.Element, t tag.Tag) []string {
	elem := findElement(elements, t)
	if elem == nil {
		return nil
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimRight(strings.TrimSpace(v), "\x00")
	}
	return out
}

// intValue returns the first integer value of t. IS strings are accepted.
func intValue(elements []*dicom.Element, t tag.Tag) (int, error) {
	elem := findElement(elements, t)
	if elem == nil {
		return 0, fmt.Errorf("missing %v", t)
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			if err != nil {
				return 0, fmt.Errorf("%v: %w", t, err)
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("%v has no integer value", t)
}

// floatValues returns the values of a DS, FL, FD or OF element.
func floatValues(elements []*dicom.Element, t tag.Tag) ([]float64, error) {
	elem := findElement(elements, t)
	if elem == nil {
		return nil, fmt.Errorf("missing %v", t)
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", t, err)
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%v has no numeric value", t)
}

// items returns the items of a sequence element, or nil.
func items(elements []*dicom.Element, t tag.Tag) [][]*dicom.Element {
	elem := findElement(elements, t)
	if elem == nil {
		return nil
	}
	seq, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		if elems, ok := item.GetValue().([]*dicom.Element); ok {
			out = append(out, elems)
		}
	}
	return out
}

// intValues returns every integer value of t.
func intValues(elements []*dicom.Element, t tag.Tag) ([]int, error) {
	elem := findElement(elements, t)
	if elem == nil {
		return nil, fmt.Errorf("missing %v", t)
	}
	v, ok := elem.Value.GetValue().([]int)
	if !ok {
		return nil, fmt.Errorf("%v has no integer values", t)
	}
	return v, nil
}

// float32Values decodes an OF element holding want values. ReadAnnotationObject
// hands the payload over as raw bytes; decoded floats are accepted too.
func float32Values(elements []*dicom.Element, t tag.Tag, want int) ([]float32, error) {
	elem := findElement(elements, t)
	if elem == nil {
		return nil, fmt.Errorf("missing %v", t)
	}
	var data []byte
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		if len(v) != want {
			return nil, fmt.Errorf("%v has %d values, want %d", t, len(v), want)
		}
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("%v has no float values", t)
	}
	if len(data) != 4*want {
		return nil, fmt.Errorf("%v has %d bytes, want %d", t, len(data), 4*want)
	}
	out := make([]float32, want)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}
