package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ============================================================
// Shape
// ============================================================

type ShapeKind string

const (
	KindLine   ShapeKind = "line"
	KindRect   ShapeKind = "rect"
	KindCircle ShapeKind = "circle"
	KindPath   ShapeKind = "path"
)

func (k ShapeKind) Valid() bool {
	switch k {
	case KindLine, KindRect, KindCircle, KindPath:
		return true
	}
	return false
}

type LineStyle struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// Shape: одна аннотация поверх графика. Постоянного id нет: shape
// идентифицируется позицией в ShapeList.
type Shape struct {
	Type      ShapeKind `json:"type"`
	X0        float64   `json:"x0"`
	Y0        float64   `json:"y0"`
	X1        float64   `json:"x1"`
	Y1        float64   `json:"y1"`
	Path      string    `json:"path,omitempty"`
	Line      LineStyle `json:"line"`
	FillColor string    `json:"fillcolor,omitempty"`
	Opacity   float64   `json:"opacity,omitempty"`

	// Extra хранит поля, которые присылает поверхность графика и которые
	// мы не интерпретируем (xref, editable, layer ...).
	Extra map[string]json.RawMessage `json:"-"`
}

// shapeFields: известные ключи; всё остальное уходит в Extra.
var shapeFields = map[string]struct{}{
	"type": {}, "x0": {}, "y0": {}, "x1": {}, "y1": {},
	"path": {}, "line": {}, "fillcolor": {}, "opacity": {},
}

type shapeAlias Shape

func (s Shape) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(shapeAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(s.Extra)+len(shapeFields))
	for k, v := range s.Extra {
		if _, ok := shapeFields[k]; ok {
			continue
		}
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (s *Shape) UnmarshalJSON(data []byte) error {
	var alias shapeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range shapeFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	} else {
		alias.Extra = nil
	}

	*s = Shape(alias)
	return nil
}

func (s Shape) Clone() Shape {
	out := s
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = bytes.Clone(v)
		}
	}
	return out
}

// Validate проверяет тип и геометрию.
func (s Shape) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown shape type %q", s.Type)
	}
	for _, v := range []float64{s.X0, s.Y0, s.X1, s.Y1, s.Line.Width, s.Opacity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: non-finite coordinate", s.Type)
		}
	}
	if s.Type == KindPath && s.Path == "" {
		return fmt.Errorf("path shape without path data")
	}
	if s.Line.Width < 0 {
		return fmt.Errorf("%s: negative line width", s.Type)
	}
	if s.Opacity < 0 || s.Opacity > 1 {
		return fmt.Errorf("%s: opacity out of range", s.Type)
	}
	return nil
}

// ============================================================
// ShapeList
// ============================================================

// ShapeList: упорядоченный набор shape; единица сохранения и снимок истории.
type ShapeList []Shape

func (l ShapeList) Clone() ShapeList {
	out := make(ShapeList, len(l))
	for i, s := range l {
		out[i] = s.Clone()
	}
	return out
}

func (l ShapeList) Validate() error {
	for i, s := range l {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("shape %d: %w", i, err)
		}
	}
	return nil
}

// MarshalJSON кодирует nil как []: удалённая сторона всегда ждёт массив.
func (l ShapeList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Shape(l))
}
