// Package xmldoc is a small attributed element tree. It keeps what the payment protocol needs from an XML payload:
// element names, attributes in document order, child elements in document order and character data. Comments,
// processing instructions and whitespace-only text are dropped, except whitespace that is an element's only content.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/spirit-labs/opi/errors"
	"golang.org/x/net/html/charset"
)

const Header = `<?xml version="1.0" encoding="UTF-8"?>`

type Attr struct {
	Name  string
	Value string
}

type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	CharData string
}

func NewElement(name string, attrs ...Attr) *Element {
	return &Element{Name: name, Attrs: attrs}
}

// Attr returns the value of the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attributes returns a copy of the element's attributes.
func (e *Element) Attributes() map[string]string {
	m := make(map[string]string, len(e.Attrs))
	for _, a := range e.Attrs {
		m[a.Name] = a.Value
	}
	return m
}

// SetAttr replaces the named attribute if present, otherwise appends it.
func (e *Element) SetAttr(name string, value string) *Element {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

func (e *Element) Add(children ...*Element) *Element {
	for _, child := range children {
		if child != nil {
			e.Children = append(e.Children, child)
		}
	}
	return e
}

func (e *Element) SetText(text string) *Element {
	e.CharData = text
	return e
}

// Text is the concatenated character data of the element and all its descendants.
func (e *Element) Text() string {
	if len(e.Children) == 0 {
		return e.CharData
	}
	var sb strings.Builder
	e.appendText(&sb)
	return sb.String()
}

func (e *Element) appendText(sb *strings.Builder) {
	sb.WriteString(e.CharData)
	for _, child := range e.Children {
		child.appendText(sb)
	}
}

// FindFirst returns the first element named name in depth-first document order, starting with e itself.
func (e *Element) FindFirst(name string) *Element {
	if e.Name == name {
		return e
	}
	for _, child := range e.Children {
		if found := child.FindFirst(name); found != nil {
			return found
		}
	}
	return nil
}

// ChildrenNamed returns the direct children named name, in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	var res []*Element
	for _, child := range e.Children {
		if child.Name == name {
			res = append(res, child)
		}
	}
	return res
}

// Parse parses data into a tree and returns its root. Empty input fails with MissingXML, anything that is not a
// single well-formed element fails with InvalidXML.
func Parse(data []byte) (*Element, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewOpiError(errors.MissingXML, "no XML payload")
	}
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	var root *Element
	var stack []*Element
	// blank holds the whitespace-only text of each open element, cleared when anything else appears in it
	var blank []*string
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewOpiErrorf(errors.InvalidXML, "malformed XML: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			if len(blank) > 0 {
				blank[len(blank)-1] = nil
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.NewOpiErrorf(errors.InvalidXML, "malformed XML: second root element %s", el.Name)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
			blank = append(blank, new(string))
		case xml.EndElement:
			top := stack[len(stack)-1]
			if b := blank[len(blank)-1]; b != nil && *b != "" && top.CharData == "" {
				top.CharData = *b
			}
			stack = stack[:len(stack)-1]
			blank = blank[:len(blank)-1]
		case xml.Comment, xml.ProcInst:
			if len(blank) > 0 {
				blank[len(blank)-1] = nil
			}
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				if len(blank) > 0 {
					if b := blank[len(blank)-1]; b != nil {
						*b += string(t)
					}
				}
				continue
			}
			if len(stack) == 0 {
				return nil, errors.NewOpiError(errors.InvalidXML, "malformed XML: text outside of the root element")
			}
			blank[len(blank)-1] = nil
			top := stack[len(stack)-1]
			top.CharData += string(t)
		}
	}
	if root == nil {
		return nil, errors.NewOpiError(errors.InvalidXML, "malformed XML: no root element")
	}
	return root, nil
}

func attrName(name xml.Name) string {
	if name.Space == "xmlns" {
		return "xmlns:" + name.Local
	}
	return name.Local
}

// Marshal renders root as an indented UTF-8 document preceded by Header.
func Marshal(root *Element) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteByte('\n')
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encode(encoder, root); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := encoder.Flush(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func encode(encoder *xml.Encoder, e *Element) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	if e.CharData != "" {
		if err := encoder.EncodeToken(xml.CharData(e.CharData)); err != nil {
			return err
		}
	}
	for _, child := range e.Children {
		if err := encode(encoder, child); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}
