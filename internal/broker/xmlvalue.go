package broker

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// decodeXMLValue parses an XML document into the same generic shape JSON
// decoding produces: maps for elements with children, strings for leaves, and
// slices for repeated element names. The root element's own name is dropped.
func decodeXMLValue(data []byte) (interface{}, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("document has no root element")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return decodeXMLElement(decoder, start)
		}
	}
}

func decodeXMLElement(decoder *xml.Decoder, start xml.StartElement) (interface{}, error) {
	children := map[string][]interface{}{}
	var order []string
	var text strings.Builder

	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeXMLElement(decoder, t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if _, seen := children[name]; !seen {
				order = append(order, name)
			}
			children[name] = append(children[name], child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) == 0 {
				return strings.TrimSpace(text.String()), nil
			}
			result := map[string]interface{}{}
			for _, name := range order {
				values := children[name]
				if len(values) == 1 {
					result[name] = values[0]
				} else {
					result[name] = values
				}
			}
			return result, nil
		}
	}
}

// xmlListValue unwraps the serialiser's list convention: a list travels as an
// element whose children all share one name (typically `elem`).
func xmlListValue(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case map[string]interface{}:
		if len(t) != 1 {
			return nil, false
		}
		for _, inner := range t {
			if list, ok := inner.([]interface{}); ok {
				return list, true
			}
			return []interface{}{inner}, true
		}
	case string:
		if t == "" {
			return []interface{}{}, true
		}
	}
	return nil, false
}
