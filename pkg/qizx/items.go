package qizx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// Item is a single typed value from an items-formatted evaluation result.
// Value holds a bool, int64, float64, time.Time, *etree.Element or string
// depending on Type.
type Item struct {
	Type  string
	Value any
}

// Properties maps property names to decoded values for one library member.
type Properties map[string]any

// decodeItems parses an <items> (or <result>) document into its typed
// values.
func decodeItems(body []byte) ([]Item, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("qizx: parse items response: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("qizx: empty items response")
	}

	elements := root.SelectElements("item")
	items := make([]Item, 0, len(elements))
	for _, el := range elements {
		item, err := decodeItem(el)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// decodeItem converts an <item> element according to its type attribute.
func decodeItem(el *etree.Element) (Item, error) {
	itemType := el.SelectAttrValue("type", "string")
	text := el.Text()

	switch itemType {
	case "boolean":
		return Item{Type: itemType, Value: text == "true"}, nil
	case "integer":
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Item{}, fmt.Errorf("qizx: decode integer item %q: %w", text, err)
		}
		return Item{Type: itemType, Value: n}, nil
	case "double":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Item{}, fmt.Errorf("qizx: decode double item %q: %w", text, err)
		}
		return Item{Type: itemType, Value: f}, nil
	case "dateTime":
		t, err := parseDateTime(text)
		if err != nil {
			return Item{}, fmt.Errorf("qizx: decode dateTime item %q: %w", text, err)
		}
		return Item{Type: itemType, Value: t}, nil
	case "element()":
		children := el.ChildElements()
		if len(children) == 0 {
			return Item{}, fmt.Errorf("qizx: element() item with no child element")
		}
		return Item{Type: itemType, Value: children[0].Copy()}, nil
	default:
		return Item{Type: itemType, Value: text}, nil
	}
}

// dateTime values arrive in ISO 8601 form, with or without sub-second
// precision or a zone offset.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func parseDateTime(text string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// decodePropertyMap parses the <properties> documents returned by getprop
// and queryprop into a path-keyed map.
func decodePropertyMap(body []byte) (map[string]Properties, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("qizx: parse properties response: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("qizx: empty properties response")
	}

	result := make(map[string]Properties)
	for _, props := range root.SelectElements("properties") {
		path := props.SelectAttrValue("path", "")
		decoded, err := decodeProperties(props)
		if err != nil {
			return nil, err
		}
		result[path] = decoded
	}
	return result, nil
}

// decodeProperties converts the <property> children of an element into a
// name-keyed map.
func decodeProperties(parent *etree.Element) (Properties, error) {
	props := make(Properties)
	for _, el := range parent.SelectElements("property") {
		name := el.SelectAttrValue("name", "")
		item, err := decodeItem(el)
		if err != nil {
			return nil, err
		}
		props[name] = item.Value
	}
	return props, nil
}
