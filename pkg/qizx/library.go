package qizx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/qizxdb/qizx-go/internal/httpx"
	"github.com/qizxdb/qizx-go/internal/qizxapi"
)

// Storable is one document to upload: its library path and its content.
type Storable struct {
	Path    string
	Content io.Reader
}

// PutOptions controls document uploads.
type PutOptions struct {
	// NonXML stores the documents as opaque (non-XML) data.
	NonXML bool
	// Library overrides the client's default library.
	Library string
}

// Property is one document or collection property. Type must be one of the
// server's property types ("string", "boolean", "integer", "double",
// "dateTime", "node()", "<expression>") or empty for string. A nil Value
// deletes the property.
type Property struct {
	Name  string
	Value any
	Type  string
}

var propertyTypes = map[string]bool{
	"":             true,
	"string":       true,
	"boolean":      true,
	"integer":      true,
	"double":       true,
	"dateTime":     true,
	"node()":       true,
	"<expression>": true,
}

// Access control scopes accepted by GetACL.
const (
	ScopeLocal   = "local"
	ScopeInherit = "inherit"
)

// Get retrieves a document, or the listing of a collection, as serialized
// bytes.
func (c *Client) Get(ctx context.Context, path, library string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	params := url.Values{"op": {"get"}, "path": {path}}
	setLibrary(params, library, c.cfg.DefaultLibrary)
	body, _, err := c.do(ctx, queryRequest(params))
	return body, err
}

// Put uploads documents as multipart form data. The server replies with an
// import report; a report counting failures surfaces as a *RemoteError with
// code XMLData.
func (c *Client) Put(ctx context.Context, storables []Storable, opts *PutOptions) error {
	if opts == nil {
		opts = &PutOptions{}
	}
	if len(storables) == 0 {
		return fmt.Errorf("%w: no documents to store", ErrInvalidRequest)
	}
	for _, s := range storables {
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("%w: storable with empty path", ErrInvalidRequest)
		}
		if s.Content == nil {
			return fmt.Errorf("%w: storable %q with nil content", ErrInvalidRequest, s.Path)
		}
	}

	op := "put"
	if opts.NonXML {
		op = "putnonxml"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("op", op); err != nil {
		return fmt.Errorf("qizx: encode upload: %w", err)
	}
	library := opts.Library
	if library == "" {
		library = c.cfg.DefaultLibrary
	}
	if library != "" {
		if err := writer.WriteField("library", library); err != nil {
			return fmt.Errorf("qizx: encode upload: %w", err)
		}
	}

	// Field pairs are numbered path/data, path2/data2, path3/data3...
	for i, s := range storables {
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i + 1)
		}
		if err := writer.WriteField("path"+suffix, s.Path); err != nil {
			return fmt.Errorf("qizx: encode upload: %w", err)
		}
		part, err := writer.CreateFormFile("data"+suffix, s.Path)
		if err != nil {
			return fmt.Errorf("qizx: encode upload: %w", err)
		}
		if _, err := io.Copy(part, s.Content); err != nil {
			return fmt.Errorf("qizx: read storable %q: %w", s.Path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("qizx: encode upload: %w", err)
	}

	req := &httpx.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {writer.FormDataContentType()}},
		Body:   &buf,
	}
	body, mimetype, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if mimetype != qizxapi.MimePlain {
		return &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	failures, ok := qizxapi.ImportErrors(string(body))
	if !ok {
		return &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	if failures > 0 {
		return &RemoteError{Code: CodeXMLData, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

// MkCol creates a collection and returns its path. With parents set, missing
// parent collections are created as well.
func (c *Client) MkCol(ctx context.Context, path string, parents bool, library string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	form := url.Values{
		"op":      {"mkcol"},
		"path":    {path},
		"parents": {strconv.FormatBool(parents)},
	}
	setLibrary(form, library, c.cfg.DefaultLibrary)
	return c.textOp(ctx, formRequest(form))
}

// Move relocates a document or collection and returns the destination path.
func (c *Client) Move(ctx context.Context, src, dst, library string) (string, error) {
	return c.srcDstOp(ctx, "move", src, dst, library)
}

// Copy duplicates a document or collection and returns the destination path.
func (c *Client) Copy(ctx context.Context, src, dst, library string) (string, error) {
	return c.srcDstOp(ctx, "copy", src, dst, library)
}

func (c *Client) srcDstOp(ctx context.Context, op, src, dst, library string) (string, error) {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return "", fmt.Errorf("%w: %s requires source and destination paths", ErrInvalidRequest, op)
	}
	form := url.Values{"op": {op}, "src": {src}, "dst": {dst}}
	setLibrary(form, library, c.cfg.DefaultLibrary)
	return c.textOp(ctx, formRequest(form))
}

// Delete removes a document or collection. It returns the deleted path, or
// an empty string when the member did not exist.
func (c *Client) Delete(ctx context.Context, path, library string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	form := url.Values{"op": {"delete"}, "path": {path}}
	setLibrary(form, library, c.cfg.DefaultLibrary)

	// Unlike the other text operations the response body may be empty,
	// meaning nothing was deleted.
	body, mimetype, err := c.do(ctx, formRequest(form))
	if err != nil {
		return "", err
	}
	if mimetype != qizxapi.MimePlain {
		return "", &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	return qizxapi.FirstLine(string(body)), nil
}

// GetProp returns the properties of a document or collection, optionally
// restricted to the named properties and descending depth levels into
// collections. The result maps member paths to their properties.
func (c *Client) GetProp(ctx context.Context, path string, names []string, depth int, library string) (map[string]Properties, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	params := url.Values{"op": {"getprop"}, "path": {path}}
	if len(names) > 0 {
		params.Set("properties", strings.Join(names, " "))
	}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	setLibrary(params, library, c.cfg.DefaultLibrary)

	body, err := c.xmlOp(ctx, queryRequest(params))
	if err != nil {
		return nil, err
	}
	return decodePropertyMap(body)
}

// SetProp updates properties on a document or collection and returns its
// path.
func (c *Client) SetProp(ctx context.Context, path string, props []Property, library string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	if len(props) == 0 {
		return "", fmt.Errorf("%w: no properties to set", ErrInvalidRequest)
	}

	form := url.Values{"op": {"setprop"}, "path": {path}}
	setLibrary(form, library, c.cfg.DefaultLibrary)

	// Property triples are numbered name/value/type, name2/value2/type2...
	for i, prop := range props {
		if !propertyTypes[prop.Type] {
			return "", fmt.Errorf("%w: unknown property type %q", ErrInvalidRequest, prop.Type)
		}
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i + 1)
		}
		form.Set("name"+suffix, prop.Name)
		if prop.Value != nil {
			form.Set("value"+suffix, fmt.Sprint(prop.Value))
		}
		if prop.Type != "" {
			form.Set("type"+suffix, prop.Type)
		}
	}
	return c.textOp(ctx, formRequest(form))
}

// QueryProp evaluates a property query and returns matching members'
// properties keyed by path. names defaults to path and nature; path
// restricts the query to one collection.
func (c *Client) QueryProp(ctx context.Context, query string, names []string, path, library string) (map[string]Properties, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty property query", ErrInvalidRequest)
	}
	form := url.Values{"op": {"queryprop"}, "query": {query}}
	if len(names) > 0 {
		form.Set("properties", strings.Join(names, " "))
	}
	if path != "" {
		form.Set("path", path)
	}
	setLibrary(form, library, c.cfg.DefaultLibrary)

	body, err := c.xmlOp(ctx, formRequest(form))
	if err != nil {
		return nil, err
	}
	return decodePropertyMap(body)
}

// GetIndexing returns a library's indexing specification as serialized XML.
func (c *Client) GetIndexing(ctx context.Context, library string) ([]byte, error) {
	params := url.Values{"op": {"getindexing"}}
	setLibrary(params, library, c.cfg.DefaultLibrary)
	return c.xmlOp(ctx, queryRequest(params))
}

// SetIndexing replaces a library's indexing specification. The specification
// is uploaded as a single file part, like a document put.
func (c *Client) SetIndexing(ctx context.Context, indexing io.Reader, library string) error {
	if indexing == nil {
		return fmt.Errorf("%w: nil indexing specification", ErrInvalidRequest)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("op", "setindexing"); err != nil {
		return fmt.Errorf("qizx: encode indexing upload: %w", err)
	}
	lib := library
	if lib == "" {
		lib = c.cfg.DefaultLibrary
	}
	if lib != "" {
		if err := writer.WriteField("library", lib); err != nil {
			return fmt.Errorf("qizx: encode indexing upload: %w", err)
		}
	}
	part, err := writer.CreateFormFile("indexing", "indexing")
	if err != nil {
		return fmt.Errorf("qizx: encode indexing upload: %w", err)
	}
	if _, err := io.Copy(part, indexing); err != nil {
		return fmt.Errorf("qizx: read indexing specification: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("qizx: encode indexing upload: %w", err)
	}

	req := &httpx.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {writer.FormDataContentType()}},
		Body:   &buf,
	}
	body, mimetype, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if mimetype != qizxapi.MimePlain {
		return &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	return nil
}

// GetACL returns the access control information of a library member as
// serialized XML. scope is ScopeLocal (the default) or ScopeInherit.
func (c *Client) GetACL(ctx context.Context, path, scope, library string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	switch scope {
	case "", ScopeLocal, ScopeInherit:
	default:
		return nil, fmt.Errorf("%w: unknown ACL scope %q", ErrInvalidRequest, scope)
	}

	params := url.Values{"op": {"getacl"}, "path": {path}}
	if scope != "" {
		params.Set("scope", scope)
	}
	setLibrary(params, library, c.cfg.DefaultLibrary)
	return c.xmlOp(ctx, queryRequest(params))
}

// SetACL installs an access control specification on a library.
func (c *Client) SetACL(ctx context.Context, acl, library string) error {
	if strings.TrimSpace(acl) == "" {
		return fmt.Errorf("%w: empty ACL specification", ErrInvalidRequest)
	}
	form := url.Values{"op": {"setacl"}, "acl": {acl}}
	setLibrary(form, library, c.cfg.DefaultLibrary)

	body, mimetype, err := c.do(ctx, formRequest(form))
	if err != nil {
		return err
	}
	if mimetype != qizxapi.MimePlain {
		return &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	return nil
}

// ApplyProperties updates properties on several members in one server-side
// transaction: all updates commit together or the transaction is rolled
// back, surfacing a *TransactionError with the server's error items.
func (c *Client) ApplyProperties(ctx context.Context, updates map[string][]Property, library string) error {
	if len(updates) == 0 {
		return nil
	}

	paths := make([]string, 0, len(updates))
	for path := range updates {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var query strings.Builder
	query.WriteString("try {")
	for _, path := range paths {
		for _, prop := range updates[path] {
			literal, err := propertyLiteral(prop)
			if err != nil {
				return err
			}
			fmt.Fprintf(&query, "xlib:set-property(%q, %q, %s);", path, prop.Name, literal)
		}
	}
	query.WriteString("xlib:commit();")
	query.WriteString("}catch($err){")
	query.WriteString("xlib:rollback(),")
	query.WriteString("element error{attribute type{name($err)},string($err)}")
	query.WriteString("}")

	result, err := c.Eval(ctx, query.String(), &EvalOptions{Format: FormatItems, Library: library})
	if err != nil {
		return err
	}
	if len(result.Items) > 0 {
		return &TransactionError{Items: result.Items}
	}
	return nil
}

// propertyLiteral renders a property value as the XQuery literal expected by
// xlib:set-property.
func propertyLiteral(prop Property) (string, error) {
	if !propertyTypes[prop.Type] {
		return "", fmt.Errorf("%w: unknown property type %q", ErrInvalidRequest, prop.Type)
	}
	switch prop.Type {
	case "", "string":
		return strconv.Quote(fmt.Sprint(prop.Value)), nil
	case "boolean":
		if b, ok := prop.Value.(bool); ok && b {
			return "true()", nil
		}
		return "false()", nil
	case "dateTime":
		if t, ok := prop.Value.(time.Time); ok {
			return fmt.Sprintf("xs:dateTime(%q)", t.Format(time.RFC3339)), nil
		}
		return fmt.Sprintf("xs:dateTime(%q)", fmt.Sprint(prop.Value)), nil
	case "node()":
		if el, ok := prop.Value.(*etree.Element); ok {
			doc := etree.NewDocument()
			doc.SetRoot(el.Copy())
			text, err := doc.WriteToString()
			if err != nil {
				return "", fmt.Errorf("qizx: serialize node property: %w", err)
			}
			return text, nil
		}
		return fmt.Sprint(prop.Value), nil
	default:
		return fmt.Sprint(prop.Value), nil
	}
}
