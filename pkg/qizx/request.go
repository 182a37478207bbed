package qizx

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qizxdb/qizx-go/internal/httpx"
)

// Response formats accepted by Eval.
const (
	FormatItems = "items"
	FormatXML   = "xml"
	FormatHTML  = "html"
	FormatXHTML = "xhtml"
)

// Counting methods accepted by Eval when the format is items.
const (
	CountingExact     = "exact"
	CountingEstimated = "estimated"
	CountingNone      = "none"
)

// ModeProfile asks the server to profile the query instead of running it.
const ModeProfile = "profile"

// EvalOptions refines a query evaluation. The zero value asks for the
// server's default XML serialization, parsed into a document tree.
type EvalOptions struct {
	// Library overrides the client's default library. When both are
	// empty the field is omitted and the server default applies.
	Library string
	// Raw returns the serialized response verbatim without parsing.
	Raw bool
	// Format selects the response format: FormatItems, FormatXML (the
	// server default), FormatHTML or FormatXHTML.
	Format string
	// Mode selects the execution mode; only ModeProfile is defined and it
	// requires FormatItems.
	Mode string
	// MaxTime bounds server-side execution; zero means no limit.
	MaxTime time.Duration
	// Counting, Count and First tune item retrieval and all require
	// FormatItems. Count and First are 1-based.
	Counting string
	Count    int
	First    int
	// Bindings maps external variable names to values. Values must be
	// strings, integers, floats or booleans.
	Bindings map[string]any
}

// Form field names owned by the wire protocol. Bind variables must not
// collide with them.
var reservedFields = map[string]bool{
	"op":       true,
	"query":    true,
	"format":   true,
	"mode":     true,
	"maxtime":  true,
	"counting": true,
	"count":    true,
	"first":    true,
	"library":  true,
}

// buildEval validates the evaluation inputs and encodes them as the
// form-encoded POST the server expects. Operations are multiplexed by the
// op field against the configured API endpoint.
func buildEval(expression string, opts *EvalOptions, defaultLibrary string) (*httpx.Request, error) {
	if opts == nil {
		opts = &EvalOptions{}
	}
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: empty query expression", ErrInvalidRequest)
	}
	if err := validateEvalOptions(opts); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("op", "eval")
	form.Set("query", expression)
	if opts.Format != "" {
		form.Set("format", opts.Format)
	}
	if opts.Mode != "" {
		form.Set("mode", opts.Mode)
	}
	if opts.MaxTime > 0 {
		form.Set("maxtime", strconv.FormatInt(opts.MaxTime.Milliseconds(), 10))
	}
	if opts.Counting != "" {
		form.Set("counting", opts.Counting)
	}
	if opts.Count > 0 {
		form.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.First > 0 {
		form.Set("first", strconv.Itoa(opts.First))
	}
	setLibrary(form, opts.Library, defaultLibrary)

	if err := encodeBindings(form, opts.Bindings); err != nil {
		return nil, err
	}

	return formRequest(form), nil
}

func validateEvalOptions(opts *EvalOptions) error {
	switch opts.Format {
	case "", FormatItems, FormatXML, FormatHTML, FormatXHTML:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, opts.Format)
	}

	items := opts.Format == FormatItems
	if opts.Mode != "" {
		if opts.Mode != ModeProfile {
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, opts.Mode)
		}
		if !items {
			return fmt.Errorf("%w: mode requires format=items", ErrInvalidRequest)
		}
	}
	if opts.MaxTime < 0 {
		return fmt.Errorf("%w: negative maxtime", ErrInvalidRequest)
	}
	if opts.Counting != "" {
		if opts.Counting != CountingExact && opts.Counting != CountingEstimated && opts.Counting != CountingNone {
			return fmt.Errorf("%w: unknown counting %q", ErrInvalidRequest, opts.Counting)
		}
		if !items {
			return fmt.Errorf("%w: counting requires format=items", ErrInvalidRequest)
		}
	}
	if opts.Count < 0 || (opts.Count > 0 && !items) {
		return fmt.Errorf("%w: count requires format=items and a positive value", ErrInvalidRequest)
	}
	if opts.First < 0 || (opts.First > 0 && !items) {
		return fmt.Errorf("%w: first requires format=items and a positive value", ErrInvalidRequest)
	}
	return nil
}

// encodeBindings adds bind variables to the form in name order. Each
// variable becomes a form field named after it, so names are checked
// against the protocol's reserved fields.
func encodeBindings(form url.Values, bindings map[string]any) error {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty bind variable name", ErrInvalidRequest)
		}
		if reservedFields[name] {
			return fmt.Errorf("%w: bind variable %q collides with a protocol field", ErrInvalidRequest, name)
		}
		encoded, err := encodeBindingValue(bindings[name])
		if err != nil {
			return fmt.Errorf("%w: bind variable %q: %v", ErrInvalidRequest, name, err)
		}
		form.Set(name, encoded)
	}
	return nil
}

func encodeBindingValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

// setLibrary adds the library field unless neither an explicit nor a default
// library is set, letting the server apply its own default.
func setLibrary(form url.Values, library, defaultLibrary string) {
	if library == "" {
		library = defaultLibrary
	}
	if library != "" {
		form.Set("library", library)
	}
}

// formRequest wraps an encoded form into the POST request the server
// expects.
func formRequest(form url.Values) *httpx.Request {
	return &httpx.Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   strings.NewReader(form.Encode()),
	}
}

// queryRequest wraps parameters into a GET request for read-only
// operations.
func queryRequest(params url.Values) *httpx.Request {
	return &httpx.Request{
		Method: http.MethodGet,
		Query:  params,
	}
}
