// Package qizxapi interprets the payloads produced by the Qizx REST API:
// content-type negotiation, structured error extraction, import reports and
// a repair pass for the server's JSON serialization quirks.
package qizxapi

import (
	"encoding/json"
	"mime"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// Content types produced by the server.
const (
	MimeError = "text/x-qizx-error"
	MimePlain = "text/plain"
	MimeXML   = "text/xml"
	MimeJSON  = "application/json"
)

// ParseContentType splits a Content-Type header into mimetype and parameters.
// Text content defaults to UTF-8 when no charset is declared.
func ParseContentType(header string) (string, map[string]string) {
	if strings.TrimSpace(header) == "" {
		return "", nil
	}
	mimetype, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", nil
	}
	if params == nil {
		params = make(map[string]string)
	}
	if strings.HasPrefix(mimetype, "text/") {
		if _, ok := params["charset"]; !ok {
			params["charset"] = "utf-8"
		}
	}
	return mimetype, params
}

// ErrorFromBody extracts the server-reported error code and message from an
// error payload. The server emits errors in three shapes: the
// text/x-qizx-error mimetype ("Code: message"), a JSON object with "code"
// and "message" fields, or an XML <error> document. ok is false when the
// body matches none of them.
func ErrorFromBody(mimetype string, body []byte) (code, message string, ok bool) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", "", false
	}

	switch mimetype {
	case MimeError:
		code, message, found := strings.Cut(text, ":")
		if !found {
			return strings.TrimSpace(code), "", true
		}
		return strings.TrimSpace(code), strings.TrimSpace(message), true
	case MimeJSON:
		return errorFromJSON(text)
	case MimeXML:
		return errorFromXML(text)
	}

	// Untyped bodies: try both structured forms before giving up.
	if code, message, ok := errorFromJSON(text); ok {
		return code, message, ok
	}
	return errorFromXML(text)
}

func errorFromJSON(text string) (string, string, bool) {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return "", "", false
	}
	if payload.Error != nil && (payload.Error.Code != "" || payload.Error.Message != "") {
		return payload.Error.Code, payload.Error.Message, true
	}
	if payload.Code == "" && payload.Message == "" {
		return "", "", false
	}
	return payload.Code, payload.Message, true
}

func errorFromXML(text string) (string, string, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return "", "", false
	}
	root := doc.Root()
	if root == nil || root.Tag != "error" {
		return "", "", false
	}
	code := root.SelectAttrValue("code", root.SelectAttrValue("type", ""))
	return code, strings.TrimSpace(root.Text()), true
}

var importReport = regexp.MustCompile(`(?m)^IMPORT ERRORS ([0-9]+)\s*$`)

// ImportErrors parses the report returned by put operations. ok is false
// when the body carries no report at all.
func ImportErrors(body string) (count int, ok bool) {
	m := importReport.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	return n, true
}

// FirstLine returns the first line of a text/plain response body.
func FirstLine(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	return strings.TrimRight(line, "\r")
}
