package qizxapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// The admin endpoints (getstats, listtasks, listqueries, getconfig) serialize
// their records with a buggy JSON writer: object keys may appear as unquoted
// barewords and embedded quotes are left unescaped. CanonicalJSON repairs
// both defects with a tokenizing pass so the result parses with a conforming
// decoder.

var jsonTokenizer = regexp.MustCompile(`\A(?:` +
	`(?P<true>true)` +
	`|(?P<false>false)` +
	`|(?P<null>null)` +
	`|(?P<bareword>[A-Za-z][A-Za-z0-9]+)` +
	`|(?P<string>"(?:[^"\\\x00-\x1f\x7f-\x9f]` +
	`|\\(?:["\\/bfnrt]|u[0-9a-fA-F]{4})` +
	`|"[^\[\]{},:]*")*")` +
	`|(?P<number>-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[Ee][+-]?[0-9]+)?)` +
	`|(?P<whitespace>\s+)` +
	`|(?P<char>.)` +
	`)`)

var innerQuote = regexp.MustCompile(`([^\\])"(.)`)

// CanonicalJSON rewrites the server's JSON text with barewords quoted and
// stray quotes escaped. Valid JSON passes through unchanged.
func CanonicalJSON(text string) string {
	var (
		out    strings.Builder
		names  = jsonTokenizer.SubexpNames()
		offset = 0
	)
	for offset < len(text) {
		m := jsonTokenizer.FindStringSubmatchIndex(text[offset:])
		if m == nil {
			break
		}
		group, token := "", ""
		for i := 1; i < len(names); i++ {
			if m[2*i] >= 0 {
				group = names[i]
				token = text[offset+m[2*i] : offset+m[2*i+1]]
				break
			}
		}
		switch group {
		case "bareword":
			out.WriteString(fmt.Sprintf("%q", token))
		case "string":
			out.WriteString(innerQuote.ReplaceAllString(token, `${1}\"${2}`))
		default:
			out.WriteString(token)
		}
		offset += m[1]
	}
	return out.String()
}

// DecodeRecords canonicalizes body and decodes the "records" array the admin
// endpoints wrap their results in.
func DecodeRecords(body []byte) ([]map[string]any, error) {
	var payload struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal([]byte(CanonicalJSON(string(body))), &payload); err != nil {
		return nil, fmt.Errorf("qizxapi: decode records: %w", err)
	}
	return payload.Records, nil
}
