package qizx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qizxdb/qizx-go/internal/qizxapi"
)

// Server control commands.
const (
	ServerStatus  = "status"
	ServerOnline  = "online"
	ServerOffline = "offline"
	ServerReload  = "reload"
)

// Configuration and statistics detail levels.
const (
	LevelAdmin  = "admin"
	LevelExpert = "expert"
)

// AllLibraries selects every library for maintenance operations.
const AllLibraries = "*"

// ConfigProperty is one server configuration setting.
type ConfigProperty struct {
	Name  string
	Value string
}

// ListLibraries returns the names of the XML libraries hosted by the server.
func (c *Client) ListLibraries(ctx context.Context) ([]string, error) {
	body, mimetype, err := c.do(ctx, queryRequest(url.Values{"op": {"listlib"}}))
	if err != nil {
		return nil, err
	}
	if mimetype != qizxapi.MimePlain || len(body) == 0 {
		return nil, &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	return splitLines(string(body)), nil
}

// MkLib creates a library and returns its name.
func (c *Client) MkLib(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty library name", ErrInvalidRequest)
	}
	return c.textOp(ctx, formRequest(url.Values{"op": {"mklib"}, "name": {name}}))
}

// DelLib deletes a library and returns its name.
func (c *Client) DelLib(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty library name", ErrInvalidRequest)
	}
	return c.textOp(ctx, formRequest(url.Values{"op": {"dellib"}, "name": {name}}))
}

// ServerControl sends a control command (ServerStatus, ServerOnline,
// ServerOffline or ServerReload) and returns the resulting engine state.
func (c *Client) ServerControl(ctx context.Context, command string) (string, error) {
	switch command {
	case ServerStatus, ServerOnline, ServerOffline, ServerReload:
	default:
		return "", fmt.Errorf("%w: unknown server command %q", ErrInvalidRequest, command)
	}
	return c.textOp(ctx, formRequest(url.Values{"op": {"server"}, "command": {command}}))
}

// Reindex asks the server to rebuild a library's indexes. It returns a
// progress identifier for use with Progress and Wait.
func (c *Client) Reindex(ctx context.Context, library string) (string, error) {
	form := url.Values{"op": {"reindex"}}
	setLibrary(form, library, c.cfg.DefaultLibrary)
	return c.textOp(ctx, formRequest(form))
}

// Optimize asks the server to optimize a library's storage. It returns a
// progress identifier.
func (c *Client) Optimize(ctx context.Context, library string) (string, error) {
	form := url.Values{"op": {"optimize"}}
	setLibrary(form, library, c.cfg.DefaultLibrary)
	return c.textOp(ctx, formRequest(form))
}

// Backup starts a backup into the given server-side directory and returns a
// progress identifier. The AllLibraries constant backs up every library.
func (c *Client) Backup(ctx context.Context, directory, library string) (string, error) {
	if strings.TrimSpace(directory) == "" {
		return "", fmt.Errorf("%w: empty backup directory", ErrInvalidRequest)
	}
	if library == "" {
		library = AllLibraries
	}
	form := url.Values{"op": {"backup"}, "path": {directory}, "library": {library}}
	return c.textOp(ctx, formRequest(form))
}

// Progress reports on a long-running task: its name and completion ratio
// between 0 and 1.
func (c *Client) Progress(ctx context.Context, id string) (task string, done float64, err error) {
	if strings.TrimSpace(id) == "" {
		return "", 0, fmt.Errorf("%w: empty progress identifier", ErrInvalidRequest)
	}
	body, mimetype, err := c.do(ctx, queryRequest(url.Values{"op": {"progress"}, "id": {id}}))
	if err != nil {
		return "", 0, err
	}
	if mimetype != qizxapi.MimePlain {
		return "", 0, &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	lines := splitLines(string(body))
	if len(lines) < 2 {
		return "", 0, &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	done, parseErr := strconv.ParseFloat(lines[1], 64)
	if parseErr != nil {
		return "", 0, &TransportError{StatusCode: http.StatusOK, Body: body}
	}
	return lines[0], done, nil
}

// DefaultPollInterval is the delay between Progress probes inside Wait.
const DefaultPollInterval = 5 * time.Second

// Wait polls Progress until the task completes or ctx expires; use a
// deadline on ctx to bound the wait. A non-positive poll falls back to
// DefaultPollInterval.
func (c *Client) Wait(ctx context.Context, id string, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	for {
		_, done, err := c.Progress(ctx, id)
		if err != nil {
			return err
		}
		if done >= 1 {
			return nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// CancelQuery cancels a running query and returns the server's cancel
// status ("OK", "idle" or "unknown").
func (c *Client) CancelQuery(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty query identifier", ErrInvalidRequest)
	}
	return c.textOp(ctx, queryRequest(url.Values{"op": {"cancelquery"}, "xid": {id}}))
}

// GetStats returns server statistics at the requested detail level.
func (c *Client) GetStats(ctx context.Context, level string) ([]map[string]any, error) {
	if level == "" {
		level = LevelAdmin
	}
	if level != LevelAdmin && level != LevelExpert {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, level)
	}
	return c.jsonRecords(ctx, url.Values{"op": {"getstats"}, "level": {level}})
}

// GetConfig returns the server configuration at the requested detail level.
func (c *Client) GetConfig(ctx context.Context, level string) ([]map[string]any, error) {
	if level == "" {
		level = LevelAdmin
	}
	if level != LevelAdmin && level != LevelExpert {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, level)
	}
	return c.jsonRecords(ctx, url.Values{"op": {"getconfig"}, "level": {level}})
}

// ChangeConfig updates server configuration properties. It reports whether
// at least one property changed.
func (c *Client) ChangeConfig(ctx context.Context, props []ConfigProperty) (bool, error) {
	if len(props) == 0 {
		return false, fmt.Errorf("%w: no properties to change", ErrInvalidRequest)
	}
	form := url.Values{"op": {"changeconfig"}}
	// Property pairs are numbered from zero: property0/value0...
	for i, prop := range props {
		form.Set("property"+strconv.Itoa(i), prop.Name)
		form.Set("value"+strconv.Itoa(i), prop.Value)
	}
	line, err := c.textOp(ctx, formRequest(form))
	if err != nil {
		return false, err
	}
	return line == "true", nil
}

// ListTasks returns current maintenance tasks, or tasks up to timeline hours
// old when timeline is positive.
func (c *Client) ListTasks(ctx context.Context, timeline int) ([]map[string]any, error) {
	if timeline < 0 {
		return nil, fmt.Errorf("%w: negative timeline", ErrInvalidRequest)
	}
	return c.jsonRecords(ctx, url.Values{
		"op":       {"listtasks"},
		"timeline": {strconv.Itoa(timeline)},
	})
}

// ListQueries returns the queries currently running on the server.
func (c *Client) ListQueries(ctx context.Context) ([]map[string]any, error) {
	return c.jsonRecords(ctx, url.Values{"op": {"listqueries"}})
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}
