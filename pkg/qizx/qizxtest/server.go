// Package qizxtest provides an in-memory implementation of the Qizx REST
// protocol for tests, examples and local development. It stores documents
// and properties per library and dispatches on the op field like the real
// server; query evaluation is delegated to a caller-provided hook since the
// mock does not embed an XQuery engine.
package qizxtest

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// EvalFunc produces the response for an eval request. It returns the
// serialized payload and its content type, or an error rendered as the
// text/x-qizx-error mimetype.
type EvalFunc func(query, library, format string) ([]byte, string, error)

// Server is an in-memory Qizx server. The zero value is not usable; create
// instances with New.
type Server struct {
	mu        sync.Mutex
	libraries map[string]*library
	evalFunc  EvalFunc
	progress  map[string]float64
	engine    string
	requests  int
}

type library struct {
	documents   map[string][]byte
	collections map[string]bool
	properties  map[string]map[string]string
	indexing    []byte
	acls        map[string][]byte
}

func newLibrary() *library {
	return &library{
		documents:   make(map[string][]byte),
		collections: map[string]bool{"/": true},
		properties:  make(map[string]map[string]string),
		indexing:    []byte("<indexing/>"),
		acls:        make(map[string][]byte),
	}
}

// New returns a Server with a single default library named "qizx".
func New() *Server {
	return &Server{
		libraries: map[string]*library{"qizx": newLibrary()},
		progress:  make(map[string]float64),
		engine:    "online",
	}
}

// SetEvalFunc installs the hook invoked for eval requests. Without one,
// every evaluation fails with a Compilation error.
func (s *Server) SetEvalFunc(fn EvalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evalFunc = fn
}

// SeedDocument stores a document directly, bypassing the HTTP surface.
func (s *Server) SeedDocument(libraryName, path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lib := s.library(libraryName)
	lib.documents[path] = append([]byte(nil), content...)
}

// SetProgress seeds the completion ratio reported for a progress
// identifier.
func (s *Server) SetProgress(id string, done float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = done
}

// Requests returns the number of requests dispatched so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// library returns the named library, falling back to the default. Callers
// must hold mu.
func (s *Server) library(name string) *library {
	if name == "" {
		name = "qizx"
	}
	lib, ok := s.libraries[name]
	if !ok {
		lib = newLibrary()
		s.libraries[name] = lib
	}
	return lib
}

// ServeHTTP dispatches a request on its op field.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && err != http.ErrNotMultipart {
		if err := r.ParseForm(); err != nil {
			qizxError(w, "BadRequest", "unreadable request")
			return
		}
	}

	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	op := r.FormValue("op")
	switch op {
	case "eval":
		s.handleEval(w, r)
	case "info":
		s.handleInfo(w)
	case "get":
		s.handleGet(w, r)
	case "put", "putnonxml":
		s.handlePut(w, r)
	case "mkcol":
		s.handleMkCol(w, r)
	case "move", "copy":
		s.handleMoveCopy(w, r, op)
	case "delete":
		s.handleDelete(w, r)
	case "listlib":
		s.handleListLib(w)
	case "mklib":
		s.handleMkLib(w, r)
	case "dellib":
		s.handleDelLib(w, r)
	case "server":
		s.handleServer(w, r)
	case "reindex", "optimize", "backup":
		s.handleMaintenance(w, op)
	case "progress":
		s.handleProgress(w, r)
	case "getindexing":
		s.handleGetIndexing(w, r)
	case "setindexing":
		s.handleSetIndexing(w, r)
	case "getacl":
		s.handleGetACL(w, r)
	case "setacl":
		s.handleSetACL(w, r)
	default:
		qizxError(w, "BadRequest", fmt.Sprintf("unknown operation %q", op))
	}
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	query := r.FormValue("query")
	if query == "" {
		qizxError(w, "BadRequest", "missing query")
		return
	}

	s.mu.Lock()
	fn := s.evalFunc
	s.mu.Unlock()
	if fn == nil {
		qizxError(w, "Compilation", "no evaluation hook installed")
		return
	}

	payload, contentType, err := fn(query, r.FormValue("library"), r.FormValue("format"))
	if err != nil {
		qizxError(w, "Evaluation", err.Error())
		return
	}
	if contentType == "" {
		contentType = "text/xml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(payload)
}

func (s *Server) handleInfo(w http.ResponseWriter) {
	s.mu.Lock()
	engine := s.engine
	count := len(s.libraries)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<info><property name="server">qizxtest</property>`+
		`<property name="engine">%s</property>`+
		`<property name="libraries" type="integer">%d</property></info>`, engine, count)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	s.mu.Lock()
	lib := s.library(r.FormValue("library"))
	content, ok := lib.documents[path]
	var listing []string
	if !ok && lib.collections[path] {
		prefix := strings.TrimSuffix(path, "/") + "/"
		for p := range lib.documents {
			if strings.HasPrefix(p, prefix) {
				listing = append(listing, p)
			}
		}
		sort.Strings(listing)
		ok = true
	}
	s.mu.Unlock()

	if !ok {
		qizxError(w, "NotFound", "no such library member: "+path)
		return
	}
	if listing != nil {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, strings.Join(listing, "\n"))
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write(content)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil {
		qizxError(w, "BadRequest", "put requires multipart form data")
		return
	}

	stored := 0
	s.mu.Lock()
	lib := s.library(r.FormValue("library"))
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, "data") {
			continue
		}
		suffix := strings.TrimPrefix(field, "data")
		path := r.FormValue("path" + suffix)
		if path == "" || len(headers) == 0 {
			continue
		}
		file, err := headers[0].Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			continue
		}
		lib.documents[path] = content
		stored++
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "IMPORTED %d\nIMPORT ERRORS 0\n", stored)
}

func (s *Server) handleMkCol(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	s.mu.Lock()
	lib := s.library(r.FormValue("library"))
	lib.collections[path] = true
	if r.FormValue("parents") == "true" {
		for dir := parentPath(path); dir != ""; dir = parentPath(dir) {
			lib.collections[dir] = true
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, path+"\n")
}

func (s *Server) handleMoveCopy(w http.ResponseWriter, r *http.Request, op string) {
	src, dst := r.FormValue("src"), r.FormValue("dst")
	s.mu.Lock()
	lib := s.library(r.FormValue("library"))
	content, ok := lib.documents[src]
	if ok {
		lib.documents[dst] = content
		if op == "move" {
			delete(lib.documents, src)
		}
	}
	s.mu.Unlock()

	if !ok {
		qizxError(w, "NotFound", "no such library member: "+src)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, dst+"\n")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	s.mu.Lock()
	lib := s.library(r.FormValue("library"))
	_, ok := lib.documents[path]
	delete(lib.documents, path)
	delete(lib.collections, path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	if ok {
		io.WriteString(w, path)
	}
	io.WriteString(w, "\n")
}

func (s *Server) handleListLib(w http.ResponseWriter) {
	s.mu.Lock()
	names := make([]string, 0, len(s.libraries))
	for name := range s.libraries {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, strings.Join(names, "\n")+"\n")
}

func (s *Server) handleMkLib(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	if name == "" {
		qizxError(w, "BadRequest", "missing library name")
		return
	}
	s.mu.Lock()
	s.library(name)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, name+"\n")
}

func (s *Server) handleDelLib(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	s.mu.Lock()
	_, ok := s.libraries[name]
	delete(s.libraries, name)
	s.mu.Unlock()

	if !ok {
		qizxError(w, "NotFound", "no such library: "+name)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, name+"\n")
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	command := r.FormValue("command")
	s.mu.Lock()
	switch command {
	case "online", "reload":
		s.engine = "online"
	case "offline":
		s.engine = "offline"
	case "status":
	default:
		s.mu.Unlock()
		qizxError(w, "BadRequest", "unknown server command: "+command)
		return
	}
	engine := s.engine
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, engine+"\n")
}

func (s *Server) handleMaintenance(w http.ResponseWriter, op string) {
	s.mu.Lock()
	id := fmt.Sprintf("%s-%d", op, len(s.progress)+1)
	s.progress[id] = 1
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, id+"\n")
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("id")
	s.mu.Lock()
	done, ok := s.progress[id]
	s.mu.Unlock()

	if !ok {
		qizxError(w, "NotFound", "no such task: "+id)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%s\n%g\n", id, done)
}

func (s *Server) handleGetIndexing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	indexing := s.library(r.FormValue("library")).indexing
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	w.Write(indexing)
}

func (s *Server) handleSetIndexing(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["indexing"]) == 0 {
		qizxError(w, "BadRequest", "setindexing requires an indexing file part")
		return
	}
	file, err := r.MultipartForm.File["indexing"][0].Open()
	if err != nil {
		qizxError(w, "BadRequest", "unreadable indexing part")
		return
	}
	content, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		qizxError(w, "BadRequest", "unreadable indexing part")
		return
	}

	name := r.FormValue("library")
	s.mu.Lock()
	s.library(name).indexing = content
	s.mu.Unlock()

	if name == "" {
		name = "qizx"
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, name+"\n")
}

func (s *Server) handleGetACL(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	s.mu.Lock()
	acl, ok := s.library(r.FormValue("library")).acls[path]
	s.mu.Unlock()

	if !ok {
		acl = []byte("<acl/>")
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write(acl)
}

func (s *Server) handleSetACL(w http.ResponseWriter, r *http.Request) {
	acl := r.FormValue("acl")
	if acl == "" {
		qizxError(w, "BadRequest", "missing acl")
		return
	}

	name := r.FormValue("library")
	s.mu.Lock()
	// The mock applies one library-wide ACL keyed at the root.
	s.library(name).acls["/"] = []byte(acl)
	s.mu.Unlock()

	if name == "" {
		name = "qizx"
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, name+"\n")
}

func parentPath(path string) string {
	idx := strings.LastIndex(strings.TrimSuffix(path, "/"), "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// qizxError writes a server error in the text/x-qizx-error form the real
// server uses.
func qizxError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "text/x-qizx-error")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "%s: %s", code, message)
}
