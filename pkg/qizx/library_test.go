package qizx_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qizxdb/qizx-go/pkg/qizx"
	"github.com/qizxdb/qizx-go/pkg/qizx/qizxtest"
)

func TestPutGetRoundTrip(t *testing.T) {
	client := newTestClient(t, qizxtest.New())
	ctx := context.Background()

	err := client.Put(ctx, []qizx.Storable{
		{Path: "/people/alice.xml", Content: strings.NewReader("<person>Alice</person>")},
		{Path: "/people/bob.xml", Content: strings.NewReader("<person>Bob</person>")},
	}, nil)
	require.NoError(t, err)

	body, err := client.Get(ctx, "/people/alice.xml", "")
	require.NoError(t, err)
	require.Equal(t, "<person>Alice</person>", string(body))
}

func TestGetCollectionListing(t *testing.T) {
	mock := qizxtest.New()
	mock.SeedDocument("qizx", "/docs/a.xml", []byte("<a/>"))
	mock.SeedDocument("qizx", "/docs/b.xml", []byte("<b/>"))
	client := newTestClient(t, mock)

	body, err := client.Get(context.Background(), "/", "")
	require.NoError(t, err)
	require.Equal(t, "/docs/a.xml\n/docs/b.xml", string(body))
}

func TestGetMissingMember(t *testing.T) {
	client := newTestClient(t, qizxtest.New())

	_, err := client.Get(context.Background(), "/nope.xml", "")
	require.True(t, qizx.IsRemoteError(err, qizx.CodeNotFound))
}

func TestPutValidation(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)
	ctx := context.Background()

	require.ErrorIs(t, client.Put(ctx, nil, nil), qizx.ErrInvalidRequest)
	require.ErrorIs(t, client.Put(ctx, []qizx.Storable{
		{Path: " ", Content: strings.NewReader("<a/>")},
	}, nil), qizx.ErrInvalidRequest)
	require.ErrorIs(t, client.Put(ctx, []qizx.Storable{
		{Path: "/a.xml"},
	}, nil), qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestPutReportsImportErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("IMPORTED 1\nIMPORT ERRORS 2\n"))
	}))

	err := client.Put(context.Background(), []qizx.Storable{
		{Path: "/a.xml", Content: strings.NewReader("not xml")},
	}, nil)
	require.True(t, qizx.IsRemoteError(err, qizx.CodeXMLData))
}

func TestPutSendsNumberedMultipartFields(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "putnonxml", r.FormValue("op"))
		require.Equal(t, "blobs", r.FormValue("library"))
		paths = []string{r.FormValue("path"), r.FormValue("path2")}
		require.Len(t, r.MultipartForm.File["data"], 1)
		require.Len(t, r.MultipartForm.File["data2"], 1)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("IMPORT ERRORS 0\n"))
	}))

	err := client.Put(context.Background(), []qizx.Storable{
		{Path: "/a.bin", Content: strings.NewReader("one")},
		{Path: "/b.bin", Content: strings.NewReader("two")},
	}, &qizx.PutOptions{NonXML: true, Library: "blobs"})
	require.NoError(t, err)
	require.Equal(t, []string{"/a.bin", "/b.bin"}, paths)
}

func TestMkCol(t *testing.T) {
	client := newTestClient(t, qizxtest.New())

	path, err := client.MkCol(context.Background(), "/archive/2026", true, "")
	require.NoError(t, err)
	require.Equal(t, "/archive/2026", path)
}

func TestMoveAndCopy(t *testing.T) {
	mock := qizxtest.New()
	mock.SeedDocument("qizx", "/a.xml", []byte("<a/>"))
	client := newTestClient(t, mock)
	ctx := context.Background()

	dst, err := client.Copy(ctx, "/a.xml", "/b.xml", "")
	require.NoError(t, err)
	require.Equal(t, "/b.xml", dst)

	dst, err = client.Move(ctx, "/a.xml", "/c.xml", "")
	require.NoError(t, err)
	require.Equal(t, "/c.xml", dst)

	_, err = client.Get(ctx, "/a.xml", "")
	require.True(t, qizx.IsRemoteError(err, qizx.CodeNotFound))

	body, err := client.Get(ctx, "/b.xml", "")
	require.NoError(t, err)
	require.Equal(t, "<a/>", string(body))
}

func TestDelete(t *testing.T) {
	mock := qizxtest.New()
	mock.SeedDocument("qizx", "/a.xml", []byte("<a/>"))
	client := newTestClient(t, mock)
	ctx := context.Background()

	path, err := client.Delete(ctx, "/a.xml", "")
	require.NoError(t, err)
	require.Equal(t, "/a.xml", path)

	// Deleting a member that does not exist is not an error; the empty
	// result says nothing was removed.
	path, err = client.Delete(ctx, "/a.xml", "")
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestGetProp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getprop", r.URL.Query().Get("op"))
		require.Equal(t, "/docs/a.xml", r.URL.Query().Get("path"))
		require.Equal(t, "nature size", r.URL.Query().Get("properties"))
		require.Equal(t, "2", r.URL.Query().Get("depth"))
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<meta><properties path="/docs/a.xml">` +
			`<property name="nature">document</property>` +
			`<property name="size" type="integer">9</property>` +
			`</properties></meta>`))
	}))

	props, err := client.GetProp(context.Background(), "/docs/a.xml", []string{"nature", "size"}, 2, "")
	require.NoError(t, err)
	require.Equal(t, "document", props["/docs/a.xml"]["nature"])
	require.Equal(t, int64(9), props["/docs/a.xml"]["size"])
}

func TestSetPropSendsNumberedTriples(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "setprop", r.FormValue("op"))
		require.Equal(t, "owner", r.FormValue("name"))
		require.Equal(t, "alice", r.FormValue("value"))
		require.Equal(t, "reviewed", r.FormValue("name2"))
		require.Equal(t, "true", r.FormValue("value2"))
		require.Equal(t, "boolean", r.FormValue("type2"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.FormValue("path") + "\n"))
	}))

	path, err := client.SetProp(context.Background(), "/docs/a.xml", []qizx.Property{
		{Name: "owner", Value: "alice"},
		{Name: "reviewed", Value: true, Type: "boolean"},
	}, "")
	require.NoError(t, err)
	require.Equal(t, "/docs/a.xml", path)
}

func TestSetPropRejectsUnknownType(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.SetProp(context.Background(), "/a.xml", []qizx.Property{
		{Name: "x", Value: "y", Type: "decimal"},
	}, "")
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestQueryProp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "queryprop", r.FormValue("op"))
		require.Equal(t, "nature = 'document'", r.FormValue("query"))
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<meta><properties path="/a.xml">` +
			`<property name="nature">document</property></properties></meta>`))
	}))

	props, err := client.QueryProp(context.Background(), "nature = 'document'", nil, "", "")
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.Equal(t, "document", props["/a.xml"]["nature"])
}

func TestIndexingRoundTrip(t *testing.T) {
	client := newTestClient(t, qizxtest.New())
	ctx := context.Background()

	spec := `<indexing><element name="person"/></indexing>`
	require.NoError(t, client.SetIndexing(ctx, strings.NewReader(spec), ""))

	got, err := client.GetIndexing(ctx, "")
	require.NoError(t, err)
	require.Equal(t, spec, string(got))
}

func TestSetIndexingRejectsNilReader(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	err := client.SetIndexing(context.Background(), nil, "")
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestACLRoundTrip(t *testing.T) {
	client := newTestClient(t, qizxtest.New())
	ctx := context.Background()

	acl := `<acl><rule principal="alice" access="read"/></acl>`
	require.NoError(t, client.SetACL(ctx, acl, ""))

	got, err := client.GetACL(ctx, "/", "", "")
	require.NoError(t, err)
	require.Equal(t, acl, string(got))
}

func TestGetACLSendsScope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getacl", r.URL.Query().Get("op"))
		require.Equal(t, "/docs", r.URL.Query().Get("path"))
		require.Equal(t, qizx.ScopeInherit, r.URL.Query().Get("scope"))
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte("<acl/>"))
	}))

	_, err := client.GetACL(context.Background(), "/docs", qizx.ScopeInherit, "")
	require.NoError(t, err)
}

func TestGetACLRejectsUnknownScope(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.GetACL(context.Background(), "/docs", "global", "")
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestApplyPropertiesCommits(t *testing.T) {
	var gotQuery string
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		gotQuery = query
		return []byte("<items/>"), "text/xml", nil
	})
	client := newTestClient(t, mock)

	err := client.ApplyProperties(context.Background(), map[string][]qizx.Property{
		"/docs/a.xml": {{Name: "reviewed", Value: true, Type: "boolean"}},
	}, "")
	require.NoError(t, err)
	require.Contains(t, gotQuery, `xlib:set-property("/docs/a.xml", "reviewed", true())`)
	require.Contains(t, gotQuery, "xlib:commit()")
	require.Contains(t, gotQuery, "xlib:rollback()")
}

func TestApplyPropertiesRollback(t *testing.T) {
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		return []byte(`<items><item type="string">access denied</item></items>`), "text/xml", nil
	})
	client := newTestClient(t, mock)

	err := client.ApplyProperties(context.Background(), map[string][]qizx.Property{
		"/docs/a.xml": {{Name: "owner", Value: "mallory"}},
	}, "")
	var txErr *qizx.TransactionError
	require.ErrorAs(t, err, &txErr)
	require.Len(t, txErr.Items, 1)
}

func TestApplyPropertiesEmptyIsNoOp(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	require.NoError(t, client.ApplyProperties(context.Background(), nil, ""))
	require.Zero(t, mock.Requests())
}
