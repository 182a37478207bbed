package qizx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qizxdb/qizx-go/pkg/qizx"
	"github.com/qizxdb/qizx-go/pkg/qizx/qizxtest"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...qizx.Option) *qizx.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := qizx.New(srv.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestEvalRawReturnsPayloadVerbatim(t *testing.T) {
	const payload = "<result><name>Alice</name></result>"
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		return []byte(payload), "text/xml", nil
	})
	client := newTestClient(t, mock)

	result, err := client.Eval(context.Background(), "//person/name", &qizx.EvalOptions{Raw: true})
	require.NoError(t, err)
	require.Equal(t, payload, string(result.Raw))
	require.Nil(t, result.Doc)
}

func TestEvalParsesDocument(t *testing.T) {
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		return []byte("<result><name>Alice</name></result>"), "text/xml", nil
	})
	client := newTestClient(t, mock)

	result, err := client.Eval(context.Background(), "//person/name", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Doc)
	require.Equal(t, "Alice", result.Doc.Root().SelectElement("name").Text())
}

func TestEvalItemsFormat(t *testing.T) {
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		require.Equal(t, qizx.FormatItems, format)
		return []byte(`<items><item type="integer">2</item></items>`), "text/xml", nil
	})
	client := newTestClient(t, mock)

	result, err := client.Eval(context.Background(), "1 + 1", &qizx.EvalOptions{Format: qizx.FormatItems})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, int64(2), result.Items[0].Value)
}

func TestEvalSendsDefaultLibrary(t *testing.T) {
	var gotLibrary string
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		gotLibrary = library
		return []byte("<r/>"), "text/xml", nil
	})
	client := newTestClient(t, mock, qizx.WithDefaultLibrary("audit"))

	_, err := client.Eval(context.Background(), "1", nil)
	require.NoError(t, err)
	require.Equal(t, "audit", gotLibrary)
}

func TestEvalRemoteErrorFromJSONBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"E01","message":"bad query"}`))
	}))

	_, err := client.Eval(context.Background(), "syntax error", nil)
	var remote *qizx.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "E01", remote.Code)
	require.Equal(t, "bad query", remote.Message)
}

func TestEvalRemoteErrorFromQizxMimetype(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	// No evaluation hook installed, the mock reports a Compilation error.
	_, err := client.Eval(context.Background(), "1", nil)
	require.True(t, qizx.IsRemoteError(err, qizx.CodeCompilation))
}

func TestEvalRemoteErrorWith200Status(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/x-qizx-error")
		w.Write([]byte("TimeOut: query exceeded maxtime"))
	}))

	_, err := client.Eval(context.Background(), "1", nil)
	require.True(t, qizx.IsRemoteError(err, qizx.CodeTimeOut))
}

func TestEvalUnstructuredFailureIsTransportError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>502</html>"))
	}))

	_, err := client.Eval(context.Background(), "1", nil)
	var transport *qizx.TransportError
	require.ErrorAs(t, err, &transport)
	require.Equal(t, http.StatusBadGateway, transport.StatusCode)
}

func TestEvalEmptyExpressionMakesNoNetworkCall(t *testing.T) {
	mock := qizxtest.New()
	client := newTestClient(t, mock)

	_, err := client.Eval(context.Background(), "   ", nil)
	require.ErrorIs(t, err, qizx.ErrInvalidRequest)
	require.Zero(t, mock.Requests())
}

func TestEvalTimeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}), qizx.WithTimeout(20*time.Millisecond))

	_, err := client.Eval(context.Background(), "1", nil)
	require.ErrorIs(t, err, qizx.ErrTimeout)
}

func TestEvalConcurrentUse(t *testing.T) {
	mock := qizxtest.New()
	mock.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		return []byte("<result><name>Alice</name></result>"), "text/xml", nil
	})
	client := newTestClient(t, mock)

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := client.Eval(context.Background(), "//person/name", nil)
			if err == nil && result.Doc.Root().SelectElement("name").Text() != "Alice" {
				err = errors.New("unexpected result")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, workers, mock.Requests())
}

func TestInfo(t *testing.T) {
	client := newTestClient(t, qizxtest.New())

	props, err := client.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, "qizxtest", props["server"])
	require.Equal(t, "online", props["engine"])
	require.Equal(t, int64(1), props["libraries"])
}

func TestNewWithConfigRejectsNil(t *testing.T) {
	_, err := qizx.NewWithConfig(nil)
	require.Error(t, err)
}

func TestConfigAccessor(t *testing.T) {
	client, err := qizx.New("http://localhost:8787/api#docs")
	require.NoError(t, err)
	require.Equal(t, "docs", client.Config().DefaultLibrary)
	require.Equal(t, "http://localhost:8787/api", client.Config().Endpoint.String())
}
