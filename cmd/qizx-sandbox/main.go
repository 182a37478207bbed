// Command qizx-sandbox runs an in-memory mock of the Qizx REST API for
// local development, with optional latency and failure injection. Documents
// can be preloaded from a directory; eval requests echo a canned <items>
// response listing the stored document paths, since the mock carries no
// XQuery engine.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qizxdb/qizx-go/pkg/qizx/qizxtest"
)

type failConfig struct {
	rate float64
	code int
}

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	seedDir := flag.String("seed", "", "directory of XML files preloaded into the default library")
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	server := qizxtest.New()
	if *seedDir != "" {
		count, err := seedDocuments(server, *seedDir)
		if err != nil {
			logger.Fatal("seed documents", zap.Error(err))
		}
		logger.Info("seeded documents", zap.Int("count", count), zap.String("dir", *seedDir))
	}

	server.SetEvalFunc(func(query, library, format string) ([]byte, string, error) {
		// Canned evaluation: one string item holding the query text.
		payload := fmt.Sprintf(`<items><item type="string">%s</item></items>`, query)
		return []byte(payload), "text/xml", nil
	})

	failCfg, err := parseFailConfig(*fail)
	if err != nil {
		logger.Fatal("parse fail flag", zap.Error(err))
	}

	handler := withMiddleware(logger, *latency, failCfg, server)
	logger.Info("qizx sandbox listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, handler); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func seedDocuments(server *qizxtest.Server, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return count, err
		}
		server.SeedDocument("", "/"+entry.Name(), content)
		count++
	}
	return count, nil
}

func parseFailConfig(spec string) (failConfig, error) {
	cfg := failConfig{code: http.StatusInternalServerError}
	if spec == "" {
		return cfg, nil
	}
	for _, part := range strings.Split(spec, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return cfg, fmt.Errorf("malformed fail spec %q", part)
		}
		switch key {
		case "rate":
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil || rate < 0 || rate > 1 {
				return cfg, fmt.Errorf("fail rate must be a float in [0,1], got %q", value)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(value)
			if err != nil || code < 400 || code > 599 {
				return cfg, fmt.Errorf("fail code must be an error status, got %q", value)
			}
			cfg.code = code
		default:
			return cfg, fmt.Errorf("unknown fail key %q", key)
		}
	}
	return cfg, nil
}

func withMiddleware(logger *zap.Logger, latency time.Duration, fail failConfig, next http.Handler) http.Handler {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if latency > 0 {
			time.Sleep(latency)
		}
		if fail.rate > 0 && rng.Float64() < fail.rate {
			logger.Debug("injected failure", zap.Int("code", fail.code))
			http.Error(w, "injected failure", fail.code)
			return
		}
		next.ServeHTTP(w, r)
		logger.Debug("request",
			zap.String("op", r.FormValue("op")),
			zap.Duration("elapsed", time.Since(start)))
	})
}
