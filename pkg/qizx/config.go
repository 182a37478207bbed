package qizx

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const (
	// DefaultSection is the configuration section used when the caller
	// does not name one.
	DefaultSection = "qizx"

	// configFileName is the base name of the configuration file looked up
	// under $HOME and the working directory.
	configFileName = ".qizx"
)

// Verify is the server-certificate verification policy: enabled (the
// default), disabled, or verification against a custom CA bundle. The zero
// value verifies against the system roots.
type Verify struct {
	disabled bool
	bundle   string
}

// NoVerify disables server certificate verification entirely. This is
// insecure and should only be used against trusted networks.
func NoVerify() Verify {
	return Verify{disabled: true}
}

// VerifyWithBundle verifies the server certificate against the CA bundle at
// path instead of the system roots.
func VerifyWithBundle(path string) Verify {
	return Verify{bundle: path}
}

// Disabled reports whether verification is turned off.
func (v Verify) Disabled() bool { return v.disabled }

// Bundle returns the custom CA bundle path, if one is configured.
func (v Verify) Bundle() (string, bool) { return v.bundle, v.bundle != "" }

func (v Verify) String() string {
	switch {
	case v.disabled:
		return "disabled"
	case v.bundle != "":
		return "bundle:" + v.bundle
	default:
		return "enabled"
	}
}

// Config is the effective connection configuration of a Client. It is
// created once, either from a literal URL or from a configuration-file
// section, and must be treated as read-only afterwards.
type Config struct {
	// Endpoint is the service URL with any userinfo and fragment stripped.
	// Its scheme is always http or https.
	Endpoint *url.URL
	// Username and Password hold credentials for HTTP basic
	// authentication, taken from the URL userinfo when present.
	Username string
	Password string
	// Verify and ClientCert only apply to https endpoints and are ignored
	// otherwise.
	Verify     Verify
	ClientCert string
	// DefaultLibrary is the library used by operations that do not name
	// one, taken from the URL fragment when present.
	DefaultLibrary string
}

// ResolveOption adjusts configuration resolution.
type ResolveOption func(*resolver)

// WithConfigFile overrides the configuration file discovery with an explicit
// path.
func WithConfigFile(path string) ResolveOption {
	return func(r *resolver) {
		r.configFile = path
	}
}

type resolver struct {
	configFile string
}

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// Resolve turns a section name or literal URL into a Config.
//
// A target with scheme http or https is used directly: credentials embedded
// in the userinfo component take precedence and are stripped from the
// endpoint, and a fragment names the default library. A target with any
// other scheme is rejected as ambiguous. Everything else is treated as the
// name of a section in the configuration file, discovered by trying the
// explicit override, then $HOME/.qizx, then ./.qizx; the first existing
// readable file wins.
func Resolve(target string, opts ...ResolveOption) (*Config, error) {
	r := resolver{}
	for _, opt := range opts {
		opt(&r)
	}

	if schemePattern.MatchString(target) {
		return parseEndpoint(target, Verify{}, "")
	}
	return r.resolveSection(target)
}

func parseEndpoint(rawURL string, verify Verify, clientCert string) (*Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrAmbiguousTarget, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q has scheme %q, expected http or https", ErrAmbiguousTarget, rawURL, u.Scheme)
	}

	cfg := &Config{
		Verify:         verify,
		ClientCert:     clientCert,
		DefaultLibrary: u.Fragment,
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	endpoint := *u
	endpoint.User = nil
	endpoint.Fragment = ""
	endpoint.RawFragment = ""
	cfg.Endpoint = &endpoint

	// TLS settings are connection-level https concerns; plain http
	// ignores them.
	if endpoint.Scheme != "https" {
		cfg.Verify = Verify{}
		cfg.ClientCert = ""
	}
	return cfg, nil
}

func (r *resolver) resolveSection(section string) (*Config, error) {
	path, err := r.findConfigFile()
	if err != nil {
		return nil, err
	}

	// Inline comment handling must be off: a '#' in a url value is the
	// default-library fragment, not a comment.
	v := viper.NewWithOptions(viper.IniLoadOptions(ini.LoadOptions{
		IgnoreInlineComment: true,
	}))
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	sub := v.Sub(section)
	if sub == nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrSectionNotFound, section, path)
	}

	rawURL := strings.TrimSpace(sub.GetString("url"))
	if rawURL == "" {
		return nil, fmt.Errorf("%w: section %q in %s", ErrMissingURL, section, path)
	}

	verify := Verify{}
	if sub.IsSet("verify") {
		raw := strings.TrimSpace(sub.GetString("verify"))
		if enabled, ok := parseConfigBool(raw); ok {
			if !enabled {
				verify = NoVerify()
			}
		} else {
			verify = VerifyWithBundle(raw)
		}
	}

	clientCert := strings.TrimSpace(sub.GetString("cert"))
	if clientCert != "" {
		if _, err := os.Stat(clientCert); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCertificateNotFound, clientCert, err)
		}
	}

	return parseEndpoint(rawURL, verify, clientCert)
}

// parseConfigBool reads the boolean spellings accepted in configuration
// files: the strconv set plus yes/no/on/off.
func parseConfigBool(raw string) (value, ok bool) {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, true
	}
	switch strings.ToLower(raw) {
	case "yes", "on":
		return true, true
	case "no", "off":
		return false, true
	}
	return false, false
}

// findConfigFile returns the first existing configuration file: the explicit
// override, then $HOME/.qizx, then ./.qizx.
func (r *resolver) findConfigFile() (string, error) {
	var candidates []string
	if r.configFile != "" {
		candidates = append(candidates, r.configFile)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, configFileName))
	}
	candidates = append(candidates, configFileName)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(candidates, ", "))
}
