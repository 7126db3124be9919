package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Family groups URL schemes by the database they speak to, independent of
// any driver suffix ("postgresql+asyncpg" and "postgres" are both Postgres).
type Family string

const (
	FamilyPostgres Family = "postgres"
	FamilyMySQL    Family = "mysql"
	FamilySQLite   Family = "sqlite"
	FamilyUnknown  Family = "unknown"
)

// asyncDrivers is the canonical async driver suffix per family.
var asyncDrivers = map[Family]string{
	FamilyPostgres: "asyncpg",
	FamilyMySQL:    "aiomysql",
	FamilySQLite:   "aiosqlite",
}

// FamilyOf maps a base scheme (no driver suffix) to its family.
func FamilyOf(base string) Family {
	switch strings.ToLower(base) {
	case "postgresql", "postgres", "pgsql":
		return FamilyPostgres
	case "mysql", "mariadb":
		return FamilyMySQL
	case "sqlite", "sqlite3":
		return FamilySQLite
	default:
		return FamilyUnknown
	}
}

// AsyncDriver returns the canonical async driver for the family, or "".
func (f Family) AsyncDriver() string {
	return asyncDrivers[f]
}

// splitScheme cuts raw at the first "://". ok is false when there is no
// usable scheme.
func splitScheme(raw string) (scheme, rest string, ok bool) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found || !validScheme(scheme) {
		return "", raw, false
	}
	return scheme, rest, true
}

// validScheme follows RFC 3986: a letter then letters, digits, '+', '-', '.'.
func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// NormalizeURL rewrites the scheme of a connection string for the requested
// driver family. With forAsync the canonical async driver suffix is set
// (postgresql+asyncpg), otherwise any suffix is removed (postgresql).
// Everything after "://" is returned untouched. Strings without a scheme are
// returned as-is; so are unknown families asked for an async form, which
// get the plain sync scheme instead.
func NormalizeURL(raw string, forAsync bool) string {
	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return raw
	}
	base, _, _ := strings.Cut(scheme, "+")
	if forAsync {
		if driver := FamilyOf(base).AsyncDriver(); driver != "" {
			return base + "+" + driver + "://" + rest
		}
	}
	return base + "://" + rest
}

// URLScheme returns the lowercase scheme token, driver suffix included
// ("postgresql+asyncpg"), or "" when raw has no scheme.
func URLScheme(raw string) string {
	scheme, _, ok := splitScheme(raw)
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// ConnectionSpec is the parsed, credential-free view of a connection string.
type ConnectionSpec struct {
	Scheme      string // full token, e.g. "postgresql+asyncpg"
	Base        string // scheme without driver suffix
	Driver      string // driver suffix, "" when absent
	Family      Family
	Host        string
	Port        string
	User        string
	HasPassword bool
	Database    string
	Params      map[string]string
}

// ErrMalformedURL is returned by ParseConnectionSpec for strings that are
// not URL shaped.
var ErrMalformedURL = errors.New("malformed connection string")

// ParseConnectionSpec parses raw into a ConnectionSpec. The password itself
// is never retained.
func ParseConnectionSpec(raw string) (ConnectionSpec, error) {
	scheme, _, ok := splitScheme(strings.TrimSpace(raw))
	if !ok {
		return ConnectionSpec{}, ErrMalformedURL
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ConnectionSpec{}, fmt.Errorf("%w: %v", ErrMalformedURL, redactURLError(err))
	}

	scheme = strings.ToLower(scheme)
	base, driver, _ := strings.Cut(scheme, "+")
	spec := ConnectionSpec{
		Scheme:   scheme,
		Base:     base,
		Driver:   driver,
		Family:   FamilyOf(base),
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Params:   make(map[string]string, len(u.Query())),
	}
	if u.User != nil {
		spec.User = u.User.Username()
		_, spec.HasPassword = u.User.Password()
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			spec.Params[key] = values[len(values)-1]
		}
	}
	return spec, nil
}

// redactURLError drops the URL text from a *url.Error so credentials never
// end up in logs.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

// MaskPassword hides the password of a URL-shaped string behind "xxxxx".
// Unparseable input is fully masked.
func MaskPassword(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "xxxxx"
	}
	return u.Redacted()
}
