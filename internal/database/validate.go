package database

import (
	"net"
	"net/url"
	"strings"

	"github.com/hiremebahamas/hirebahamas-api/internal/config"
)

// SourceComponents labels configuration assembled from PGHOST and friends.
const SourceComponents = config.EnvPGHost

// ValidationResult is a validity flag plus the problems that made it false.
// It is only ever logged or reported; it never aborts anything.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// urlSources lists the URL-style sources from most to least preferred.
func urlSources(cfg config.DatabaseConfig) []struct{ name, value string } {
	return []struct{ name, value string }{
		{config.EnvDatabasePrivateURL, cfg.PrivateURL},
		{config.EnvPostgresURL, cfg.PostgresURL},
		{config.EnvDatabaseURL, cfg.URL},
	}
}

// ValidateDatabaseConfig reports whether the database configuration is
// usable, which source would be used, and which required component
// variables are missing when no URL is set. PGPORT is optional.
func ValidateDatabaseConfig(cfg config.DatabaseConfig) (bool, string, []string) {
	for _, src := range urlSources(cfg) {
		if strings.TrimSpace(src.value) != "" {
			return true, src.name, []string{}
		}
	}

	required := []struct{ name, value string }{
		{config.EnvPGHost, cfg.Host},
		{config.EnvPGUser, cfg.User},
		{config.EnvPGPassword, cfg.Password},
		{config.EnvPGDatabase, cfg.Name},
	}
	missing := []string{}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return false, "", missing
	}
	return true, SourceComponents, missing
}

// ResolveURL returns the primary connection string and the source it came
// from, building one from the component variables when no URL is set.
// Both are empty when the configuration is incomplete.
func ResolveURL(cfg config.DatabaseConfig) (string, string) {
	ok, source, _ := ValidateDatabaseConfig(cfg)
	if !ok {
		return "", ""
	}
	for _, src := range urlSources(cfg) {
		if src.name == source {
			return strings.TrimSpace(src.value), source
		}
	}

	port := cfg.Port
	if port == "" {
		port = config.DefaultPGPort
	}
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, port),
		Path:   "/" + cfg.Name,
	}
	return u.String(), source
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ValidateURLStructure is the strict pre-flight check for deployed
// environments. It rejects URLs without a hostname, port or sslmode, and
// loopback hosts, which cannot work from a container and usually mean a
// local-socket fallback slipped in.
func ValidateURLStructure(raw string) (bool, string) {
	spec, err := ParseConnectionSpec(raw)
	if err != nil {
		return false, "connection string could not be parsed"
	}
	if spec.Host == "" {
		return false, "hostname is missing"
	}
	if isLoopback(spec.Host) {
		return false, "hostname " + spec.Host + " is a loopback address"
	}
	if spec.Port == "" {
		return false, "port is missing"
	}
	if _, ok := spec.Params["sslmode"]; !ok {
		return false, "sslmode parameter is missing"
	}
	return true, ""
}

// ValidateReplica checks that a replica URL only differs from the primary
// in host and port.
func ValidateReplica(primary, replica string) ValidationResult {
	res := ValidationResult{Valid: true}
	p, err := ParseConnectionSpec(primary)
	if err != nil {
		res.Problems = append(res.Problems, "primary connection string could not be parsed")
	}
	r, rerr := ParseConnectionSpec(replica)
	if rerr != nil {
		res.Problems = append(res.Problems, "replica connection string could not be parsed")
	}
	if err == nil && rerr == nil {
		if p.Family != r.Family {
			res.Problems = append(res.Problems, "replica database family differs from primary")
		}
		if p.User != r.User {
			res.Problems = append(res.Problems, "replica user differs from primary")
		}
		if p.HasPassword != r.HasPassword {
			res.Problems = append(res.Problems, "replica credentials differ from primary")
		}
		if p.Database != r.Database {
			res.Problems = append(res.Problems, "replica database name differs from primary")
		}
	}
	res.Valid = len(res.Problems) == 0
	return res
}

// PrepareURL applies the parameter fixes a Postgres URL needs before it is
// opened: the default port when none is given, and sslmode=require in
// production. It returns the adjusted URL and one note per change.
func PrepareURL(raw string, production bool) (string, []string) {
	spec, err := ParseConnectionSpec(raw)
	if err != nil || spec.Family != FamilyPostgres || spec.Host == "" {
		return raw, nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw, nil
	}

	var notes []string
	if spec.Port == "" {
		u.Host = net.JoinHostPort(spec.Host, config.DefaultPGPort)
		notes = append(notes, "port missing, using default "+config.DefaultPGPort)
	}
	if _, ok := spec.Params["sslmode"]; !ok && production {
		q := u.Query()
		q.Set("sslmode", "require")
		u.RawQuery = q.Encode()
		notes = append(notes, "sslmode missing, using sslmode=require")
	}
	if len(notes) == 0 {
		return raw, nil
	}
	return u.String(), notes
}
