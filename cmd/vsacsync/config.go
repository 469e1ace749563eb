package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SanteonNL/vsacsync/cmd/vsacsync/vsac"
	"github.com/SanteonNL/vsacsync/util"
	"github.com/joho/godotenv"
)

const (
	defaultPackage = "NHSNACHMonthly1-v0.0.000-FHIR"
	defaultOutput  = "valuesets/nhsn"
)

// errMissingAPIKey is returned by parseConfig when neither --api-key nor
// VSAC_API_KEY is set.
var errMissingAPIKey = errors.New("VSAC API key required. Use --api-key or set VSAC_API_KEY env var")

const apiKeyInstructions = `To get a VSAC API key:
1. Create an account at https://uts.nlm.nih.gov/uts/
2. Generate an API key in your profile
3. Base64 encode: echo -n 'apikey:YOUR_KEY' | base64
`

type Config struct {
	APIKey  string
	CQLFile string
	Package string
	Output  string
	Force   bool
	Quiet   bool

	Format  vsac.Format
	BaseURL string
	Workers int
	Timeout time.Duration
	MaxAge  time.Duration
}

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func parseConfig(args []string, lookup LookupFunc, stderr io.Writer) (Config, error) {
	var (
		cfg    Config
		format string
	)

	fs := flag.NewFlagSet("vsacsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.APIKey, "api-key", "", "VSAC API key (base64 encoded). Can also use VSAC_API_KEY env var.")
	fs.StringVar(&cfg.CQLFile, "cql", "", "Path to specific CQL file. If not specified, searches in the package dir.")
	fs.StringVar(&cfg.Package, "package", defaultPackage, "MADiE package directory")
	fs.StringVar(&cfg.Output, "output", defaultOutput, "Output directory for downloaded ValueSets")
	fs.BoolVar(&cfg.Force, "force", false, "Force re-download even if cached")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "Only log warnings and errors")
	fs.StringVar(&format, "format", "", "VSAC API to use: fhir or svs. Can also use VSAC_FORMAT env var.")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Override the VSAC base URL. Can also use VSAC_BASE_URL env var.")
	fs.IntVar(&cfg.Workers, "workers", 1, "Number of concurrent downloads")
	fs.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Timeout per VSAC request")
	fs.DurationVar(&cfg.MaxAge, "max-age", 0, "Re-download cached ValueSets older than this (0 keeps them)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.APIKey = firstNonEmpty(cfg.APIKey, env(lookup, "VSAC_API_KEY"))
	cfg.BaseURL = firstNonEmpty(cfg.BaseURL, env(lookup, "VSAC_BASE_URL"))

	f, err := vsac.ParseFormat(firstNonEmpty(format, env(lookup, "VSAC_FORMAT")))
	if err != nil {
		return cfg, err
	}
	cfg.Format = f

	if cfg.APIKey == "" {
		return cfg, errMissingAPIKey
	}
	return cfg, nil
}

func (c Config) clientConfig() vsac.Config {
	return vsac.Config{
		APIKey:   c.APIKey,
		CacheDir: c.Output,
		Verbose:  !c.Quiet,
		Format:   c.Format,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
		MaxAge:   c.MaxAge,
		Workers:  c.Workers,
	}
}

func env(lookup LookupFunc, key string) string {
	if lookup == nil {
		return ""
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// dotEnvPaths lists the .env candidates in search order: the repository root
// containing dir, then dir itself.
func dotEnvPaths(dir string) []string {
	var paths []string
	if root, ok := util.FindRepoRoot(dir); ok {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	local := filepath.Join(dir, ".env")
	if len(paths) == 0 || paths[0] != local {
		paths = append(paths, local)
	}
	return paths
}

// newLookup returns a LookupFunc backed by the process environment with the
// first .env file found in paths as fallback. The process environment is
// never modified.
func newLookup(getenv LookupFunc, paths []string) (LookupFunc, string, error) {
	var (
		dotenv map[string]string
		loaded string
	)
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		m, err := godotenv.Read(p)
		if err != nil {
			return getenv, "", fmt.Errorf("failed to read %s: %w", p, err)
		}
		dotenv, loaded = m, p
		break
	}

	return func(key string) (string, bool) {
		if v, ok := getenv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, loaded, nil
}
