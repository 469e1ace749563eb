package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/SanteonNL/vsacsync/cmd/vsacsync/cql"
	"github.com/SanteonNL/vsacsync/cmd/vsacsync/vsac"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

var errNoCQLFiles = errors.New("no CQL files found")

// findCQLFiles returns the --cql file, or every *.cql file in the package's
// cql directory in lexical order.
func findCQLFiles(cfg Config) ([]string, error) {
	if cfg.CQLFile != "" {
		return []string{cfg.CQLFile}, nil
	}

	dir := filepath.Join(cfg.Package, "cql")
	files, err := filepath.Glob(filepath.Join(dir, "*.cql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoCQLFiles, dir)
	}
	slices.Sort(files)
	return files, nil
}

// extractFile returns the ValueSet and CodeSystem references declared in one
// CQL file.
func extractFile(path string) (*cql.Refs, *cql.Refs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, nil, fmt.Errorf("file is not valid UTF-8")
	}
	text := string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	return cql.ExtractValueSets(text), cql.ExtractCodeSystems(text), nil
}

// syncValueSets extracts the references of all CQL files, downloads the
// ValueSets into cfg.Output and writes the CodeSystem manifest. Any returned
// error should end the process with a non-zero exit code.
func syncValueSets(ctx context.Context, cfg Config, log zerolog.Logger) error {
	files, err := findCQLFiles(cfg)
	if err != nil {
		return err
	}

	valueSets := cql.NewRefs()
	codeSystems := cql.NewRefs()
	for _, file := range files {
		vs, cs, err := extractFile(file)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Skipping CQL file")
			continue
		}
		valueSets.Merge(vs)
		codeSystems.Merge(cs)
		log.Info().
			Str("file", file).
			Int("valuesets", vs.Len()).
			Int("codesystems", cs.Len()).
			Msg("Processed CQL file")
	}

	if valueSets.Len() == 0 {
		log.Info().Msg("No ValueSets found in CQL files")
		return nil
	}

	refs := valueSets.References()
	log.Info().Int("count", len(refs)).Msg("ValueSets to download")
	for _, ref := range refs {
		log.Info().Str("name", ref.Name).Str("oid", ref.Value).Send()
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	client, err := vsac.New(cfg.clientConfig(), log)
	if err != nil {
		return err
	}

	log.Info().Str("output", cfg.Output).Msg("Downloading ValueSets")
	results, err := client.DownloadMultiple(ctx, refs, cfg.Force, true)
	if err != nil {
		return err
	}

	log.Info().
		Int("found", valueSets.Len()).
		Int("attempted", results.Len()).
		Int("succeeded", results.Succeeded()).
		Int("failed", results.Failed()).
		Msgf("Successfully downloaded %d/%d ValueSets", results.Succeeded(), valueSets.Len())
	for _, res := range results.All() {
		if !res.OK() {
			log.Warn().Str("name", res.Name).Str("oid", res.OID).Msg("ValueSet not downloaded")
		}
	}

	path, err := writeManifest(cfg.Output, codeSystems)
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("codesystems", codeSystems.Len()).Msg("Code systems list saved")
	return nil
}
