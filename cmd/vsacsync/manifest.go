package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SanteonNL/vsacsync/cmd/vsacsync/cql"
	"golang.org/x/exp/slices"
)

const manifestName = "_codesystems.txt"

// writeManifest writes the CodeSystem references, sorted by name, to
// _codesystems.txt in dir. The file is for people; nothing reads it back.
func writeManifest(dir string, codeSystems *cql.Refs) (string, error) {
	refs := codeSystems.References()
	slices.SortFunc(refs, func(a, b cql.Reference) int {
		return strings.Compare(a.Name, b.Name)
	})

	var b strings.Builder
	b.WriteString("# Code Systems referenced in CQL\n")
	b.WriteString("# (These are typically terminology systems, not ValueSets)\n\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "%s: %s\n", ref.Name, ref.Value)
	}

	path := filepath.Join(dir, manifestName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
