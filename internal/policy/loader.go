package policy

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ReadModules collects the Rego sources of a policy bundle, descending into
// subdirectories. Modules are keyed by their slash path inside fsys. Rego
// unit test files (*_test.rego) are not part of the bundle.
func ReadModules(fsys fs.FS) (map[string]string, error) {
	modules := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".rego" || strings.HasSuffix(p, "_test.rego") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read policy %s: %w", p, err)
		}
		modules[p] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policy bundle: %w", err)
	}
	return modules, nil
}
