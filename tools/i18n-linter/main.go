// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every i18n.T key used in the source exists in the
// primary locale and that every other locale carries the same keys.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

var keyCall = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// Report lists the inconsistencies found by Lint.
type Report struct {
	Undefined []string            // used in code, absent from the primary locale
	Orphaned  []string            // in the primary locale, never used
	Missing   map[string][]string // per secondary locale file
}

// Failed reports whether the report should fail the build. Orphans only warn.
func (r Report) Failed() bool {
	if len(r.Undefined) > 0 {
		return true
	}
	for _, keys := range r.Missing {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

func main() {
	rep, err := Lint(".", localesDir)
	if err != nil {
		fmt.Printf("i18n linter: %v\n", err)
		os.Exit(1)
	}
	rep.Print(os.Stdout)
	if rep.Failed() {
		os.Exit(1)
	}
}

// Lint scans Go sources under root against the locale files in locales.
func Lint(root, locales string) (Report, error) {
	rep := Report{Missing: map[string][]string{}}

	used, err := findUsedKeys(root)
	if err != nil {
		return rep, err
	}
	primary, err := loadKeys(filepath.Join(locales, primaryLocale))
	if err != nil {
		return rep, fmt.Errorf("load primary locale: %w", err)
	}

	for k := range used {
		if _, ok := primary[k]; !ok {
			rep.Undefined = append(rep.Undefined, k)
		}
	}
	for k := range primary {
		if _, ok := used[k]; !ok {
			rep.Orphaned = append(rep.Orphaned, k)
		}
	}
	sort.Strings(rep.Undefined)
	sort.Strings(rep.Orphaned)

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return rep, err
	}
	for _, f := range files {
		if filepath.Base(f) == primaryLocale {
			continue
		}
		keys, err := loadKeys(f)
		if err != nil {
			return rep, fmt.Errorf("load %s: %w", f, err)
		}
		var missing []string
		for k := range primary {
			if _, ok := keys[k]; !ok {
				missing = append(missing, k)
			}
		}
		sort.Strings(missing)
		rep.Missing[filepath.Base(f)] = missing
	}
	return rep, nil
}

// Print writes a human readable summary.
func (r Report) Print(w io.Writer) {
	for _, k := range r.Undefined {
		_, _ = fmt.Fprintf(w, "undefined: %s\n", k)
	}
	for _, k := range r.Orphaned {
		_, _ = fmt.Fprintf(w, "orphaned: %s\n", k)
	}
	names := make([]string, 0, len(r.Missing))
	for n := range r.Missing {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		for _, k := range r.Missing[n] {
			_, _ = fmt.Fprintf(w, "missing in %s: %s\n", n, k)
		}
	}
	if !r.Failed() && len(r.Orphaned) == 0 {
		_, _ = fmt.Fprintln(w, "all translation files are consistent")
	}
}

// findUsedKeys collects i18n.T keys from non-test Go files, skipping tools
// and the read-only _ directories.
func findUsedKeys(root string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == "tools" || strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range keyCall.FindAllStringSubmatch(string(content), -1) {
			keys[m[1]] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// loadKeys reads a locale file and returns its flattened keys. Both flat
// dotted keys and nested maps are accepted.
func loadKeys(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flatten("", data, keys)
	return keys, nil
}

func flatten(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		flatten(p, v, keys)
	}
}
