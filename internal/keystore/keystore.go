// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keystore loads tag key pairs from a directory of *.keys files.
//
// Each file holds two labeled lines:
//
//	Private key: <hex or base64 scalar>
//	Hashed adv key: <base64>
//
// The tag name is the file name without extension. Files missing a field are
// skipped and reported through KeyStore.Skipped rather than failing the load.
package keystore

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gearsfleet/haystacked/internal/model"
	"github.com/gearsfleet/haystacked/internal/security"
)

// Extension is the suffix of key files picked up by Load.
const Extension = ".keys"

const (
	privateKeyLabel   = "Private key"
	hashedAdvKeyLabel = "Hashed adv key"
)

var (
	// ErrMalformedKeyFile marks a key file missing a required field or
	// carrying an undecodable value.
	ErrMalformedKeyFile = errors.New("malformed key file")
	// ErrDuplicateKey marks a key file whose hashed advertisement key was
	// already loaded from another file.
	ErrDuplicateKey = errors.New("duplicate hashed adv key")
)

// SkippedFile records a key file that was not loaded and why.
type SkippedFile struct {
	Path   string
	Reason error
}

func (s SkippedFile) String() string {
	return fmt.Sprintf("%s: %v", s.Path, s.Reason)
}

// KeyStore is a read-only lookup table of tags keyed by hashed adv key.
type KeyStore struct {
	byID    map[string]model.TagKeyPair
	Skipped []SkippedFile
}

// New builds a KeyStore from already-parsed pairs. Later duplicates are
// recorded as skipped.
func New(pairs ...model.TagKeyPair) *KeyStore {
	ks := &KeyStore{byID: make(map[string]model.TagKeyPair, len(pairs))}
	for _, p := range pairs {
		ks.add(p, p.Name)
	}
	return ks
}

// Load scans dir for key files. Only an unreadable directory is fatal.
func Load(dir string) (*KeyStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("key directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key directory %s: not a directory", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("scan key directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	ks := New()
	for _, path := range paths {
		pair, err := ParseFile(path)
		if err != nil {
			ks.Skipped = append(ks.Skipped, SkippedFile{Path: path, Reason: err})
			continue
		}
		ks.add(pair, path)
	}
	return ks, nil
}

func (ks *KeyStore) add(p model.TagKeyPair, source string) {
	if _, dup := ks.byID[p.HashedAdvKey]; dup {
		ks.Skipped = append(ks.Skipped, SkippedFile{Path: source, Reason: ErrDuplicateKey})
		return
	}
	ks.byID[p.HashedAdvKey] = p
}

// ParseFile reads one key file.
func ParseFile(path string) (model.TagKeyPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.TagKeyPair{}, err
	}
	defer func() { _ = f.Close() }()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var priv, hashed string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		label, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ": ")
		if !ok {
			continue
		}
		switch label {
		case privateKeyLabel:
			priv = strings.TrimSpace(value)
		case hashedAdvKeyLabel:
			hashed = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return model.TagKeyPair{}, err
	}

	if priv == "" {
		return model.TagKeyPair{}, fmt.Errorf("%w: missing %q", ErrMalformedKeyFile, privateKeyLabel)
	}
	if hashed == "" {
		return model.TagKeyPair{}, fmt.Errorf("%w: missing %q", ErrMalformedKeyFile, hashedAdvKeyLabel)
	}
	scalar, err := decodeScalar(priv)
	if err != nil {
		return model.TagKeyPair{}, fmt.Errorf("%w: %s: %v", ErrMalformedKeyFile, privateKeyLabel, err)
	}
	if _, err := base64.StdEncoding.DecodeString(hashed); err != nil {
		return model.TagKeyPair{}, fmt.Errorf("%w: %s: %v", ErrMalformedKeyFile, hashedAdvKeyLabel, err)
	}
	return model.TagKeyPair{Name: name, HashedAdvKey: hashed, PrivateKey: scalar}, nil
}

// decodeScalar accepts hex, falling back to the base64 form written by the
// usual key generator. A 28-byte base64 key always ends in "==" and so is
// never valid hex.
func decodeScalar(s string) (security.Secret, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) > 0 {
		return security.Secret(b), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return nil, errors.New("neither hex nor base64")
	}
	return security.Secret(b), nil
}

// Lookup returns the tag for a report id.
func (ks *KeyStore) Lookup(id string) (model.TagKeyPair, bool) {
	p, ok := ks.byID[id]
	return p, ok
}

// Len returns the number of loaded tags.
func (ks *KeyStore) Len() int { return len(ks.byID) }

// IDs returns all hashed adv keys in sorted order.
func (ks *KeyStore) IDs() []string {
	ids := make([]string, 0, len(ks.byID))
	for id := range ks.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Names returns all tag names in sorted order.
func (ks *KeyStore) Names() []string {
	names := make([]string, 0, len(ks.byID))
	for _, p := range ks.byID {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Zero wipes every private key held by the store.
func (ks *KeyStore) Zero() {
	for _, p := range ks.byID {
		p.PrivateKey.Zero()
	}
}
