// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package credentials reads the account id and search party token used to
// authenticate against the report gateway.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/tidwall/jsonc"

	"github.com/gearsfleet/haystacked/internal/security"
)

// AgeSuffix marks a credential file encrypted with age.
const AgeSuffix = ".age"

var (
	// ErrMissingCredential is returned when the credential file is absent or
	// lacks a required field.
	ErrMissingCredential = errors.New("missing credential")
	// ErrIdentityRequired is returned for an encrypted file without an identity.
	ErrIdentityRequired = errors.New("age identity required for encrypted credentials")
)

// Credentials are the Basic auth pair for the gateway.
type Credentials struct {
	DSID  string
	Token security.Secret
}

// Load reads path. Files ending in .age are decrypted with the identities
// found in identityPath first. Comments and trailing commas are accepted.
func Load(path, identityPath string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: %s not found", ErrMissingCredential, path)
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	if strings.HasSuffix(path, AgeSuffix) {
		data, err = decrypt(data, identityPath)
		if err != nil {
			return Credentials{}, err
		}
	}
	return Parse(data)
}

// Parse decodes a credential document.
func Parse(data []byte) (Credentials, error) {
	var doc struct {
		DSID  any    `json:"dsid"`
		Token string `json:"searchPartyToken"`
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}

	var dsid string
	switch v := doc.DSID.(type) {
	case json.Number:
		dsid = v.String()
	case string:
		dsid = strings.TrimSpace(v)
	}
	if dsid == "" {
		return Credentials{}, fmt.Errorf("%w: dsid", ErrMissingCredential)
	}
	if doc.Token == "" {
		return Credentials{}, fmt.Errorf("%w: searchPartyToken", ErrMissingCredential)
	}
	return Credentials{DSID: dsid, Token: security.FromString(doc.Token)}, nil
}

func decrypt(ciphertext []byte, identityPath string) ([]byte, error) {
	if identityPath == "" {
		return nil, ErrIdentityRequired
	}
	f, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("open age identity: %w", err)
	}
	defer func() { _ = f.Close() }()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	return io.ReadAll(r)
}
