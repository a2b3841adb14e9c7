// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import (
	"strings"
	"testing"
)

func TestT_TemplateAndLanguages(t *testing.T) {
	Init("en")
	got := T("keys.loaded", map[string]any{"Count": 3, "Dir": "/k"})
	if got != "3 tags loaded from /k" {
		t.Fatalf("unexpected english message %q", got)
	}

	SetLang("de")
	defer SetLang("en")
	got = T("keys.loaded", map[string]any{"Count": 3, "Dir": "/k"})
	if !strings.Contains(got, "Tracker") {
		t.Fatalf("expected german message, got %q", got)
	}
}

func TestT_UnknownIDAndFallback(t *testing.T) {
	SetLang("fr")
	defer SetLang("en")
	if got := T("does.not.exist"); got != "does.not.exist" {
		t.Fatalf("expected id fallback, got %q", got)
	}
	if got := T("cli.version.short"); got != "Print the version" {
		t.Fatalf("expected english fallback, got %q", got)
	}
}

func TestLanguages(t *testing.T) {
	Init("en")
	langs := strings.Join(Languages(), ",")
	if !strings.Contains(langs, "en") || !strings.Contains(langs, "de") {
		t.Fatalf("expected en and de locales, got %s", langs)
	}
}
