package site

import (
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	vars := Vars{"service": "fanbox", "id": "42", "title": "新作"}

	got := Render("Kemono/{service}/{title} ({id})", vars)
	if got != "Kemono/fanbox/新作 (42)" {
		t.Errorf("Render = %q", got)
	}
}

func TestRender_KeepsUnknownPlaceholders(t *testing.T) {
	got := Render("{id} {unknown}", Vars{"id": "1"})
	if got != "1 {unknown}" {
		t.Errorf("Render = %q, want %q", got, "1 {unknown}")
	}
}

func TestVars_SetTime(t *testing.T) {
	vars := Vars{}
	jst := time.FixedZone("JST", 9*60*60)
	vars.SetTime("created_at", time.Date(2024, 1, 2, 12, 0, 0, 0, jst))
	vars.SetTime("edited", time.Time{})

	if vars["created_at"] != "2024-01-02 03:00:00" {
		t.Errorf("created_at = %q, want UTC表記", vars["created_at"])
	}
	if vars["edited"] != "" {
		t.Errorf("ゼロ値は空文字列になるべき: %q", vars["edited"])
	}
}

func TestSafeName(t *testing.T) {
	if got := SafeName(`a/b\c`); got != "a b c" {
		t.Errorf("SafeName = %q", got)
	}
}

func TestSafeName_ComposesNFD(t *testing.T) {
	decomposed := "\u304b\u3099" // か + 結合用濁点
	if got := SafeName(decomposed); got != "\u304c" {
		t.Errorf("SafeName = %q, want NFC", got)
	}
}
