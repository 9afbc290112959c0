package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseInlineAccounts(t *testing.T) {
	got, err := ParseInlineAccounts("a@x.test:pw1:http://user:pass@p:8080, b@x.test:pw2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got=%+v", got)
	}
	if got[0].Proxy != "http://user:pass@p:8080" || got[1].Proxy != "" || got[1].Password != "pw2" {
		t.Fatalf("got=%+v", got)
	}
	if _, err := ParseInlineAccounts("broken"); err == nil {
		t.Fatalf("expected error for entry without password")
	}
}

func TestLoadAccountsFromFile(t *testing.T) {
	p := writeFile(t, "accounts.json", `[
  {"email": " a@x.test ", "password": "pw"},
  {"id": "vip", "email": "b@x.test", "password": "pw", "proxy": "http://p:1"},
  {"email": "c@x.test", "password": "pw"}
]`)
	got, err := LoadAccounts(p, "", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("max accounts not applied: %d", len(got))
	}
	if got[0].ID != "1" || got[0].Email != "a@x.test" || got[1].ID != "vip" {
		t.Fatalf("got=%+v", got)
	}
}

func TestLoadAccountsInlineWins(t *testing.T) {
	p := writeFile(t, "accounts.json", `[{"email": "file@x.test", "password": "pw"}]`)
	got, err := LoadAccounts(p, "inline@x.test:pw", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Email != "inline@x.test" {
		t.Fatalf("got=%+v", got)
	}
}

func TestLoadAccountsErrors(t *testing.T) {
	empty := writeFile(t, "empty.json", `[]`)
	if _, err := LoadAccounts(empty, "", 0); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("err=%v want ErrNoAccounts", err)
	}

	missing := filepath.Join(t.TempDir(), "nope.json")
	if _, err := LoadAccounts(missing, "", 0); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err=%v", err)
	}

	noPass := writeFile(t, "nopass.json", `[{"email": "a@x.test"}]`)
	if _, err := LoadAccounts(noPass, "", 0); err == nil || !strings.Contains(err.Error(), "password") {
		t.Fatalf("err=%v", err)
	}

	dup := writeFile(t, "dup.json", `[{"id":"1","email":"a@x.test","password":"p"},{"id":"1","email":"b@x.test","password":"p"}]`)
	if _, err := LoadAccounts(dup, "", 0); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("err=%v", err)
	}

	for _, id := range []string{"../x", "a/b", `a\\b`, ".."} {
		bad := writeFile(t, "bad.json", `[{"id":"`+id+`","email":"a@x.test","password":"p"}]`)
		if _, err := LoadAccounts(bad, "", 0); err == nil || !strings.Contains(err.Error(), "invalid id") {
			t.Fatalf("id %q: err=%v", id, err)
		}
	}
}
