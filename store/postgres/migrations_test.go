package postgres

import (
	"regexp"
	"testing"
)

func TestSchemaEnforcesUniqueUsername(t *testing.T) {
	raw, err := migrations.ReadFile("migrations/00001_accounts.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	unique := regexp.MustCompile(`(?is)CREATE\s+UNIQUE\s+INDEX\s+IF\s+NOT\s+EXISTS\s+authkit_accounts_username_key\s+ON\s+authkit_accounts\s*\(username\)\s+WHERE\s+username\s*<>\s*''`)
	if !unique.Match(raw) {
		t.Fatalf("expected a partial unique index on username, got:\n%s", raw)
	}
	if !regexp.MustCompile(`CONSTRAINT\s+authkit_accounts_email_key\s+UNIQUE\s*\(email\)`).Match(raw) {
		t.Fatal("expected the email unique constraint")
	}
}
