package domain

import (
	"testing"
	"time"
)

func validScript() ScriptRecord {
	now := time.Unix(1700000000, 0).UTC()
	content := `return 1 + 2`
	return ScriptRecord{
		ID:            "script-123",
		OwnerID:       "alice",
		Name:          "Adder",
		Description:   "adds numbers",
		Content:       content,
		ContentSHA256: ContentSHA256(content),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestScriptRecord_Validate(t *testing.T) {
	if err := validScript().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	cases := []struct {
		name   string
		mutate func(r *ScriptRecord)
	}{
		{"missing id", func(r *ScriptRecord) { r.ID = " " }},
		{"missing owner", func(r *ScriptRecord) { r.OwnerID = "" }},
		{"missing name", func(r *ScriptRecord) { r.Name = "" }},
		{"missing content", func(r *ScriptRecord) { r.Content = "" }},
		{"stale content hash", func(r *ScriptRecord) { r.Content = `return 3` }},
		{"version zero", func(r *ScriptRecord) { r.Version = 0 }},
		{"missing created at", func(r *ScriptRecord) { r.CreatedAt = time.Time{}; r.UpdatedAt = time.Time{} }},
		{"updated before created", func(r *ScriptRecord) { r.UpdatedAt = r.CreatedAt.Add(-time.Second) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := validScript()
			tc.mutate(&record)
			if err := record.Validate(); err == nil {
				t.Fatalf("Validate() expected error")
			}
		})
	}
}

func TestContentSHA256(t *testing.T) {
	a := ContentSHA256(`return 1`)
	b := ContentSHA256(`return 1`)
	c := ContentSHA256(`return 2`)
	if a != b {
		t.Fatalf("hash not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("expected different content to hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("hash length=%d, want 64 hex chars", len(a))
	}
}

func TestScriptRecord_CloneIsIndependent(t *testing.T) {
	original := validScript()
	clone := original.Clone()
	clone.Name = "Mutated"
	clone.Version = 99
	if original.Name != "Adder" || original.Version != 1 {
		t.Fatalf("mutating clone reached original: %+v", original)
	}
}
