package postgres

import (
	"reflect"
	"strings"
	"testing"

	"github.com/animus-labs/scriptforge/internal/repo"
)

func TestBuildScriptListQuery_NoFilter(t *testing.T) {
	query, args := buildScriptListQuery(repo.ScriptFilter{})
	if strings.Contains(query, "WHERE") {
		t.Fatalf("unexpected WHERE clause: %q", query)
	}
	if !strings.Contains(query, "ORDER BY created_at DESC") {
		t.Fatalf("missing order clause: %q", query)
	}
	if len(args) != 0 {
		t.Fatalf("args=%v, want none", args)
	}
}

func TestBuildScriptListQuery_Owner(t *testing.T) {
	query, args := buildScriptListQuery(repo.ScriptFilter{OwnerID: "  alice  "})
	if !strings.Contains(query, "owner_id = $1") {
		t.Fatalf("missing owner clause: %q", query)
	}
	if !reflect.DeepEqual(args, []any{"alice"}) {
		t.Fatalf("args=%v, want trimmed owner", args)
	}
}

func TestBuildScriptListQuery_OwnerAndLimit(t *testing.T) {
	query, args := buildScriptListQuery(repo.ScriptFilter{OwnerID: "alice", Limit: 10})
	if !strings.Contains(query, "owner_id = $1") {
		t.Fatalf("missing owner clause: %q", query)
	}
	if !strings.Contains(query, "LIMIT $2") {
		t.Fatalf("missing limit clause: %q", query)
	}
	if !reflect.DeepEqual(args, []any{"alice", 10}) {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildScriptListQuery_LimitOnly(t *testing.T) {
	query, args := buildScriptListQuery(repo.ScriptFilter{Limit: 5})
	if strings.Contains(query, "WHERE") {
		t.Fatalf("unexpected WHERE clause: %q", query)
	}
	if !strings.Contains(query, "LIMIT $1") {
		t.Fatalf("missing limit clause: %q", query)
	}
	if !reflect.DeepEqual(args, []any{5}) {
		t.Fatalf("args=%v", args)
	}
}
