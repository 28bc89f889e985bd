package scripts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/animus-labs/scriptforge/internal/domain"
	"github.com/animus-labs/scriptforge/internal/repo/memory"
	"github.com/animus-labs/scriptforge/internal/sandbox"
)

// fakeClock makes version and timestamp assertions deterministic.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	svc := NewService(memory.NewScriptStore(), nil, nil, "", nil)
	clock := newFakeClock()
	svc.now = clock.Now
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("script-%d", seq)
	}
	return svc, clock
}

func TestUpload_ValidationOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "", `return 1`, "Name", "")
	if !domain.IsValidation(err) || err.Error() != "owner required" {
		t.Fatalf("Upload() err=%v, want owner required", err)
	}
	_, err = svc.Upload(ctx, "alice", "", "Name", "")
	if !domain.IsValidation(err) || err.Error() != "content required" {
		t.Fatalf("Upload() err=%v, want content required", err)
	}
	_, err = svc.Upload(ctx, "alice", `return 1`, "  ", "")
	if !domain.IsValidation(err) || err.Error() != "name required" {
		t.Fatalf("Upload() err=%v, want name required", err)
	}
}

func TestUploadAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.Upload(ctx, "alice", `return 1 + 2`, "Adder", "adds numbers")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	record, found, err := svc.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if record.OwnerID != "alice" || record.Name != "Adder" || record.Content != `return 1 + 2` {
		t.Fatalf("Get()=%+v", record)
	}
	if record.Version != 1 {
		t.Fatalf("Version=%d, want 1", record.Version)
	}
	if !record.UpdatedAt.Equal(record.CreatedAt) {
		t.Fatalf("fresh record timestamps differ: %v vs %v", record.CreatedAt, record.UpdatedAt)
	}
	if record.ContentSHA256 != domain.ContentSHA256(record.Content) {
		t.Fatalf("content hash mismatch")
	}
}

func TestGet_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, found, err := svc.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if found {
		t.Fatalf("Get() found an unknown id")
	}
}

func TestGet_ReturnsIndependentCopy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `return 1`, "Original", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	record.Name = "hacked"
	record.Content = "tampered"

	again, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if again.Name != "Original" || again.Content != `return 1` {
		t.Fatalf("caller mutation reached stored record: %+v", again)
	}
}

func TestUpdate_ByOwner(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `return 1`, "Adder", "v1")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	clock.Advance(time.Minute)
	newName := "Adder V2"
	if _, err := svc.Update(ctx, id, "alice", `return 2`, &newName, nil); err != nil {
		t.Fatalf("Update() err=%v", err)
	}

	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if record.Version != 2 {
		t.Fatalf("Version=%d, want 2", record.Version)
	}
	if record.Content != `return 2` || record.Name != "Adder V2" {
		t.Fatalf("Get()=%+v", record)
	}
	if record.Description != "v1" {
		t.Fatalf("nil description pointer must leave description alone: %q", record.Description)
	}
	if !record.UpdatedAt.After(record.CreatedAt) {
		t.Fatalf("UpdatedAt did not advance: %v", record.UpdatedAt)
	}
	if record.ContentSHA256 != domain.ContentSHA256(`return 2`) {
		t.Fatalf("content hash not recomputed")
	}
}

func TestUpdate_StalledClockStillMovesUpdatedAt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `return 1`, "Adder", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	// Clock never advances between upload and update.
	if _, err := svc.Update(ctx, id, "alice", `return 2`, nil, nil); err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if !record.UpdatedAt.After(record.CreatedAt) {
		t.Fatalf("UpdatedAt must be strictly after CreatedAt, got %v vs %v", record.UpdatedAt, record.CreatedAt)
	}
}

func TestUpdate_DeniedForNonOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `return 1`, "Adder", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	evilName := "Stolen"
	_, err = svc.Update(ctx, id, "bob", `return 666`, &evilName, nil)
	if !domain.IsAuthorization(err) {
		t.Fatalf("Update() err=%v, want authorization error", err)
	}

	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if record.Version != 1 || record.Content != `return 1` || record.Name != "Adder" {
		t.Fatalf("denied update changed the record: %+v", record)
	}
}

func TestUpdate_UnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Update(context.Background(), "missing", "alice", `return 1`, nil, nil)
	if !domain.IsNotFound(err) {
		t.Fatalf("Update() err=%v, want not found", err)
	}
}

func TestUpdate_EmptyContentRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `return 1`, "Adder", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	_, err = svc.Update(ctx, id, "alice", "", nil, nil)
	if !domain.IsValidation(err) {
		t.Fatalf("Update() err=%v, want validation error", err)
	}
	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if record.Version != 1 || record.Content != `return 1` {
		t.Fatalf("rejected update changed the record: %+v", record)
	}
}

func TestListByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, seed := range []struct{ owner, name string }{
		{"alice", "One"},
		{"bob", "Two"},
		{"alice", "Three"},
	} {
		if _, err := svc.Upload(ctx, seed.owner, `return 1`, seed.name, ""); err != nil {
			t.Fatalf("Upload() err=%v", err)
		}
	}

	aliceScripts, err := svc.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner() err=%v", err)
	}
	if len(aliceScripts) != 2 {
		t.Fatalf("ListByOwner(alice)=%d, want 2", len(aliceScripts))
	}
	for _, record := range aliceScripts {
		if record.OwnerID != "alice" {
			t.Fatalf("ListByOwner leaked record owned by %q", record.OwnerID)
		}
	}

	carolScripts, err := svc.ListByOwner(ctx, "carol")
	if err != nil {
		t.Fatalf("ListByOwner() err=%v", err)
	}
	if len(carolScripts) != 0 {
		t.Fatalf("ListByOwner(carol)=%d, want 0", len(carolScripts))
	}

	if _, err := svc.ListByOwner(ctx, "  "); !domain.IsValidation(err) {
		t.Fatalf("ListByOwner() err=%v, want validation error", err)
	}
}

func TestExecute_StoredScript(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `print("hi"); return 1 + 2`, "Adder", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	result, output, err := svc.Execute(ctx, id, sandbox.DefaultSpec(), sandbox.Limits{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if !result.OK() {
		t.Fatalf("Execute() result err=%q", result.Err)
	}
	if len(result.Values) != 1 || !result.Values[0].Equal(domain.Number(3)) {
		t.Fatalf("Values=%v, want [3]", result.Values)
	}
	if len(output) != 1 || output[0] != "hi" {
		t.Fatalf("output=%v, want [hi]", output)
	}
}

func TestExecute_UnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Execute(context.Background(), "missing", sandbox.DefaultSpec(), sandbox.Limits{})
	if !domain.IsNotFound(err) {
		t.Fatalf("Execute() err=%v, want not found", err)
	}
}

func TestExecute_ScriptFaultDoesNotError(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.Upload(ctx, "alice", `error("boom")`, "Broken", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	result, _, err := svc.Execute(ctx, id, sandbox.DefaultSpec(), sandbox.Limits{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Execute() must not surface script faults as host errors: %v", err)
	}
	if result.OK() || result.Err != "boom" {
		t.Fatalf("result=%+v, want failed with boom", result)
	}
}

// The two-user walkthrough: upload, read, denied update, owner update,
// list, execute.
func TestService_TwoUserScenario(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	id, err := svc.Upload(ctx, "alice", `return "v1"`, "Greeting", "")
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}

	if _, err := svc.Update(ctx, id, "bob", `return "stolen"`, nil, nil); !domain.IsAuthorization(err) {
		t.Fatalf("bob's update err=%v, want authorization error", err)
	}

	clock.Advance(time.Second)
	if _, err := svc.Update(ctx, id, "alice", `return [1, 2, 3]`, nil, nil); err != nil {
		t.Fatalf("alice's update err=%v", err)
	}

	record, _, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if record.Version != 2 {
		t.Fatalf("Version=%d, want 2: denied update must not consume a version", record.Version)
	}

	bobScripts, err := svc.ListByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("ListByOwner() err=%v", err)
	}
	if len(bobScripts) != 0 {
		t.Fatalf("bob owns %d scripts, want 0", len(bobScripts))
	}

	result, _, err := svc.Execute(ctx, id, sandbox.DefaultSpec(), sandbox.Limits{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if len(result.Values) != 3 {
		t.Fatalf("Values=%v, want three values", result.Values)
	}
	for i, want := range []float64{1, 2, 3} {
		if !result.Values[i].Equal(domain.Number(want)) {
			t.Fatalf("Values[%d]=%v, want %v", i, result.Values[i], want)
		}
	}
}
