package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/animus-labs/scriptforge/internal/domain"
	"github.com/animus-labs/scriptforge/internal/platform/auditlog"
	"github.com/animus-labs/scriptforge/internal/platform/env"
	platformstore "github.com/animus-labs/scriptforge/internal/platform/objectstore"
	platformpg "github.com/animus-labs/scriptforge/internal/platform/postgres"
	"github.com/animus-labs/scriptforge/internal/repo"
	"github.com/animus-labs/scriptforge/internal/repo/memory"
	repopg "github.com/animus-labs/scriptforge/internal/repo/postgres"
	"github.com/animus-labs/scriptforge/internal/sandbox"
	"github.com/animus-labs/scriptforge/internal/service/scripts"
	storageobjectstore "github.com/animus-labs/scriptforge/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, logger)
	if err != nil {
		logger.Error("service init failed", "error", err)
		os.Exit(2)
	}
	defer cleanup()

	switch os.Args[1] {
	case "upload":
		err = runUpload(ctx, svc, os.Args[2:])
	case "get":
		err = runGet(ctx, svc, os.Args[2:])
	case "update":
		err = runUpdate(ctx, svc, os.Args[2:])
	case "list":
		err = runList(ctx, svc, os.Args[2:])
	case "run":
		err = runExecuteStored(ctx, svc, os.Args[2:])
	case "exec":
		err = runExecuteFile(ctx, logger, os.Args[2:])
	case "demo":
		err = runDemo(ctx, svc)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scriptforge <command> [flags]

commands:
  upload  -owner <id> -name <name> [-desc <text>] -file <path>
  get     -id <script-id>
  update  -id <script-id> -requester <id> -file <path> [-name <name>] [-desc <text>]
  list    -owner <id>
  run     -id <script-id> [-caps <spec.yaml>] [-timeout <dur>]
  exec    -file <path> [-caps <spec.yaml>] [-timeout <dur>]
  demo

The backing store is selected by SCRIPTFORGE_STORE (memory | postgres).
The memory store lives for one process; use postgres to persist across
invocations. Set SCRIPTFORGE_ARCHIVE=1 to archive content blobs to
S3-compatible storage (SCRIPTFORGE_MINIO_* config).`)
}

func buildService(ctx context.Context, logger *slog.Logger) (*scripts.Service, func(), error) {
	cleanup := func() {}

	var repository repo.ScriptRepository
	var audit auditlog.Appender = auditlog.NewLogAppender(logger)

	switch kind := env.String("SCRIPTFORGE_STORE", "memory"); kind {
	case "memory":
		repository = memory.NewScriptStore()
	case "postgres":
		cfg, err := platformpg.ConfigFromEnv()
		if err != nil {
			return nil, cleanup, fmt.Errorf("database config: %w", err)
		}
		db, err := platformpg.Open(ctx, cfg)
		if err != nil {
			return nil, cleanup, fmt.Errorf("database unavailable: %w", err)
		}
		if err := repopg.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, cleanup, err
		}
		repository = repopg.NewScriptStore(db)
		audit = auditlog.NewSQLAppender(db)
		cleanup = func() { _ = db.Close() }
	default:
		return nil, cleanup, fmt.Errorf("unknown SCRIPTFORGE_STORE: %q", kind)
	}

	var archive storageobjectstore.Store
	archiveBucket := ""
	archiveEnabled, err := env.Bool("SCRIPTFORGE_ARCHIVE", false)
	if err != nil {
		return nil, cleanup, err
	}
	if archiveEnabled {
		cfg, err := platformstore.ConfigFromEnv()
		if err != nil {
			return nil, cleanup, fmt.Errorf("object store config: %w", err)
		}
		client, err := platformstore.NewMinIOClient(cfg)
		if err != nil {
			return nil, cleanup, fmt.Errorf("object store client init failed: %w", err)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = platformstore.EnsureBuckets(startupCtx, client, cfg)
		cancel()
		if err != nil {
			return nil, cleanup, fmt.Errorf("object store unavailable: %w", err)
		}
		store, err := storageobjectstore.NewMinioStoreWithClient(client)
		if err != nil {
			return nil, cleanup, err
		}
		archive = store
		archiveBucket = cfg.BucketScripts
	}

	return scripts.NewService(repository, audit, archive, archiveBucket, logger), cleanup, nil
}

func runUpload(ctx context.Context, svc *scripts.Service, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	owner := fs.String("owner", "", "owner identity")
	name := fs.String("name", "", "script name")
	desc := fs.String("desc", "", "script description")
	file := fs.String("file", "", "path to script source")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content, err := readSource(*file)
	if err != nil {
		return err
	}
	id, err := svc.Upload(ctx, *owner, content, *name, *desc)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runGet(ctx context.Context, svc *scripts.Service, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "script id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	record, found, err := svc.Get(ctx, *id)
	if err != nil {
		return err
	}
	if !found {
		return &domain.NotFoundError{ID: strings.TrimSpace(*id)}
	}
	return printJSON(toScriptJSON(record))
}

func runUpdate(ctx context.Context, svc *scripts.Service, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id := fs.String("id", "", "script id")
	requester := fs.String("requester", "", "requesting identity")
	file := fs.String("file", "", "path to new script source")
	name := fs.String("name", "", "new script name")
	desc := fs.String("desc", "", "new script description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content, err := readSource(*file)
	if err != nil {
		return err
	}

	var newName, newDesc *string
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			newName = name
		case "desc":
			newDesc = desc
		}
	})

	updatedID, err := svc.Update(ctx, *id, *requester, content, newName, newDesc)
	if err != nil {
		return err
	}
	fmt.Println(updatedID)
	return nil
}

func runList(ctx context.Context, svc *scripts.Service, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	owner := fs.String("owner", "", "owner identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	records, err := svc.ListByOwner(ctx, *owner)
	if err != nil {
		return err
	}
	out := make([]scriptJSON, len(records))
	for i, record := range records {
		out[i] = toScriptJSON(record)
	}
	return printJSON(out)
}

func runExecuteStored(ctx context.Context, svc *scripts.Service, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	id := fs.String("id", "", "script id")
	capsPath := fs.String("caps", "", "capability spec file (defaults to the full catalog)")
	timeout := fs.Duration("timeout", sandbox.DefaultTimeout, "execution time limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	spec, err := loadSpec(*capsPath)
	if err != nil {
		return err
	}
	result, output, err := svc.Execute(ctx, *id, spec, sandbox.Limits{Timeout: *timeout})
	if err != nil {
		return err
	}
	return printResult(result, output)
}

func runExecuteFile(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	file := fs.String("file", "", "path to script source")
	capsPath := fs.String("caps", "", "capability spec file (defaults to the full catalog)")
	timeout := fs.Duration("timeout", sandbox.DefaultTimeout, "execution time limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	code, err := readSource(*file)
	if err != nil {
		return err
	}
	spec, err := loadSpec(*capsPath)
	if err != nil {
		return err
	}
	environment, err := sandbox.New(spec)
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}
	executor := sandbox.NewExecutor(logger)
	result := executor.Run(ctx, code, environment, sandbox.Limits{Timeout: *timeout})
	return printResult(result, environment.TakeOutput())
}

// runDemo walks the whole surface in one process: upload, authorized
// update, denied update, then sandboxed execution of the stored script.
func runDemo(ctx context.Context, svc *scripts.Service) error {
	id, err := svc.Upload(ctx, "alice", `return 1 + 2`, "Hello", "greeting demo")
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("uploaded %s (version 1)\n", id)

	newName := "Hello V2"
	if _, err := svc.Update(ctx, id, "alice", `print("hello"); return [1, 2, 3]`, &newName, nil); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	fmt.Printf("updated %s (version 2)\n", id)

	if _, err := svc.Update(ctx, id, "bob", `return 0`, nil, nil); !domain.IsAuthorization(err) {
		return fmt.Errorf("expected authorization denial for bob, got %v", err)
	}
	fmt.Println("update by bob denied, record unchanged")

	result, output, err := svc.Execute(ctx, id, sandbox.DefaultSpec(), sandbox.Limits{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return printResult(result, output)
}

func loadSpec(path string) (sandbox.Spec, error) {
	if strings.TrimSpace(path) == "" {
		return sandbox.DefaultSpec(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return sandbox.Spec{}, fmt.Errorf("read capability spec: %w", err)
	}
	return sandbox.ParseSpec(raw)
}

func readSource(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("-file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script source: %w", err)
	}
	return string(raw), nil
}

type scriptJSON struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ContentSHA256 string    `json:"content_sha256"`
	Content       string    `json:"content"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toScriptJSON(record domain.ScriptRecord) scriptJSON {
	return scriptJSON{
		ID:            record.ID,
		OwnerID:       record.OwnerID,
		Name:          record.Name,
		Description:   record.Description,
		ContentSHA256: record.ContentSHA256,
		Content:       record.Content,
		Version:       record.Version,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

func printResult(result domain.ExecutionResult, output []string) error {
	for _, line := range output {
		fmt.Println(line)
	}
	if !result.OK() {
		return fmt.Errorf("execution failed: %s", result.Err)
	}
	values := make([]any, len(result.Values))
	for i, value := range result.Values {
		values[i] = value.Export()
	}
	return printJSON(map[string]any{"ok": true, "values": values})
}

func printJSON(v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(blob))
	return nil
}
