// Command silatctl administers the membership directory: catalog seeding,
// spreadsheet import/export, and full backups. Storage is selected through
// SILATCORE_* environment variables; a .env file in the working directory is
// loaded when present.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"

	"silatcore/internal/adapters/tabular"
	"silatcore/internal/core"
	"silatcore/internal/infra/blob"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: silatctl <command> [flags]

commands:
  seed              initialize empty position and rank catalogs
  import-members    apply a member CSV sheet (-file path, default stdin)
  import-branches   apply a branch CSV sheet (-file path, default stdin)
  export-members    write the member sheet (-out path, default stdout)
  export-branches   write the branch sheet (-out path, default stdout)
  backup            write a full JSON backup (-out path, default stdout)
  restore           restore a JSON backup (-file path, default stdin)
  attach-photo      store a member photo (-member id, -file path, -content-type type)
  remove-photo      delete a member photo (-member id)`)
}

type stderrLogger struct{ l *log.Logger }

func (s stderrLogger) Debug(msg string, args ...any) { s.print("DEBUG", msg, args) }
func (s stderrLogger) Info(msg string, args ...any)  { s.print("INFO", msg, args) }
func (s stderrLogger) Warn(msg string, args ...any)  { s.print("WARN", msg, args) }
func (s stderrLogger) Error(msg string, args ...any) { s.print("ERROR", msg, args) }

func (s stderrLogger) print(level, msg string, args []any) {
	line := level + " " + msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	s.l.Print(line)
}

func run(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	command, rest := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		usage(stdout)
		return 0
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "open storage: %v\n", err)
		return 1
	}
	logger := stderrLogger{l: log.New(stderr, "", log.LstdFlags)}
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithSeedURL(os.Getenv("SILATCORE_SEED_URL")),
	)
	rec := tabular.NewReconciler(store)
	ctx := context.Background()

	switch command {
	case "seed":
		if _, err := svc.EnsureSeeded(ctx); err != nil {
			fmt.Fprintf(stderr, "seed: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "catalogs ready: %d positions, %d rank levels\n",
			len(svc.ListPositions()), len(svc.ListRankLevels()))
		return 0

	case "import-members":
		return runImport(rest, stdout, stderr, "member rows", func(r io.Reader) (int, error) {
			return rec.ImportMembers(ctx, r)
		})

	case "import-branches":
		return runImport(rest, stdout, stderr, "branches", func(r io.Reader) (int, error) {
			return rec.ImportBranches(ctx, r)
		})

	case "export-members":
		return runExport(rest, stdout, stderr, func(w io.Writer) error {
			return rec.ExportMembers(ctx, w)
		})

	case "export-branches":
		return runExport(rest, stdout, stderr, func(w io.Writer) error {
			return rec.ExportBranches(ctx, w)
		})

	case "backup":
		return runExport(rest, stdout, stderr, func(w io.Writer) error {
			payload, err := svc.ExportBackup(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		})

	case "attach-photo", "remove-photo":
		blobs, err := blob.OpenFromEnv(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "open blob storage: %v\n", err)
			return 1
		}
		svc = core.NewService(store,
			core.WithLogger(logger),
			core.WithBlobStore(blobs),
		)
		if command == "attach-photo" {
			return runAttachPhoto(ctx, rest, stdout, stderr, svc)
		}
		return runRemovePhoto(ctx, rest, stdout, stderr, svc)

	case "restore":
		return runImport(rest, stdout, stderr, "buckets", func(r io.Reader) (int, error) {
			var payload core.BackupPayload
			if err := json.NewDecoder(r).Decode(&payload); err != nil {
				return 0, fmt.Errorf("decode backup: %w", err)
			}
			if _, err := svc.ImportBackup(ctx, payload); err != nil {
				return 0, err
			}
			count := 0
			for _, present := range []bool{
				payload.Users != nil,
				payload.Branches != nil,
				payload.Positions != nil,
				payload.Belts != nil,
			} {
				if present {
					count++
				}
			}
			return count, nil
		})

	default:
		fmt.Fprintf(stderr, "unknown command %q\n", command)
		usage(stderr)
		return 2
	}
}

func runAttachPhoto(ctx context.Context, args []string, stdout, stderr io.Writer, svc *core.Service) int {
	fs := flag.NewFlagSet("attach-photo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	member := fs.String("member", "", "registration number (required)")
	file := fs.String("file", "", "photo path (required)")
	contentType := fs.String("content-type", "image/jpeg", "photo content type")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *member == "" || *file == "" {
		fmt.Fprintln(stderr, "attach-photo requires -member and -file")
		return 2
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(stderr, "open photo: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	updated, _, err := svc.AttachPhoto(ctx, *member, f, *contentType)
	if err != nil {
		fmt.Fprintf(stderr, "attach photo: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "photo stored for %s at %s\n", updated.ID, *updated.PhotoKey)
	return 0
}

func runRemovePhoto(ctx context.Context, args []string, stdout, stderr io.Writer, svc *core.Service) int {
	fs := flag.NewFlagSet("remove-photo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	member := fs.String("member", "", "registration number (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *member == "" {
		fmt.Fprintln(stderr, "remove-photo requires -member")
		return 2
	}
	if _, err := svc.RemovePhoto(ctx, *member); err != nil {
		fmt.Fprintf(stderr, "remove photo: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "photo removed for %s\n", *member)
	return 0
}

func runImport(args []string, stdout, stderr io.Writer, unit string, apply func(io.Reader) (int, error)) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "input path (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := io.Reader(os.Stdin)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(stderr, "open input: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	count, err := apply(in)
	if err != nil {
		fmt.Fprintf(stderr, "import failed after %d %s: %v\n", count, unit, err)
		return 1
	}
	fmt.Fprintf(stdout, "imported %d %s\n", count, unit)
	return 0
}

func runExport(args []string, stdout, stderr io.Writer, render func(io.Writer) error) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	w := io.Writer(stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(stderr, "create output: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := render(w); err != nil {
		fmt.Fprintf(stderr, "export failed: %v\n", err)
		return 1
	}
	return 0
}
