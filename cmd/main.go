package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"docchat/internal/config"
	"docchat/internal/helper"
	"docchat/internal/models"
	"docchat/internal/rag"
	"docchat/internal/tui"
	"docchat/internal/watch"
)

const (
	defaultConfigPath = "./configs/config.yaml"
	cliCallerKey      = "cli"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to the YAML config")
	files := flag.String("file", "", "Comma separated document paths or globs (docs/**/*.pdf) to upload")
	query := flag.String("query", "", "Message to send to the assistant")
	sessionID := flag.String("session", "", "Session id for chat history (generated when empty)")
	list := flag.Bool("list", false, "List uploaded documents")
	deleteName := flag.String("delete", "", "Delete a document by its stored filename")
	clearAll := flag.Bool("clear", false, "Remove every uploaded document")
	stats := flag.Bool("stats", false, "Print vector store statistics")
	interactive := flag.Bool("chat", false, "Start the interactive chat UI")
	exportPath := flag.String("export", "", "Write an encrypted snapshot of the chromem store")
	importPath := flag.String("import", "", "Restore the chromem store from a snapshot written by -export")
	watchDir := flag.String("watch", "", "Upload documents as they are added to this directory")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	var logOut io.Writer = os.Stderr
	if *interactive {
		// the UI owns the terminal
		logOut = io.Discard
		if f, err := os.OpenFile(filepath.Join(os.TempDir(), "docchat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			logOut = f
		}
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Console, logOut)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc, closeAll, err := rag.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing service")
	}
	defer closeAll()

	if *sessionID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			log.Fatal().Err(err).Msg("Error generating session id")
		}
		*sessionID = id
	}

	if err := run(ctx, svc, options{
		files:       *files,
		query:       *query,
		sessionID:   *sessionID,
		list:        *list,
		deleteName:  *deleteName,
		clearAll:    *clearAll,
		stats:       *stats,
		interactive: *interactive,
		exportPath:  *exportPath,
		importPath:  *importPath,
		watchDir:    *watchDir,
	}); err != nil {
		log.Error().Err(err).Msg("Command failed")
		closeAll()
		os.Exit(1)
	}
}

type options struct {
	files       string
	query       string
	sessionID   string
	list        bool
	deleteName  string
	clearAll    bool
	stats       bool
	interactive bool
	exportPath  string
	importPath  string
	watchDir    string
}

// run executes the requested actions in a fixed order so a single
// invocation can restore, clear, upload and then ask.
func run(ctx context.Context, svc *rag.Service, opts options) error {
	did := false

	if opts.importPath != "" {
		did = true
		if err := svc.Import(ctx, opts.importPath); err != nil {
			return err
		}
		fmt.Printf("Imported vector store from %s\n", opts.importPath)
	}

	if opts.clearAll {
		did = true
		if err := svc.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("All documents removed.")
	}

	if opts.deleteName != "" {
		did = true
		if err := svc.DeleteDocument(ctx, opts.deleteName); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", opts.deleteName)
	}

	if opts.files != "" {
		did = true
		paths, err := helper.ExpandPaths(opts.files)
		if err != nil {
			return err
		}
		uploads := make([]models.UploadFile, len(paths))
		for i, p := range paths {
			uploads[i] = models.UploadFile{Name: filepath.Base(p), Path: p}
		}
		statuses, err := svc.ProcessUpload(ctx, cliCallerKey, uploads)
		if err != nil {
			return err
		}
		helper.PrettyPrint(statuses)
	}

	if opts.list {
		did = true
		docs, err := svc.ListDocuments(ctx)
		if err != nil {
			return err
		}
		helper.PrettyPrint(docs)
	}

	if opts.stats {
		did = true
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		helper.PrettyPrint(st)
	}

	if opts.query != "" {
		did = true
		res, err := svc.Chat(ctx, models.ChatRequest{SessionID: opts.sessionID, CallerKey: cliCallerKey, Message: opts.query})
		if err != nil {
			return err
		}
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", opts.query)

		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s (session %s)\n", res.Source, opts.sessionID)
		for _, s := range res.Sources {
			fmt.Printf("  %s #%d  similarity=%.3f\n", s.Filename, s.ChunkIndex, s.Similarity)
		}
		fmt.Println()

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", res.Response)
	}

	if opts.exportPath != "" {
		did = true
		if err := svc.Export(ctx, opts.exportPath); err != nil {
			return err
		}
		fmt.Printf("Exported vector store to %s\n", opts.exportPath)
	}

	if opts.watchDir != "" && !opts.interactive {
		did = true
		w := watch.New(opts.watchDir, svc, watch.WithResults(func(statuses []models.FileStatus) {
			helper.PrettyPrint(statuses)
		}))
		if err := w.Run(ctx); err != nil {
			return err
		}
	}

	if opts.interactive {
		if opts.watchDir != "" {
			w := watch.New(opts.watchDir, svc)
			go func() {
				if err := w.Run(ctx); err != nil {
					log.Error().Err(err).Msg("watcher stopped")
				}
			}()
		}
		did = true
		p := tea.NewProgram(tui.New(ctx, svc, opts.sessionID), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("chat ui: %w", err)
		}
	}

	if !did {
		flag.Usage()
	}
	return nil
}
