package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog/log"

	"loan-rag/internal/config"
	"loan-rag/internal/embedding"
	"loan-rag/internal/handler"
	"loan-rag/internal/helper"
	"loan-rag/internal/models"
	"loan-rag/internal/parser"
	"loan-rag/internal/processor"
	"loan-rag/internal/rag"
	"loan-rag/internal/tui"
)

var demoQuestions = []string{
	"What are the interest rates for a Bank of Maharashtra home loan?",
	"What is the maximum tenure for a personal loan if my salary account is with the bank?",
	"Tell me about the Maha Super Flexi Housing Loan Scheme.",
	"Are there any processing fee concessions for women or defence personnel on home loans?",
}

func runIngest(_ context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := fs.String("dir", "./docs", "Directory with pdf, docx, pptx, xlsx, txt or md files")
	out := fs.String("out", cfg.Data.RawRecords, "Raw records file to write")
	appendTo := fs.Bool("append", false, "Append to the existing raw records instead of replacing them")
	fs.Parse(args)

	records, err := parser.ParseDir(*dir)
	if err != nil {
		return err
	}
	if *appendTo {
		existing, err := processor.LoadRecords(*out)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		records = append(existing, records...)
	}
	if err := processor.SaveRecords(*out, records); err != nil {
		return err
	}

	failed := 0
	for _, r := range records {
		if !r.Success {
			failed++
		}
	}
	log.Info().Int("records", len(records)).Int("failed", failed).Str("file", *out).Msg("Saved raw records")
	return nil
}

func runProcess(_ context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	in := fs.String("in", cfg.Data.RawRecords, "Raw records file")
	fs.Parse(args)

	m, err := processor.Process(*in, cfg.Data.KnowledgeBase, cfg.Data.Manifest, newChunker(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("Created %d fragments (generation %s)\n", len(m.Fragments), m.Generation)
	return nil
}

func runBuildIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("build-index", flag.ExitOnError)
	rechunk := fs.Bool("rechunk", false, "Chunk the knowledge base again instead of reading the manifest")
	fs.Parse(args)

	var (
		manifest *models.Manifest
		err      error
	)
	if *rechunk {
		doc, err := processor.ReadKnowledgeBase(cfg.Data.KnowledgeBase)
		if err != nil {
			return err
		}
		if manifest, err = processor.NewManifest(doc, newChunker(cfg)); err != nil {
			return err
		}
		if err := processor.SaveManifest(cfg.Data.Manifest, manifest); err != nil {
			return err
		}
	} else if manifest, err = processor.LoadManifest(cfg.Data.Manifest); err != nil {
		return err
	}

	embedder, err := embedding.NewFromConfig(ctx, cfg.EmbedLLM)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg, embedder.Dimension(), true)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := rag.BuildIndex(ctx, store, embedder, manifest.Fragments, cfg.RAG.BatchSize)
	if err != nil {
		return err
	}
	log.Info().Int("fragments", n).Str("generation", manifest.Generation).Msg("Built vector index")
	return nil
}

func runQuery(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the full response as JSON")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("%w: usage: query [-json] <question>", models.ErrInvalidArgument)
	}

	pipeline, closeStore, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	resp, err := pipeline.Ask(ctx, question)
	if err != nil {
		return err
	}
	if *asJSON {
		helper.PrettyPrint(os.Stdout, resp)
		return nil
	}
	printResponse(os.Stdout, resp)
	return nil
}

func runDemo(ctx context.Context, cfg *config.Config, _ []string) error {
	pipeline, closeStore, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sep := strings.Repeat("=", 80)
	for i, q := range demoQuestions {
		fmt.Printf("%s\nQuery %d/%d\n", sep, i+1, len(demoQuestions))
		resp, err := pipeline.Ask(ctx, q)
		if err != nil {
			return err
		}
		printResponse(os.Stdout, resp)
	}
	fmt.Println(sep)
	return nil
}

func runChat(ctx context.Context, cfg *config.Config, _ []string) error {
	pipeline, closeStore, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := pipeline.Count(ctx)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%d fragments indexed, top %d per question", n, pipeline.TopK())
	_, err = tea.NewProgram(tui.New(ctx, pipeline, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	fs.Parse(args)

	pipeline, closeStore, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	app := fiber.New(fiber.Config{AppName: "loan-rag"})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	handler.NewAskHandler(pipeline).Register(app)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}()

	log.Info().Str("addr", *addr).Msg("Serving query API")
	return app.Listen(*addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	path := fs.String("path", "", "Snapshot file, defaults to <vector_store.path>/<collection>.chromem")
	fs.Parse(args)

	if cfg.VectorStore.Type != "chromem" {
		return fmt.Errorf("%w: snapshots are only supported for the chromem store", models.ErrInvalidArgument)
	}
	store, err := openChromem(cfg)
	if err != nil {
		return err
	}
	written, err := store.Export(ctx, *path)
	if err != nil {
		return err
	}
	log.Info().Str("file", written).Msg("Exported vector index")
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	path := fs.String("path", "", "Snapshot file written by export")
	fs.Parse(args)

	if cfg.VectorStore.Type != "chromem" {
		return fmt.Errorf("%w: snapshots are only supported for the chromem store", models.ErrInvalidArgument)
	}
	if *path == "" {
		return fmt.Errorf("%w: -path is required", models.ErrInvalidArgument)
	}
	store, err := openChromem(cfg)
	if err != nil {
		return err
	}
	if err := store.Import(ctx, *path); err != nil {
		return err
	}
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("fragments", n).Str("file", *path).Msg("Imported vector index")
	return nil
}

func printResponse(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintf(w, "\nQuestion: %s\n", resp.Question)
	fmt.Fprintf(w, "\nAnswer:\n%s\n", resp.Answer)
	fmt.Fprintf(w, "\nConfidence: %.2f\n", resp.Confidence)
	fmt.Fprintf(w, "Sources: %d fragments\n", len(resp.Sources))
	for i, src := range resp.Sources {
		label := models.DefaultLabel
		if i < len(resp.Labels) {
			label = resp.Labels[i]
		}
		dist := 0.0
		if i < len(resp.Distances) {
			dist = resp.Distances[i]
		}
		fmt.Fprintf(w, "  [%d] %s (distance %.3f): %s\n", i+1, label, dist, preview(src, 100))
	}
	fmt.Fprintln(w)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
