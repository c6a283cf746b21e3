package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/chromemdb"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/pgstore"
	"docqa/internal/qa"
	"docqa/internal/retrieval"
	"docqa/internal/server"
)

var (
	cfgFile string
	verbose bool
	rawText bool
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over your own documents",
	Long: `docqa indexes local documents into a vector store and answers
questions about them with a local ollama model or any OpenAI-compatible
endpoint. Run it as an HTTP API server or use the subcommands directly.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Parse, embed and index documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models installed on the chat endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModels(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	askCmd.Flags().BoolVar(&rawText, "raw", false, "print the retrieved context without asking the model")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, modelsCmd)

	// Bare invocation serves.
	rootCmd.RunE = serveCmd.RunE
}

func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// vectorStore is the combined surface the commands need from a store.
type vectorStore interface {
	retrieval.Index
	ingest.Store
}

func newStore(ctx context.Context, cfg *config.Config, embedder *embeddings.EmbedderImpl) (vectorStore, func() error, error) {
	switch cfg.Store.Type {
	case "chromem":
		store, err := chromemdb.NewStore(&cfg.Store, cfg.RAG.EncryptionKey, chromemdb.EmbeddingFuncFrom(embedder))
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case "postgres":
		sqldb := pgstore.ConnectDB(&cfg.Database)
		db := pgstore.NewDB(sqldb, cfg.Database.Debug)
		if err := pgstore.InitDB(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return pgstore.NewStore(db, embedder), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

// app bundles the wired services behind the CLI commands.
type app struct {
	cfg       *config.Config
	retriever *retrieval.Retriever
	client    *llm.Client
	ingestor  *ingest.Service
	qa        *qa.Service
	closer    func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	store, closer, err := newStore(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	retriever := retrieval.NewRetriever(store, retrievalConfig(cfg.Retrieval))
	client := llm.NewClient(cfg.ChatLLM)
	ingestor := ingest.NewService(cfg, store, embedder)

	return &app{
		cfg:       cfg,
		retriever: retriever,
		client:    client,
		ingestor:  ingestor,
		qa:        qa.NewService(retriever, client, ingestor),
		closer:    closer,
	}, nil
}

func (a *app) close() {
	if err := a.closer(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

func retrievalConfig(rc config.RetrievalConfig) retrieval.Config {
	return retrieval.Config{
		MinPageResults:  rc.MinPageResults,
		PageQueryK:      rc.PageQueryK,
		DocQueryK:       rc.DocQueryK,
		BroadQueryK:     rc.BroadQueryK,
		ScanK:           rc.ScanK,
		FanOutK:         rc.FanOutK,
		SourceFallbackK: rc.SourceFallbackK,
		DefaultK:        rc.DefaultK,
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if model, err := a.client.EnsureModel(ctx); err != nil {
		log.Warn().Err(err).Msg("No chat model resolved; question answering needs one")
	} else {
		log.Info().Str("model", model).Msg("Chat model ready")
	}

	srv := server.New(a.qa, a.ingestor, a.client, a.retriever)
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	return srv.Run(ctx, addr)
}

func runIngest(ctx context.Context, paths []string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		res, err := a.ingestor.Upload(ctx, filepath.Base(path), f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		fmt.Printf("Indexed %s: %d chunks over %d pages\n", res.Filename, res.Chunks, res.Pages)
	}
	return nil
}

func runAsk(ctx context.Context, question string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !rawText {
		if _, err := a.client.EnsureModel(ctx); err != nil {
			return err
		}
	}

	ans, err := a.qa.Ask(ctx, question, qa.Options{RawText: rawText})
	if err != nil {
		var notFound *qa.NoPageContentError
		switch {
		case errors.As(err, &notFound):
			fmt.Println(notFound.Message())
			return nil
		case errors.Is(err, qa.ErrEmptyAnswer):
			fmt.Println(qa.EmptyAnswerMessage)
			return nil
		}
		return err
	}

	if verbose {
		helper.PrettyPrint(ans)
		return nil
	}

	fmt.Println(ans.Text)
	if ans.Source != "" {
		fmt.Printf("\n(source: %s", ans.Source)
		if ans.Page > 0 {
			fmt.Printf(", page %d", ans.Page)
		}
		fmt.Println(")")
	}
	return nil
}

func runModels(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	available, err := llm.ListModels(ctx, cfg.ChatLLM.BaseURL)
	if err != nil {
		return err
	}
	if len(available) == 0 {
		fmt.Println("No models installed. Pull one with 'ollama pull <model_name>'.")
		return nil
	}

	current := cfg.ChatLLM.Model
	if current == "" {
		current = llm.ChooseDefault(available)
	}
	for _, m := range available {
		marker := "  "
		if m == current {
			marker = "* "
		}
		fmt.Println(marker + m)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
