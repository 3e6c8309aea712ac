// Package cli provides the mnemo command-line interface.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo/internal/adapters/driven/config/file"
	"github.com/mnemo-labs/mnemo/internal/adapters/driven/provider/ollama"
	"github.com/mnemo-labs/mnemo/internal/adapters/driven/storage/sqlite"
	"github.com/mnemo-labs/mnemo/internal/chunker"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/core/services"
	"github.com/mnemo-labs/mnemo/internal/logger"
	"github.com/mnemo-labs/mnemo/internal/parsers"
	"github.com/mnemo-labs/mnemo/internal/queue"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagVerbose bool
	flagConfig  string
	flagDataDir string
)

// Wired services. Tests inject fakes here before running commands.
var (
	configStore driven.ConfigStore
	store       *sqlite.Store
	taskQueue   *queue.Queue

	itemStore         driven.ItemStore
	processorService  driving.ItemProcessor
	searchService     driving.SearchService
	chatService       driving.ChatService
	connectionService driving.ConnectionService
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Local-first personal knowledge engine",
	Long: `Mnemo captures web pages, notes, and files into a local knowledge
base, indexes them for hybrid semantic and keyword search, and answers
questions grounded in what you stored. All inference runs locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(flagVerbose)
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config directory (default ~/.mnemo)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.mnemo/data)")
}

// Execute runs the root command and releases resources afterwards.
func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

// initServices wires the full service stack: config, storage, provider,
// pipeline services and the background task queue. It is a no-op when
// services are already injected.
func initServices() error {
	if processorService != nil && searchService != nil &&
		chatService != nil && connectionService != nil {
		return nil
	}

	cfg, err := file.NewConfigStore(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	configStore = cfg

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = cfg.GetString("data.dir")
	}
	st, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	store = st
	itemStore = st.ItemStore()

	provider := ollama.New(ollama.Config{
		BaseURL:          cfg.GetString("provider.base_url"),
		EmbedModel:       cfg.GetString("provider.embed_model"),
		ChatModel:        cfg.GetString("provider.chat_model"),
		Dimensions:       cfg.GetInt("provider.dimensions"),
		BatchConcurrency: cfg.GetInt("provider.batch_concurrency"),
	})

	var ckOpts []chunker.Option
	if n := cfg.GetInt("chunking.min_tokens"); n > 0 {
		ckOpts = append(ckOpts, chunker.WithMinTokens(n))
	}
	if n := cfg.GetInt("chunking.max_tokens"); n > 0 {
		ckOpts = append(ckOpts, chunker.WithMaxTokens(n))
	}
	if n := cfg.GetInt("chunking.overlap_tokens"); n > 0 {
		ckOpts = append(ckOpts, chunker.WithOverlap(n))
	}
	ck := chunker.New(ckOpts...)

	workers := cfg.GetInt("queue.workers")
	if workers <= 0 {
		workers = 2
	}
	taskQueue = queue.New(queue.WithWorkers(workers))

	connCfg := services.DefaultConnectorConfig()
	if v := cfg.GetFloat("connections.similarity_weight"); v > 0 {
		connCfg.SimilarityWeight = v
	}
	if v := cfg.GetFloat("connections.entity_weight"); v > 0 {
		connCfg.EntityWeight = v
	}
	if v := cfg.GetFloat("connections.temporal_weight"); v > 0 {
		connCfg.TemporalWeight = v
	}
	if v := cfg.GetFloat("connections.min_strength"); v > 0 {
		connCfg.MinStrength = v
	}
	if d := cfg.GetInt("connections.temporal_window_days"); d > 0 {
		connCfg.TemporalWindow = time.Duration(d) * 24 * time.Hour
	}
	if n := cfg.GetInt("connections.neighbours"); n > 0 {
		connCfg.Neighbours = n
	}

	connector, err := services.NewConnector(st.ItemStore(), st.ChunkStore(), st.ConnectionStore(), connCfg)
	if err != nil {
		return fmt.Errorf("wiring connector: %w", err)
	}

	processor, err := services.NewProcessor(
		st.ItemStore(), st.ChunkStore(), provider,
		parsers.NewRegistry(), taskQueue, ck, st.CheckpointStore(),
	)
	if err != nil {
		return fmt.Errorf("wiring processor: %w", err)
	}

	retriever := services.NewRetriever(provider, st.ChunkStore())

	searcher, err := services.NewSearcher(retriever, provider, st.ItemStore())
	if err != nil {
		return fmt.Errorf("wiring searcher: %w", err)
	}

	chat, err := services.NewChat(retriever, provider, st.ConversationStore())
	if err != nil {
		return fmt.Errorf("wiring chat: %w", err)
	}

	taskQueue.Register(services.TaskDiscoverConnections, func(ctx context.Context, task driven.Task) error {
		return connector.DiscoverConnections(ctx, task.ItemID)
	})
	taskQueue.Start()

	processorService = processor
	searchService = searcher
	chatService = chat
	connectionService = connector
	return nil
}

// shutdown drains the task queue and closes the store.
func shutdown() {
	if taskQueue != nil {
		taskQueue.Stop()
		taskQueue = nil
	}
	if store != nil {
		store.Close() //nolint:errcheck
		store = nil
	}
}
