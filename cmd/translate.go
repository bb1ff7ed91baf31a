/*
Copyright © 2025 The doctrans Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/doctrans/doctrans/internal"
	"github.com/doctrans/doctrans/internal/chunker"
	"github.com/doctrans/doctrans/internal/detector"
	"github.com/doctrans/doctrans/internal/governor"
	"github.com/doctrans/doctrans/internal/llm"
	"github.com/doctrans/doctrans/internal/orchestrator"
	"github.com/doctrans/doctrans/internal/retry"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/internal/validator"
)

var (
	inputPath  string
	outputPath string
	sourceLang string
	targetLang string

	provider    string
	model       string
	baseURL     string
	apiKey      string
	credentials string

	dbPath         string
	noCache        bool
	skipTranslated bool
	priority       int
	noBreaker      bool

	maxConcurrent    int
	minInterval      time.Duration
	reservoir        int
	reservoirRefresh time.Duration
	reservoirAmount  int

	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration

	modelMaxTokens   int
	maxSegmentTokens int
	overlapWords     int
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate markdown documents",
	Long: `Translate a markdown file or every .md file under a directory.

Available providers:
  - openai  OpenAI chat completions or any compatible API (--base-url)
  - ollama  Self-hosted Ollama (--base-url, --model)
  - google  Google Cloud Translation, promptless fallback (--credentials)

Documents exceeding the model window are split at markdown boundaries,
translated segment by segment under the provider's rate limits, and
reassembled with the original separators. Translations are validated
against the source structure and remembered in the local database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputPath == outputPath {
			return fmt.Errorf("input and output cannot be the same path")
		}

		// Flags take precedence, then config file, then env.
		model = viper.GetString("model")
		baseURL = viper.GetString("base_url")

		client, err := buildClient()
		if err != nil {
			return err
		}
		if !noBreaker {
			client = llm.NewBreakerClient(client)
		}

		gov := governor.New(log)
		err = gov.Register(client.Name(), governor.Config{
			MaxConcurrent:            maxConcurrent,
			MinInterval:              minInterval,
			Reservoir:                reservoir,
			ReservoirRefreshAmount:   reservoirAmount,
			ReservoirRefreshInterval: reservoirRefresh,
		})
		if err != nil {
			return err
		}
		defer gov.Shutdown()

		var db *store.Store
		if !noCache && viper.GetString("db") != "" {
			db, err = store.New(viper.GetString("db"))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
		}

		src := sourceLang
		if src == "auto" {
			src = ""
		}

		est := chunker.NewEstimator(model, log)
		orch := orchestrator.New(
			orchestrator.Config{
				SourceLang:            src,
				TargetLang:            targetLang,
				Service:               client.Name(),
				Model:                 model,
				Priority:              priority,
				SkipAlreadyTranslated: skipTranslated,
			},
			orchestrator.Deps{
				Client: client,
				Chunks: chunker.NewManager(est, chunker.Config{
					ModelMaxTokens:      modelMaxTokens,
					SystemPromptReserve: chunker.DefaultConfig().SystemPromptReserve,
					MaxTokensPerSegment: maxSegmentTokens,
					OverlapWords:        overlapWords,
				}, log),
				Detector: detector.New(log),
				Governor: gov,
				Retry: retry.Policy{
					MaxRetries:   maxRetries,
					InitialDelay: initialDelay,
					MaxDelay:     maxDelay,
					Multiplier:   2.0,
					Jitter:       true,
				},
				Validator: validator.New(validator.DefaultConfig(), log),
				Store:     db,
				Log:       log,
			},
		)

		ctx := context.Background()

		info, err := os.Stat(inputPath)
		if err != nil {
			return fmt.Errorf("failed to stat input: %w", err)
		}
		if info.IsDir() {
			return translateDir(ctx, orch, inputPath, outputPath)
		}
		return translateFile(ctx, orch, inputPath, outputPath)
	},
}

// buildClient constructs the configured LLM provider. The API key falls back
// to the provider's conventional environment variable.
func buildClient() (llm.Client, error) {
	switch viper.GetString("provider") {
	case "openai":
		key := apiKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires --api-key or OPENAI_API_KEY")
		}
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  key,
			BaseURL: baseURL,
			Model:   model,
		}), nil
	case "ollama":
		return llm.NewOllamaClient(baseURL, model), nil
	case "google":
		if targetLang == "" {
			return nil, fmt.Errorf("google provider requires --target")
		}
		return llm.NewGoogleTranslateClient(credentials, sourceLang, targetLang), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (openai, ollama, google)", viper.GetString("provider"))
	}
}

func translateFile(ctx context.Context, orch *orchestrator.Orchestrator, in, out string) error {
	content, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}

	unit := internal.NewTranslationUnit(in, "", string(content), log)
	translated, err := orch.Translate(ctx, unit)
	if err != nil {
		return fmt.Errorf("failed to translate %s: %w", in, err)
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, []byte(translated), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	log.Info().Str("input", in).Str("output", out).Msg("translated")
	return nil
}

// translateDir mirrors every .md file under inDir into outDir, keeping the
// relative layout. The first failure aborts the walk.
func translateDir(ctx context.Context, orch *orchestrator.Orchestrator, inDir, outDir string) error {
	var translated int
	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".md" && ext != ".markdown") {
			return nil
		}
		rel, err := filepath.Rel(inDir, path)
		if err != nil {
			return err
		}
		if err := translateFile(ctx, orch, path, filepath.Join(outDir, rel)); err != nil {
			return err
		}
		translated++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("Translated %d documents from %s to %s\n", translated, inDir, outDir)
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file or directory (required)")
	translateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file or directory (required)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")

	translateCmd.Flags().StringVar(&provider, "provider", "openai", "LLM provider: openai, ollama, google")
	translateCmd.Flags().StringVar(&model, "model", llm.DefaultOpenAIModel, "Model name")
	translateCmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:11434", "Provider base URL (openai-compatible or ollama)")
	translateCmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key (or OPENAI_API_KEY)")
	translateCmd.Flags().StringVarP(&credentials, "credentials", "c", "", "Google Cloud credentials file")

	translateCmd.Flags().StringVar(&dbPath, "db", "./data/doctrans.db", "Database path for translation memory")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the translation memory")
	translateCmd.Flags().BoolVar(&skipTranslated, "skip-translated", false, "Skip documents already in the target language")
	translateCmd.Flags().IntVar(&priority, "priority", 0, "Queue priority (higher runs first)")
	translateCmd.Flags().BoolVar(&noBreaker, "no-breaker", false, "Disable the provider circuit breaker")

	translateCmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 4, "Concurrent requests to the provider (0 = unlimited)")
	translateCmd.Flags().DurationVar(&minInterval, "min-interval", 0, "Minimum spacing between request starts")
	translateCmd.Flags().IntVar(&reservoir, "reservoir", 0, "Request budget before refill (0 = unlimited)")
	translateCmd.Flags().IntVar(&reservoirAmount, "reservoir-refresh-amount", 0, "Requests restored per refill")
	translateCmd.Flags().DurationVar(&reservoirRefresh, "reservoir-refresh-interval", 0, "Refill interval")

	translateCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Retries per request after the first attempt")
	translateCmd.Flags().DurationVar(&initialDelay, "initial-delay", time.Second, "Backoff before the first retry")
	translateCmd.Flags().DurationVar(&maxDelay, "max-delay", 30*time.Second, "Backoff ceiling")

	translateCmd.Flags().IntVar(&modelMaxTokens, "model-max-tokens", chunker.DefaultConfig().ModelMaxTokens, "Model input window in tokens")
	translateCmd.Flags().IntVar(&maxSegmentTokens, "max-segment-tokens", chunker.DefaultConfig().MaxTokensPerSegment, "Token budget per segment")
	translateCmd.Flags().IntVar(&overlapWords, "overlap-words", chunker.DefaultOverlapWords, "Context words carried between segments")

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("output")
	translateCmd.MarkFlagRequired("target")

	viper.BindPFlag("provider", translateCmd.Flags().Lookup("provider"))
	viper.BindPFlag("model", translateCmd.Flags().Lookup("model"))
	viper.BindPFlag("base_url", translateCmd.Flags().Lookup("base-url"))
	viper.BindPFlag("db", translateCmd.Flags().Lookup("db"))
}
