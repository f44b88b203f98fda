// Command chatd runs the due-diligence chat service: the HTTP coordinator,
// the generation driver with its tool set, MongoDB persistence, and optional
// Redis-backed resumable streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	blobmongo "github.com/korefocus/diligence/features/blob/mongo"
	chatstoremongo "github.com/korefocus/diligence/features/chatstore/mongo"
	clientsmongo "github.com/korefocus/diligence/features/chatstore/mongo/clients/mongo"
	"github.com/korefocus/diligence/features/model/anthropic"
	"github.com/korefocus/diligence/features/model/middleware"
	"github.com/korefocus/diligence/features/model/openai"
	streampulse "github.com/korefocus/diligence/features/stream/pulse"
	clientspulse "github.com/korefocus/diligence/features/stream/pulse/clients/pulse"
	"github.com/korefocus/diligence/features/tools/memo"
	"github.com/korefocus/diligence/features/tools/questions"
	"github.com/korefocus/diligence/features/tools/swot"
	"github.com/korefocus/diligence/runtime/chat/auth"
	"github.com/korefocus/diligence/runtime/chat/driver"
	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/resume"
	"github.com/korefocus/diligence/runtime/chat/tools"
	"github.com/korefocus/diligence/service/chatapi"
)

const systemPrompt = `You are a document-driven due-diligence assistant with access to three tools:

- createSwot: exports a SWOT deck based on the attachment.
- generateQuestions: produces the due-diligence question set plus a memo artifact.
- formatMemo: chat-only formatter for the initial due-diligence request (sections A-E); do not call any upload APIs for it.

When a tool creates a file, do not include the raw URL in your response; the download link is rendered separately by the client.

Rules for every turn:
1. Only answer questions about the attached document's content. Never introduce outside facts.
2. Be concise, neutral, and professional. Use markdown headings and bullet points.
3. When asked for the strengths, weaknesses, opportunities, and risks flagged in the documents, first stream a written summary, then offer to export it as a deck.`

func main() {
	var (
		httpAddrF      = flag.String("http-addr", ":8080", "HTTP listen address")
		maxStepsF      = flag.Int("max-steps", driver.DefaultMaxSteps, "Generation step budget per run")
		replayWindowF  = flag.Duration("replay-window", chatapi.DefaultReplayWindow, "Assistant message replay window on resume")
		requestTimeout = flag.Duration("request-timeout", 60*time.Second, "Read header timeout")
		streamTimeout  = flag.Duration("stream-timeout", 300*time.Second, "Write timeout for long-running streams")
		dbgF           = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	// .env is optional; environment variables win.
	_ = godotenv.Load()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	log.Print(ctx, log.KV{K: "http-addr", V: *httpAddrF})

	mongoURL := envOr("MONGO_URL", "mongodb://localhost:27017")
	mongoDB := envOr("MONGO_DATABASE", "diligence")
	mongoClient, err := mongodriver.Connect(mongooptions.Client().ApplyURI(mongoURL))
	if err != nil {
		log.Fatalf(ctx, err, "connect to MongoDB at %q", mongoURL)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Errorf(ctx, err, "disconnect MongoDB")
		}
	}()

	storeClient, err := clientsmongo.New(clientsmongo.Options{Client: mongoClient, Database: mongoDB})
	if err != nil {
		log.Fatalf(ctx, err, "initialize chat store")
	}
	store, err := chatstoremongo.NewStore(storeClient)
	if err != nil {
		log.Fatalf(ctx, err, "initialize chat store")
	}
	blobs, err := blobmongo.New(blobmongo.Options{Client: mongoClient, Database: mongoDB, BaseURL: "/files"})
	if err != nil {
		log.Fatalf(ctx, err, "initialize blob store")
	}

	var (
		registry resume.Registry
		rdb      *redis.Client
		pingers  = []health.Pinger{storeClient, blobs}
	)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf(ctx, err, "parse REDIS_URL")
		}
		rdb = redis.NewClient(redisOpts)
		pulseClient, err := clientspulse.New(clientspulse.Options{Redis: rdb})
		if err != nil {
			log.Fatalf(ctx, err, "initialize pulse client")
		}
		registry, err = streampulse.NewRegistry(streampulse.RegistryOptions{Client: pulseClient, Redis: rdb})
		if err != nil {
			log.Fatalf(ctx, err, "initialize resumable stream registry")
		}
	} else {
		log.Printf(ctx, "Resumable streams are disabled due to missing REDIS_URL")
	}

	engine, models := buildEngine(ctx)
	if tpm := envFloat("MODEL_TPM"); tpm > 0 {
		var budget *rmap.Map
		if rdb != nil {
			budget, err = rmap.Join(ctx, "model-budget", rdb)
			if err != nil {
				log.Errorf(ctx, err, "join shared model budget, falling back to process-local limiting")
				budget = nil
			}
		}
		maxTPM := envFloat("MODEL_TPM_MAX")
		limiter := middleware.NewAdaptiveRateLimiter(ctx, budget, "chat", tpm, maxTPM)
		engine = limiter.Middleware()(engine)
		log.Print(ctx, log.KV{K: "model-tpm", V: tpm})
	}

	swotTool, err := swot.New(blobs)
	if err != nil {
		log.Fatalf(ctx, err, "initialize swot tool")
	}
	questionsTool, err := questions.New(blobs, questions.DefaultConfig())
	if err != nil {
		log.Fatalf(ctx, err, "initialize questions tool")
	}
	toolRegistry, err := tools.NewRegistry(swotTool, questionsTool, memo.New())
	if err != nil {
		log.Fatalf(ctx, err, "initialize tool registry")
	}

	drv, err := driver.New(driver.Options{
		Store:        store,
		Client:       engine,
		Tools:        toolRegistry,
		SystemPrompt: envOr("SYSTEM_PROMPT", systemPrompt),
		MaxSteps:     *maxStepsF,
		TitleModel:   os.Getenv("TITLE_MODEL"),
	})
	if err != nil {
		log.Fatalf(ctx, err, "initialize generation driver")
	}

	authenticator, err := auth.NewStaticTokens(parseTokens(os.Getenv("AUTH_TOKENS")))
	if err != nil {
		log.Fatalf(ctx, err, "initialize authenticator (set AUTH_TOKENS=token:user,...)")
	}

	svc, err := chatapi.New(chatapi.Options{
		Auth:         authenticator,
		Store:        store,
		Blobs:        blobs,
		Driver:       drv,
		Registry:     registry,
		Models:       models,
		ReplayWindow: *replayWindowF,
		Pingers:      pingers,
	})
	if err != nil {
		log.Fatalf(ctx, err, "initialize chat service")
	}

	mux := http.NewServeMux()
	mux.Handle("/", svc.Handler())
	if *dbgF {
		debug.MountDebugLogEnabler(mux)
		debug.MountPprofHandlers(mux)
	}
	var handler http.Handler = mux
	if *dbgF {
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)

	srv := &http.Server{
		Addr:              *httpAddrF,
		Handler:           handler,
		ReadHeaderTimeout: *requestTimeout,
		WriteTimeout:      *streamTimeout,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", *httpAddrF)
		errc <- srv.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf(ctx, "failed to shutdown: %v", err)
	}
	log.Printf(ctx, "exited")
}

// buildEngine selects the model provider from the environment: Anthropic when
// ANTHROPIC_API_KEY is set, OpenAI otherwise.
func buildEngine(ctx context.Context) (model.Client, map[string]chatapi.ModelVariant) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		modelID := envOr("CHAT_MODEL_ID", "claude-sonnet-4-20250514")
		client, err := anthropic.NewFromAPIKey(key, modelID)
		if err != nil {
			log.Fatalf(ctx, err, "initialize Anthropic client")
		}
		return client, map[string]chatapi.ModelVariant{
			"chat-model": {ModelID: modelID},
			"chat-model-reasoning": {
				ModelID:  envOr("REASONING_MODEL_ID", modelID),
				Thinking: &model.ThinkingOptions{Enable: true},
			},
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		modelID := envOr("CHAT_MODEL_ID", "gpt-4o")
		client, err := openai.NewFromAPIKey(key, modelID)
		if err != nil {
			log.Fatalf(ctx, err, "initialize OpenAI client")
		}
		return client, map[string]chatapi.ModelVariant{
			"chat-model":           {ModelID: modelID},
			"chat-model-reasoning": {ModelID: envOr("REASONING_MODEL_ID", modelID)},
		}
	}
	log.Fatalf(ctx, fmt.Errorf("no provider configured"), "set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	return nil, nil
}

// parseTokens parses "token:user,token2:user2" into the static token map.
func parseTokens(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		out[token] = user
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}
