// Command agentcore is a terminal-free driver for the agent runtime: it
// wires config, provider, tools, session store, agent loop, and compaction
// into a single run-one-prompt-and-exit (or REPL, with -i) CLI.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaywire/agentcore/internal/agentloop"
	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/compact"
	"github.com/relaywire/agentcore/internal/config"
	"github.com/relaywire/agentcore/internal/mcp"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/store"
	"github.com/relaywire/agentcore/internal/tools"
	"github.com/relaywire/agentcore/internal/toolrt"
	"github.com/relaywire/agentcore/internal/transform"
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to setup logging: %v\n", err)
	}

	flagSession := flag.String("s", "", "resume a session by ID")
	flagList := flag.Bool("l", false, "list sessions")
	flagContinue := flag.Bool("c", false, "continue most recent session")
	flagInteractive := flag.Bool("i", false, "read prompts from stdin in a loop instead of exiting after one turn")
	flag.StringVar(flagSession, "session", "", "resume a session by ID")
	flag.BoolVar(flagList, "list", false, "list sessions")
	flag.BoolVar(flagContinue, "continue", false, "continue most recent session")
	flag.Parse()

	configPath := filepath.Join(".", "config.toml")
	if dataDir, err := config.DataDir(); err == nil {
		dataDirPath := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(dataDirPath); err == nil {
			configPath = dataDirPath
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		fmt.Printf("Error preparing data directory: %v\n", err)
		os.Exit(1)
	}
	sessionDB, err := store.Open(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		fmt.Printf("Error opening session store: %v\n", err)
		os.Exit(1)
	}
	defer sessionDB.Close()

	if *flagList {
		listSessions(sessionDB)
		return
	}

	registry := buildRegistry(cfg)
	providerName, providerCfg := resolveProvider(cfg, registry)
	prov, err := registry.Create(providerName, providerCfg.Model, provider.Options{
		Temperature: providerCfg.Temperature,
	})
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		os.Exit(1)
	}
	defer prov.Close()

	identity := agentmsg.ModelIdentity{Provider: providerName, API: providerName, ModelID: providerCfg.Model}

	sessionID, history := resolveSession(sessionDB, *flagSession, *flagContinue)

	toolRoot, err := os.Getwd()
	if err != nil {
		fmt.Printf("Error resolving working directory: %v\n", err)
		os.Exit(1)
	}
	toolRegistry := buildTools(toolRoot)

	mcpProxy := buildMCPProxy(cfg, sessionID)
	if err := mcpProxy.Initialize(context.Background()); err != nil {
		log.Warn().Err(err).Msg("mcp: upstream initialize failed, continuing with local tools only")
	}
	if err := mcpProxy.RegisterInto(context.Background(), toolRegistry); err != nil {
		log.Warn().Err(err).Msg("mcp: failed to list tools")
	}
	defer mcpProxy.Close()

	loop := agentloop.New(agentloop.Options{
		Provider:         prov,
		Identity:         identity,
		Tools:            toolRegistry,
		Normalizer:       transform.DefaultNormalizer(),
		MaxToolRounds:    cfg.Agent.MaxToolRoundsOrDefault(),
		ReminderInterval: cfg.Agent.ReminderIntervalOrDefault(),
	})
	seedHistory(loop, history)

	orchestrator := &compact.Orchestrator{
		Store:             sessionDB,
		SummarizeProvider: prov,
		Identity:          identity,
		KeepRecentTokens:  cfg.Compaction.KeepRecentTokensOrDefault(),
		ReserveTokens:     cfg.Compaction.ReserveTokensOrDefault(),
	}

	runner := &session{
		db:            sessionDB,
		sessionID:     sessionID,
		identity:      identity,
		loop:          loop,
		orchestrator:  orchestrator,
		contextWindow: cfg.Compaction.ContextWindowOrDefault(),
		reserveTokens: cfg.Compaction.ReserveTokensOrDefault(),
	}

	if *flagInteractive {
		runner.repl(context.Background())
		return
	}

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		fmt.Println("Usage: agentcore [-s session] [-c] [-i] <prompt>")
		os.Exit(1)
	}
	runner.turn(context.Background(), prompt)
}

// session binds one Loop to its persisted entry log and compaction policy.
type session struct {
	db            *store.Cache
	sessionID     string
	identity      agentmsg.ModelIdentity
	loop          *agentloop.Loop
	orchestrator  *compact.Orchestrator
	contextWindow int
	reserveTokens int
}

func (s *session) repl(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("session %s (ctrl-d to exit)\n> ", s.sessionID)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			s.turn(ctx, line)
		}
		fmt.Print("> ")
	}
}

func (s *session) turn(ctx context.Context, prompt string) {
	userMsg := agentmsg.NewUserText(prompt, time.Now())
	if _, err := s.db.AppendEntry(store.SessionEntry{SessionID: s.sessionID, Kind: store.EntryMessage, Message: userMsg}); err != nil {
		log.Error().Err(err).Msg("append user entry")
	}

	out := s.loop.Run(ctx, []agentmsg.Message{userMsg})
	var lastStop agentmsg.StopReason
	for {
		evt, ok := out.Next()
		if !ok {
			break
		}
		s.render(evt)
		if evt.Type == agentmsg.AgMessageEnd && evt.Message.Kind == agentmsg.KindMessage && evt.Message.Message.Role == agentmsg.RoleAssistant {
			lastStop = evt.Message.Message.StopReason
		}
	}

	for _, am := range out.Result() {
		if err := s.persist(am); err != nil {
			log.Error().Err(err).Msg("persist agent message")
		}
	}

	s.maybeCompact(ctx, lastStop)
}

func (s *session) persist(am agentmsg.AgentMessage) error {
	if am.Kind != agentmsg.KindMessage {
		_, err := s.db.AppendEntry(store.SessionEntry{SessionID: s.sessionID, Kind: store.EntryCustomMessage, Custom: am.Custom})
		return err
	}
	_, err := s.db.AppendEntry(store.SessionEntry{SessionID: s.sessionID, Kind: store.EntryMessage, Message: am.Message})
	return err
}

func (s *session) render(evt agentmsg.AgentEvent) {
	switch evt.Type {
	case agentmsg.AgMessageUpdate:
		if evt.AssistantDelta != nil && evt.AssistantDelta.Type == agentmsg.EvTextDelta {
			fmt.Print(evt.AssistantDelta.Delta)
		}
	case agentmsg.AgMessageEnd:
		if evt.Message.Kind == agentmsg.KindMessage && evt.Message.Message.Role == agentmsg.RoleAssistant {
			fmt.Println()
		}
	case agentmsg.AgToolExecStart:
		fmt.Printf("\n[%s running]\n", evt.ToolName)
	case agentmsg.AgToolExecEnd:
		if evt.Result != nil && evt.Result.IsError {
			fmt.Printf("[%s failed]\n", evt.ToolName)
		}
	}
}

func (s *session) maybeCompact(ctx context.Context, stop agentmsg.StopReason) {
	entries, err := s.db.LoadEntries(s.sessionID)
	if err != nil {
		log.Error().Err(err).Msg("load entries for compaction check")
		return
	}
	tokens := 0
	for _, e := range entries {
		tokens += compact.EstimateTokens(e)
	}

	triggered, shouldContinue, err := s.orchestrator.HandleTurnEnd(ctx, s.sessionID, compact.TriggerInput{
		StopReason:    stop,
		CurrentModel:  s.identity,
		ContextTokens: tokens,
		ContextWindow: s.contextWindow,
		ReserveTokens: s.reserveTokens,
	})
	if err != nil {
		log.Error().Err(err).Msg("compaction")
		return
	}
	if triggered {
		log.Info().Bool("continue", shouldContinue).Msg("compacted session")
	}
}

// buildRegistry registers one factory per configured provider, dispatching
// on ProviderConfig.Kind so the same config.toml can mix a local Ollama
// deployment with hosted Zen/vLLM/OpenCode/Anthropic endpoints.
func buildRegistry(cfg *config.Config) *provider.Registry {
	creds, err := config.LoadCredentials()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load provider credentials")
		creds = &config.Credentials{}
	}

	registry := provider.NewRegistry()
	for name, providerCfg := range cfg.Providers {
		apiKey := creds.GetAPIKey(name)
		switch providerCfg.KindOrDefault() {
		case "zen":
			registry.RegisterFactory(name, provider.NewZenFactory(name, apiKey, providerCfg.Endpoint))
		case "vllm":
			registry.RegisterFactory(name, provider.NewVLLMFactory(name, providerCfg.Endpoint, apiKey))
		case "opencode":
			registry.RegisterFactory(name, provider.NewOpenCodeFactory(name, providerCfg.Endpoint, apiKey))
		case "anthropic":
			registry.RegisterFactory(name, provider.NewAnthropicFactory(name, providerCfg.Endpoint, apiKey))
		default:
			registry.RegisterFactory(name, provider.NewOllamaFactory(name, providerCfg.Endpoint))
		}
	}
	return registry
}

func resolveProvider(cfg *config.Config, registry *provider.Registry) (string, config.ProviderConfig) {
	name := cfg.DefaultProvider
	if name == "" {
		providers := registry.List()
		if len(providers) == 0 {
			fmt.Println("Error: No providers configured")
			os.Exit(1)
		}
		name = providers[0]
	}
	pcfg, ok := cfg.Providers[name]
	if !ok {
		fmt.Printf("Error: Provider %q not found\n", name)
		os.Exit(1)
	}
	return name, pcfg
}

// secretStore backs the save_secret/get_secret MCP-local tools for the
// lifetime of the process, in memory only. The save_secret call arguments and
// the get_secret result are ordinary tool-call and tool-result content, so
// they are persisted to the session store and sent to the model.
var secretStore = mcp.NewMemorySecretStore()

// buildMCPProxy wires an MCP proxy for this session: a local save_secret/
// get_secret tool pair plus, when cfg.MCP.Upstream is set, an upstream MCP
// server reachable for every other tool call.
func buildMCPProxy(cfg *config.Config, sessionID string) *mcp.Proxy {
	var upstream mcp.UpstreamClient
	if cfg.MCP.Upstream != "" {
		upstream = mcp.NewClient(cfg.MCP.Upstream)
	}

	proxy := mcp.NewProxy(upstream)
	proxy.RegisterTool(mcp.NewSaveSecretTool(), mcp.MakeSaveSecretHandler(secretStore, sessionID))
	proxy.RegisterTool(mcp.NewGetSecretTool(), mcp.MakeGetSecretHandler(secretStore, sessionID))
	return proxy
}

func buildTools(root string) *toolrt.Registry {
	reg := toolrt.NewRegistry()
	tracker := tools.NewReadTracker()
	reg.Register(tools.NewReadTool(root, tracker))
	reg.Register(tools.NewEditTool(root, tracker))
	reg.Register(tools.NewSearchTool(root))
	reg.Register(tools.NewShellTool(root))
	return reg
}

func resolveSession(db *store.Cache, requested string, resumeContinue bool) (string, []store.SessionEntry) {
	if requested != "" {
		if exists, _ := db.SessionExists(requested); exists {
			entries, err := db.LoadEntries(requested)
			if err != nil {
				log.Error().Err(err).Msg("load session entries")
			}
			return requested, entries
		}
		if err := db.CreateSession(requested); err != nil {
			log.Error().Err(err).Msg("create requested session")
		}
		return requested, nil
	}

	if resumeContinue {
		sessions, err := db.ListSessions()
		if err == nil && len(sessions) > 0 {
			entries, err := db.LoadEntries(sessions[0].ID)
			if err != nil {
				log.Error().Err(err).Msg("load most recent session entries")
			}
			return sessions[0].ID, entries
		}
	}

	id := newSessionID()
	if err := db.CreateSession(id); err != nil {
		log.Error().Err(err).Msg("create new session")
	}
	return id, nil
}

func seedHistory(loop *agentloop.Loop, entries []store.SessionEntry) {
	if len(entries) == 0 {
		return
	}
	messages := make([]agentmsg.Message, 0, len(entries))
	for _, e := range entries {
		if e.Kind == store.EntryMessage {
			messages = append(messages, e.Message)
		}
	}
	loop.Seed(messages)
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Warn().Err(err).Msg("failed to read random bytes for session id")
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, "agentcore.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}

func listSessions(db *store.Cache) {
	sessions, err := db.ListSessions()
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return
	}
	for _, s := range sessions {
		ts := s.Timestamp.Format("2006-01-02 15:04")
		preview := strings.ReplaceAll(s.Preview, "\n", " ")
		fmt.Printf("%s  %s  %s\n", s.ID, ts, preview)
	}
}
