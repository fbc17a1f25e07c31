package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sarkar-ai-taken/deskmate/internal/agent"
	"github.com/sarkar-ai-taken/deskmate/internal/approval"
	"github.com/sarkar-ai-taken/deskmate/internal/config"
	"github.com/sarkar-ai-taken/deskmate/internal/executor"
	"github.com/sarkar-ai-taken/deskmate/internal/gateway"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/security"
	"github.com/sarkar-ai-taken/deskmate/internal/session"
	"github.com/sarkar-ai-taken/deskmate/internal/telegram"
)

const version = "0.1.0"

func main() {
	configPath := ""
	logLevel := LevelInfo
	for i := 1; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "version":
			fmt.Printf("deskmate %s\n", version)
			return
		case "-config":
			if i+1 >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "-config requires a path")
				os.Exit(2)
			}
			i++
			configPath = os.Args[i]
		case "-debug":
			logLevel = LevelDebug
		default:
			fmt.Fprintf(os.Stderr, "usage: deskmate [version] [-config path] [-debug]\n")
			os.Exit(2)
		}
	}

	Init(&Config{Level: logLevel, ShowCaller: logLevel >= LevelDebug})
	L_info("deskmate %s starting", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}

	apiKey := cfg.Agent.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	storagePath := cfg.Gateway.StoragePath
	if storagePath == "" {
		home, _ := os.UserHomeDir()
		storagePath = filepath.Join(home, ".deskmate", "sessions.json")
	}

	allowed := make([]security.UserIdentity, 0, len(cfg.Gateway.AllowedUsers))
	for _, u := range cfg.Gateway.AllowedUsers {
		allowed = append(allowed, security.UserIdentity{ClientType: u.ClientType, PlatformUserID: u.UserID})
	}
	if len(allowed) == 0 {
		L_warn("no allowed users configured, every message will be dropped")
	}
	sec := security.NewManager(allowed)

	sessions := session.NewManager(session.ManagerConfig{
		IdleTimeout:   time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute,
		PruneInterval: time.Duration(cfg.Session.PruneIntervalMinutes) * time.Minute,
		StoragePath:   storagePath,
	})

	approvals := approval.NewManager(approval.ManagerConfig{
		RequireForAll:       cfg.Approval.RequireForAll,
		Timeout:             time.Duration(cfg.Approval.TimeoutSeconds) * time.Second,
		FolderTimeout:       time.Duration(cfg.Approval.FolderTimeoutSeconds) * time.Second,
		AutoApproveCommands: cfg.Approval.AutoApproveCommands,
	})

	exec, err := executor.NewLocal(executor.LocalConfig{WorkingDir: cfg.Gateway.WorkingDir})
	if err != nil {
		L_fatal("failed to create executor: %v", err)
	}

	tools := agent.NewToolSet(approvals, exec)
	provider, err := agent.NewAnthropic(agent.AnthropicConfig{
		APIKey:       apiKey,
		Model:        cfg.Agent.Model,
		MaxTokens:    cfg.Agent.MaxTokens,
		MaxTurns:     cfg.Gateway.MaxTurns,
		SystemPrompt: cfg.Gateway.SystemPrompt,
	}, tools)
	if err != nil {
		L_fatal("failed to create agent provider: %v", err)
	}

	gw := gateway.New(gateway.GatewayConfig{
		BotName:    cfg.Gateway.BotName,
		WorkingDir: cfg.Gateway.WorkingDir,
	}, sec, sessions, approvals, provider, exec)

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.BotToken, gw.HandleApproval)
		if err != nil {
			L_fatal("failed to create telegram bot: %v", err)
		}
		if err := gw.RegisterClient(bot); err != nil {
			L_fatal("failed to register telegram client: %v", err)
		}
	}

	if err := gw.Start(); err != nil {
		L_fatal("failed to start gateway: %v", err)
	}
	L_info("deskmate ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	L_info("shutting down", "signal", sig.String())

	gw.Stop()
	sessions.Stop()
	L_info("deskmate stopped")
}
