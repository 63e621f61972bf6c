/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"qualichat/pkg/agent"
	"qualichat/pkg/chat"
	"qualichat/pkg/config"
	"qualichat/pkg/logger"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/shop"
	"qualichat/pkg/tool"
)

var (
	messageText string
	streamReply bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message or start an interactive shopping chat",
	Long:  "Loads configuration, connects to the configured model providers, and sends one message or starts an interactive chat against the shopping assistant.",
	Run: func(cmd *cobra.Command, args []string) {
		message := resolveMessage(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		ctx := context.Background()
		service, err := buildChatService(ctx, cfg)
		if err != nil {
			fmt.Printf("failed to initialize assistant: %v\n", err)
			return
		}

		sessionID := session.NewID()
		if message != "" {
			runSingleMessage(ctx, service, sessionID, message)
			return
		}

		runInteractive(ctx, service, sessionID)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&messageText, "message", "m", "", "message text to send")
	chatCmd.Flags().BoolVar(&streamReply, "stream", false, "print the reply as it streams")
}

// buildChatService wires providers, shop tools, and sessions for local use.
func buildChatService(ctx context.Context, cfg *config.Config) (*chat.Service, error) {
	log := slog.Default()

	clients, err := provider.NewClients(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	selector, err := provider.NewSelector(clients, log)
	if err != nil {
		return nil, err
	}
	if err := selector.Probe(ctx); err != nil {
		return nil, fmt.Errorf("no model provider is reachable: %w", err)
	}

	search := shop.NewSearchClient(cfg.Shop, log)
	carts := shop.NewCartService(ctx, cfg.Shop, log)
	users := shop.NewUserService(carts, log)
	payments := shop.NewPaymentProcessor(carts, users, log)

	registry := tool.NewRegistry(time.Duration(cfg.Agent.ToolTimeoutSeconds)*time.Second, log)
	tool.RegisterShopTools(registry, search, carts, users, payments)

	loop := agent.New(selector, registry, nil, cfg.Agent, log)
	return chat.NewService(session.NewStore(log), loop, log), nil
}

func resolveMessage(args []string) string {
	if value := strings.TrimSpace(messageText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return ""
	}

	return value
}

func runSingleMessage(ctx context.Context, service *chat.Service, sessionID string, message string) {
	if streamReply {
		if err := streamTurn(ctx, service, sessionID, message); err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
		return
	}

	envelope, err := service.Chat(ctx, chat.Request{Message: message, SessionID: sessionID})
	if err != nil {
		fmt.Printf("chat failed: %v\n", err)
		return
	}

	fmt.Println(envelope.Message)
}

func runInteractive(ctx context.Context, service *chat.Service, sessionID string) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if isExitCommand(message) {
			return
		}

		if streamReply {
			if err := streamTurn(ctx, service, sessionID, message); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
			continue
		}

		envelope, err := service.Chat(ctx, chat.Request{Message: message, SessionID: sessionID})
		if err != nil {
			fmt.Printf("chat failed: %v\n", err)
			continue
		}

		printAssistantMessage(envelope.Message)
	}
}

// streamTurn prints content fragments as they arrive and reports tool
// activity inline.
func streamTurn(ctx context.Context, service *chat.Service, sessionID string, message string) error {
	started := false
	err := service.ChatStream(ctx, chat.Request{Message: message, SessionID: sessionID}, func(ev chat.Event) error {
		switch ev.Type {
		case chat.EventToolStart:
			fmt.Printf("… %s\n", ev.Tool)
		case chat.EventContent:
			if !started {
				fmt.Print("🛍️ ")
				started = true
			}
			fmt.Print(ev.Content)
		case chat.EventError:
			fmt.Printf("\nerror: %s\n", ev.Error)
		case chat.EventEnd:
			if started {
				fmt.Println()
			}
		}
		return nil
	})
	return err
}

func printAssistantMessage(message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Printf("🛍️ %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
