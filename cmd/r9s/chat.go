package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/presenter"
	"github.com/r9s-dev/r9s/pkg/runner"
)

// ChatOptions contains all options for the chat command
type ChatOptions struct {
	agentName    string
	agentVersion string
	vars         []string
	noStream     bool
	maxTokens    int
}

var chatOptions = &ChatOptions{}

func init() {
	chatCmd.Flags().StringVar(&chatOptions.agentName, "agent", "", "Run a stored agent instead of a bare session")
	chatCmd.Flags().StringVar(&chatOptions.agentVersion, "agent-version", "", "Pin a specific agent version")
	chatCmd.Flags().StringArrayVar(&chatOptions.vars, "var", nil, "Template variable as key=value (repeatable)")
	chatCmd.Flags().BoolVar(&chatOptions.noStream, "no-stream", false, "Wait for complete replies instead of streaming")
	chatCmd.Flags().IntVar(&chatOptions.maxTokens, "max-tokens", 0, "Response token cap for bare sessions (0 uses the gateway default)")
}

var chatCmd = &cobra.Command{
	Use:   "chat [INPUT...]",
	Short: "Chat through the r9s Gateway",
	Long: `Starts an interactive chat session against the gateway.

With --agent the session runs a stored agent: its rendered instructions
become the system prompt, its skills are loaded, and every exchange is
recorded in the agent's audit log.

Piped stdin or inline INPUT runs a single exchange and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		runChat(ctx, args, chatOptions)
	},
}

// parseVars turns repeated key=value flags into template variables.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("invalid variable %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// chatSession holds the conversation state for one chat invocation.
// History grows turn by turn; stats accumulate across exchanges.
type chatSession struct {
	client      *gateway.Client
	runner      *runner.Runner
	options     *ChatOptions
	vars        map[string]string
	sessionID   string
	interactive bool
	history     []gateway.Message
	stats       *presenter.UsageStats
}

func newChatSession(client *gateway.Client, options *ChatOptions, vars map[string]string) (*chatSession, error) {
	s := &chatSession{
		client:  client,
		options: options,
		vars:    vars,
		stats:   &presenter.UsageStats{},
	}
	if options.agentName != "" {
		store, err := newAgentStore()
		if err != nil {
			return nil, errors.Wrap(err, "opening agent store")
		}
		skillStore, err := newSkillStore()
		if err != nil {
			return nil, errors.Wrap(err, "opening skill store")
		}
		s.runner = runner.New(store, client,
			runner.WithSkillStore(skillStore),
			runner.WithAuditStore(newAuditStore(store)))
		s.sessionID = uuid.NewString()
	}
	return s, nil
}

func (s *chatSession) exchange(ctx context.Context, input string) error {
	var stream func(string)
	if !s.options.noStream {
		stream = func(delta string) { fmt.Print(delta) }
	}

	if s.interactive {
		fmt.Print("\033[1;36m[r9s]: \033[0m")
	}

	var resp *gateway.ChatResponse
	if s.runner != nil {
		result, err := s.runner.Run(ctx, runner.RunRequest{
			AgentName: s.options.agentName,
			Version:   s.options.agentVersion,
			Input:     input,
			Variables: s.vars,
			History:   s.history,
			SessionID: s.sessionID,
			Stream:    stream,
		})
		if err != nil {
			if s.interactive {
				fmt.Println()
			}
			return err
		}
		resp = result.Response
	} else {
		messages := make([]gateway.Message, 0, len(s.history)+1)
		messages = append(messages, s.history...)
		messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: input})

		req := gateway.ChatRequest{
			Model:     resolveModel(nil),
			Messages:  messages,
			MaxTokens: s.options.maxTokens,
		}
		var err error
		if stream != nil {
			resp, err = s.client.ChatStream(ctx, req, stream)
		} else {
			resp, err = s.client.Chat(ctx, req)
		}
		if err != nil {
			if s.interactive {
				fmt.Println()
			}
			return err
		}
	}

	if stream == nil {
		fmt.Print(resp.Content)
	}
	fmt.Println()

	s.history = append(s.history,
		gateway.Message{Role: gateway.RoleUser, Content: input},
		gateway.Message{Role: gateway.RoleAssistant, Content: resp.Content},
	)
	s.stats.Requests++
	s.stats.InputTokens += int64(resp.Usage.PromptTokens)
	s.stats.OutputTokens += int64(resp.Usage.CompletionTokens)
	return nil
}

func runChat(ctx context.Context, args []string, options *ChatOptions) {
	client, err := newGatewayClient()
	if err != nil {
		presenter.Error(err, "Failed to create gateway client")
		os.Exit(1)
	}

	vars, err := parseVars(options.vars)
	if err != nil {
		presenter.Error(err, "Invalid template variables")
		os.Exit(1)
	}

	session, err := newChatSession(client, options, vars)
	if err != nil {
		presenter.Error(err, "Failed to start chat session")
		os.Exit(1)
	}

	// Check if there's input from stdin (pipe)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if isPipe || len(args) > 0 {
		var input string
		if isPipe {
			stdinBytes, err := io.ReadAll(os.Stdin)
			if err != nil {
				presenter.Error(err, "Error reading from stdin")
				os.Exit(1)
			}
			input = string(stdinBytes)
			if len(args) > 0 {
				input = strings.Join(args, " ") + "\n" + input
			}
		} else {
			input = strings.Join(args, " ")
		}
		if strings.TrimSpace(input) == "" {
			presenter.Error(errors.New("no input provided"), "Nothing to send")
			os.Exit(1)
		}

		if err := session.exchange(ctx, input); err != nil {
			presenter.Error(err, "Gateway request failed")
			os.Exit(1)
		}
		return
	}

	session.interactive = true

	presenter.Section("r9s Chat")
	if options.agentName != "" {
		presenter.Info(fmt.Sprintf("Agent: %s", options.agentName))
	}
	presenter.Info(fmt.Sprintf("Gateway: %s", client.BaseURL()))
	presenter.Info("Type 'exit' or 'quit' to end the session")
	presenter.Separator()

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("\033[1;33m[user]: \033[0m")
		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			presenter.Error(err, "Error reading input")
			continue
		}

		input = strings.TrimSpace(input)

		if input == "exit" || input == "quit" {
			break
		}

		if input == "" {
			continue
		}

		if err := session.exchange(ctx, input); err != nil {
			presenter.Error(err, "Failed to process message")
		}
	}

	presenter.Separator()
	presenter.Stats(session.stats)
	presenter.Success("Exiting chat mode. Goodbye!")
}
