package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/presenter"
)

// AgentCreateConfig holds configuration for the agent create command
type AgentCreateConfig struct {
	Description      string
	Instructions     string
	InstructionsFile string
	Model            string
	Provider         string
	Skills           []string
	Variables        []string
	Files            []string
	Params           []string
	Reason           string
}

// AgentUpdateConfig holds configuration for the agent update command
type AgentUpdateConfig struct {
	Instructions     string
	InstructionsFile string
	Model            string
	Provider         string
	Skills           []string
	Variables        []string
	Files            []string
	Params           []string
	Bump             string
	Reason           string
}

// AgentAuditConfig holds configuration for the agent audit command
type AgentAuditConfig struct {
	RequestID string
	Last      int
	Limit     int
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage versioned agent configurations",
	Long: `Commands for creating, inspecting, and evolving agents.

Agents are stored on the local filesystem as an append-only version
history with a movable current-version pointer.`,
}

var agentCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentCreate(cmd.Context(), args[0], getAgentCreateConfigFromFlags(cmd))
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	Run: func(cmd *cobra.Command, args []string) {
		runAgentList(cmd.Context())
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show an agent and its current version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		version, _ := cmd.Flags().GetString("version")
		withInstructions, _ := cmd.Flags().GetBool("instructions")
		runAgentShow(cmd.Context(), args[0], version, withInstructions)
	},
}

var agentUpdateCmd = &cobra.Command{
	Use:   "update NAME",
	Short: "Create a new version of an agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentUpdate(cmd.Context(), args[0], getAgentUpdateConfigFromFlags(cmd))
	},
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an agent and its entire version history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noConfirm, _ := cmd.Flags().GetBool("no-confirm")
		runAgentDelete(cmd.Context(), args[0], noConfirm)
	},
}

var agentVersionsCmd = &cobra.Command{
	Use:   "versions NAME",
	Short: "List an agent's version history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentVersions(cmd.Context(), args[0])
	},
}

var agentRollbackCmd = &cobra.Command{
	Use:   "rollback NAME VERSION",
	Short: "Point an agent back at an earlier version",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentRollback(cmd.Context(), args[0], args[1])
	},
}

var agentApproveCmd = &cobra.Command{
	Use:   "approve NAME VERSION",
	Short: "Mark a version as approved",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentSetStatus(cmd.Context(), args[0], args[1], "approve")
	},
}

var agentDeprecateCmd = &cobra.Command{
	Use:   "deprecate NAME VERSION",
	Short: "Mark a version as deprecated",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentSetStatus(cmd.Context(), args[0], args[1], "deprecate")
	},
}

var agentDiffCmd = &cobra.Command{
	Use:   "diff NAME FROM TO",
	Short: "Diff the instructions of two versions",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentDiff(cmd.Context(), args[0], args[1], args[2])
	},
}

var agentAuditCmd = &cobra.Command{
	Use:   "audit NAME",
	Short: "Show an agent's execution history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentAudit(cmd.Context(), args[0], getAgentAuditConfigFromFlags(cmd))
	},
}

var agentExportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Export an agent and all its versions as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		runAgentExport(cmd.Context(), args[0], output)
	},
}

func init() {
	agentCreateCmd.Flags().String("description", "", "Agent description")
	agentCreateCmd.Flags().StringP("instructions", "i", "", "Instruction template (supports {{variable}} placeholders)")
	agentCreateCmd.Flags().StringP("instructions-file", "f", "", "Read the instruction template from a file")
	agentCreateCmd.Flags().String("model", "", "Model the agent runs on")
	agentCreateCmd.Flags().String("provider", "", "Provider routed through the gateway (default r9s)")
	agentCreateCmd.Flags().StringArray("skill", nil, "Skill the agent references (repeatable)")
	agentCreateCmd.Flags().StringArray("var", nil, "Declared template variable (repeatable)")
	agentCreateCmd.Flags().StringArray("file", nil, "Attached file glob, ** supported (repeatable)")
	agentCreateCmd.Flags().StringArray("param", nil, "Sampling param as key=value (repeatable)")
	agentCreateCmd.Flags().String("reason", "", "Change reason recorded on the version")

	agentShowCmd.Flags().String("version", "", "Show a specific version instead of the current one")
	agentShowCmd.Flags().Bool("instructions", false, "Print the full instruction template")

	agentUpdateCmd.Flags().StringP("instructions", "i", "", "New instruction template")
	agentUpdateCmd.Flags().StringP("instructions-file", "f", "", "Read the new instruction template from a file")
	agentUpdateCmd.Flags().String("model", "", "New model")
	agentUpdateCmd.Flags().String("provider", "", "New provider")
	agentUpdateCmd.Flags().StringArray("skill", nil, "Replace the skill list (repeatable)")
	agentUpdateCmd.Flags().StringArray("var", nil, "Replace the declared variables (repeatable)")
	agentUpdateCmd.Flags().StringArray("file", nil, "Replace attached files, glob expanded (repeatable)")
	agentUpdateCmd.Flags().StringArray("param", nil, "Replace sampling params as key=value (repeatable)")
	agentUpdateCmd.Flags().String("bump", "patch", "Version bump (patch, minor, major)")
	agentUpdateCmd.Flags().String("reason", "", "Change reason recorded on the version")

	agentDeleteCmd.Flags().Bool("no-confirm", false, "Skip the confirmation prompt")

	agentAuditCmd.Flags().String("request-id", "", "Filter by gateway request ID")
	agentAuditCmd.Flags().Int("last", 0, "Show only the last N executions")
	agentAuditCmd.Flags().Int("limit", 0, "Cap the number of executions shown")

	agentExportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentUpdateCmd)
	agentCmd.AddCommand(agentDeleteCmd)
	agentCmd.AddCommand(agentVersionsCmd)
	agentCmd.AddCommand(agentRollbackCmd)
	agentCmd.AddCommand(agentApproveCmd)
	agentCmd.AddCommand(agentDeprecateCmd)
	agentCmd.AddCommand(agentDiffCmd)
	agentCmd.AddCommand(agentAuditCmd)
	agentCmd.AddCommand(agentExportCmd)
	rootCmd.AddCommand(agentCmd)
}

func getAgentCreateConfigFromFlags(cmd *cobra.Command) *AgentCreateConfig {
	config := &AgentCreateConfig{}
	config.Description, _ = cmd.Flags().GetString("description")
	config.Instructions, _ = cmd.Flags().GetString("instructions")
	config.InstructionsFile, _ = cmd.Flags().GetString("instructions-file")
	config.Model, _ = cmd.Flags().GetString("model")
	config.Provider, _ = cmd.Flags().GetString("provider")
	config.Skills, _ = cmd.Flags().GetStringArray("skill")
	config.Variables, _ = cmd.Flags().GetStringArray("var")
	config.Files, _ = cmd.Flags().GetStringArray("file")
	config.Params, _ = cmd.Flags().GetStringArray("param")
	config.Reason, _ = cmd.Flags().GetString("reason")
	return config
}

func getAgentUpdateConfigFromFlags(cmd *cobra.Command) *AgentUpdateConfig {
	config := &AgentUpdateConfig{}
	config.Instructions, _ = cmd.Flags().GetString("instructions")
	config.InstructionsFile, _ = cmd.Flags().GetString("instructions-file")
	config.Model, _ = cmd.Flags().GetString("model")
	config.Provider, _ = cmd.Flags().GetString("provider")
	config.Skills, _ = cmd.Flags().GetStringArray("skill")
	config.Variables, _ = cmd.Flags().GetStringArray("var")
	config.Files, _ = cmd.Flags().GetStringArray("file")
	config.Params, _ = cmd.Flags().GetStringArray("param")
	config.Bump, _ = cmd.Flags().GetString("bump")
	config.Reason, _ = cmd.Flags().GetString("reason")
	return config
}

func getAgentAuditConfigFromFlags(cmd *cobra.Command) *AgentAuditConfig {
	config := &AgentAuditConfig{}
	config.RequestID, _ = cmd.Flags().GetString("request-id")
	config.Last, _ = cmd.Flags().GetInt("last")
	config.Limit, _ = cmd.Flags().GetInt("limit")
	return config
}

// resolveInstructions loads the template from the file flag when given,
// otherwise returns the inline flag value.
func resolveInstructions(inline, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrap(err, "reading instructions file")
		}
		return string(data), nil
	}
	return inline, nil
}

// parseParams turns repeated key=value flags into a sampling param map.
// Values are JSON-decoded when possible so numbers and booleans keep
// their types.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("invalid param %q: expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

// expandFileGlobs expands ** glob patterns into attached file entries.
// Patterns that match nothing are an error so a typo does not silently
// attach an empty set.
func expandFileGlobs(patterns []string) ([]map[string]any, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid file pattern %q", pattern)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("file pattern %q matched nothing", pattern)
		}
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				paths = append(paths, match)
			}
		}
	}
	sort.Strings(paths)
	files := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		files = append(files, map[string]any{"path": path})
	}
	return files, nil
}

func runAgentCreate(ctx context.Context, name string, config *AgentCreateConfig) {
	instructions, err := resolveInstructions(config.Instructions, config.InstructionsFile)
	if err != nil {
		presenter.Error(err, "Failed to read instructions")
		os.Exit(1)
	}
	if strings.TrimSpace(instructions) == "" {
		presenter.Error(errors.New("instructions are required"), "Pass --instructions or --instructions-file")
		os.Exit(1)
	}
	params, err := parseParams(config.Params)
	if err != nil {
		presenter.Error(err, "Invalid sampling params")
		os.Exit(1)
	}
	files, err := expandFileGlobs(config.Files)
	if err != nil {
		presenter.Error(err, "Failed to expand file patterns")
		os.Exit(1)
	}

	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	agent, err := store.Create(ctx, name, agents.CreateRequest{
		Description:  config.Description,
		Instructions: instructions,
		Model:        config.Model,
		Provider:     config.Provider,
		Skills:       config.Skills,
		Variables:    config.Variables,
		Files:        files,
		ModelParams:  params,
		ChangeReason: config.Reason,
	})
	if err != nil {
		presenter.Error(err, "Failed to create agent")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Created agent %s (version %s)", agent.Name, agent.CurrentVersion))
}

func runAgentList(ctx context.Context) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	list, err := store.ListAgents(ctx)
	if err != nil {
		presenter.Error(err, "Failed to list agents")
		os.Exit(1)
	}
	if len(list) == 0 {
		presenter.Info("No agents found.")
		return
	}

	presenter.Section("Agents")
	for _, agent := range list {
		line := fmt.Sprintf("- %s (current: %s)", agent.Name, agent.CurrentVersion)
		if agent.Description != "" {
			line += " " + agent.Description
		}
		fmt.Println(line)
	}
}

func runAgentShow(ctx context.Context, name, versionArg string, withInstructions bool) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	agent, err := store.GetAgent(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to load agent")
		os.Exit(1)
	}
	version := versionArg
	if version == "" {
		version = agent.CurrentVersion
	}
	v, err := store.GetVersion(ctx, name, version)
	if err != nil {
		presenter.Error(err, "Failed to load version")
		os.Exit(1)
	}

	presenter.Section(fmt.Sprintf("Agent: %s", agent.Name))
	fmt.Printf("- id: %s\n", agent.ID)
	if agent.Description != "" {
		fmt.Printf("- description: %s\n", agent.Description)
	}
	fmt.Printf("- current_version: %s\n", agent.CurrentVersion)
	fmt.Printf("- created_at: %s\n", agent.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("- updated_at: %s\n", agent.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("- version: %s (%s)\n", v.Version, v.Status)
	if v.Model != "" {
		fmt.Printf("- model: %s\n", v.Model)
	}
	if v.Provider != "" {
		fmt.Printf("- provider: %s\n", v.Provider)
	}
	if len(v.Variables) > 0 {
		fmt.Printf("- variables: %s\n", strings.Join(v.Variables, ", "))
	}
	if len(v.Skills) > 0 {
		fmt.Printf("- skills: %s\n", strings.Join(v.Skills, ", "))
	}
	if len(v.Files) > 0 {
		fmt.Printf("- files: %d attached\n", len(v.Files))
	}
	if len(v.ModelParams) > 0 {
		params, _ := json.Marshal(v.ModelParams)
		fmt.Printf("- model_params: %s\n", params)
	}
	fmt.Printf("- content_hash: %s\n", v.ContentHash)

	if withInstructions {
		fmt.Println()
		presenter.Section("Instructions")
		fmt.Println(v.Instructions)
	}
}

func runAgentUpdate(ctx context.Context, name string, config *AgentUpdateConfig) {
	instructions, err := resolveInstructions(config.Instructions, config.InstructionsFile)
	if err != nil {
		presenter.Error(err, "Failed to read instructions")
		os.Exit(1)
	}
	params, err := parseParams(config.Params)
	if err != nil {
		presenter.Error(err, "Invalid sampling params")
		os.Exit(1)
	}

	var opts []agents.UpdateOption
	if instructions != "" {
		opts = append(opts, agents.WithInstructions(instructions))
	}
	if config.Model != "" {
		opts = append(opts, agents.WithModel(config.Model))
	}
	if config.Provider != "" {
		opts = append(opts, agents.WithProvider(config.Provider))
	}
	if len(config.Skills) > 0 {
		opts = append(opts, agents.WithSkills(config.Skills))
	}
	if len(config.Variables) > 0 {
		opts = append(opts, agents.WithVariables(config.Variables))
	}
	if len(config.Files) > 0 {
		files, err := expandFileGlobs(config.Files)
		if err != nil {
			presenter.Error(err, "Failed to expand file patterns")
			os.Exit(1)
		}
		opts = append(opts, agents.WithFiles(files))
	}
	if params != nil {
		opts = append(opts, agents.WithModelParams(params))
	}
	if config.Bump != "" {
		opts = append(opts, agents.WithBump(config.Bump))
	}
	if config.Reason != "" {
		opts = append(opts, agents.WithChangeReason(config.Reason))
	}

	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	version, err := store.Update(ctx, name, opts...)
	if err != nil {
		presenter.Error(err, "Failed to update agent")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Updated agent %s -> %s", name, version.Version))
}

func runAgentDelete(ctx context.Context, name string, noConfirm bool) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	if !noConfirm {
		response := presenter.Prompt(fmt.Sprintf("Delete agent %q and its entire version history?", name), "y", "N")
		if response != "y" && response != "Y" {
			presenter.Info("Deletion cancelled.")
			return
		}
	}

	if err := store.Delete(ctx, name); err != nil {
		presenter.Error(err, "Failed to delete agent")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Deleted agent %s", name))
}

func runAgentVersions(ctx context.Context, name string) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	versions, err := store.ListVersions(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to list versions")
		os.Exit(1)
	}
	if len(versions) == 0 {
		presenter.Info("No versions found.")
		return
	}

	agent, err := store.GetAgent(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to load agent")
		os.Exit(1)
	}

	presenter.Section(fmt.Sprintf("Versions: %s", name))
	for _, v := range versions {
		line := fmt.Sprintf("- %s (%s)", v.Version, v.Status)
		if v.ParentVersion != "" {
			line += fmt.Sprintf(" parent=%s", v.ParentVersion)
		}
		if v.ChangeReason != "" {
			line += fmt.Sprintf(" %q", v.ChangeReason)
		}
		if v.Version == agent.CurrentVersion {
			line += " <- current"
		}
		fmt.Println(line)
	}
}

func runAgentRollback(ctx context.Context, name, version string) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	agent, err := store.Rollback(ctx, name, version)
	if err != nil {
		presenter.Error(err, "Failed to roll back")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Rolled back %s to %s", name, agent.CurrentVersion))
}

func runAgentSetStatus(ctx context.Context, name, version, action string) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	switch action {
	case "approve":
		if _, err := store.ApproveVersion(ctx, name, version); err != nil {
			presenter.Error(err, "Failed to approve version")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Approved %s %s", name, version))
	case "deprecate":
		if _, err := store.DeprecateVersion(ctx, name, version); err != nil {
			presenter.Error(err, "Failed to deprecate version")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Deprecated %s %s", name, version))
	}
}

func runAgentDiff(ctx context.Context, name, from, to string) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	diff, err := store.DiffVersions(ctx, name, from, to)
	if err != nil {
		presenter.Error(err, "Failed to diff versions")
		os.Exit(1)
	}
	if diff == "" {
		presenter.Info("Instructions are identical.")
		return
	}
	fmt.Print(diff)
}

func runAgentAudit(ctx context.Context, name string, config *AgentAuditConfig) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}
	audit := newAuditStore(store)

	records, err := audit.Query(ctx, agents.QueryFilter{
		Agent:     name,
		RequestID: config.RequestID,
		Last:      config.Last,
		Limit:     config.Limit,
	})
	if err != nil {
		presenter.Error(err, "Failed to query audit log")
		os.Exit(1)
	}
	if len(records) == 0 {
		presenter.Info("No audit entries found.")
		return
	}

	presenter.Section(fmt.Sprintf("Audit: %s", name))
	for _, r := range records {
		fmt.Printf("- %s %s %s input=%d output=%d\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.RequestID, r.AgentVersion,
			r.InputTokens, r.OutputTokens)
	}
}

func runAgentExport(ctx context.Context, name, output string) {
	store, err := newAgentStore()
	if err != nil {
		presenter.Error(err, "Failed to open agent store")
		os.Exit(1)
	}

	agent, err := store.GetAgent(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to load agent")
		os.Exit(1)
	}
	versions, err := store.ListVersions(ctx, name)
	if err != nil {
		presenter.Error(err, "Failed to list versions")
		os.Exit(1)
	}

	type exportedVersion struct {
		Version      string         `json:"version"`
		Status       string         `json:"status"`
		Model        string         `json:"model,omitempty"`
		Provider     string         `json:"provider,omitempty"`
		Instructions string         `json:"instructions"`
		Variables    []string       `json:"variables,omitempty"`
		Skills       []string       `json:"skills,omitempty"`
		ModelParams  map[string]any `json:"model_params,omitempty"`
		CreatedAt    string         `json:"created_at"`
		CreatedBy    string         `json:"created_by,omitempty"`
		ChangeReason string         `json:"change_reason,omitempty"`
		ParentVer    string         `json:"parent_version,omitempty"`
		ContentHash  string         `json:"content_hash"`
	}
	payload := map[string]any{
		"agent": map[string]any{
			"id":              agent.ID,
			"name":            agent.Name,
			"description":     agent.Description,
			"current_version": agent.CurrentVersion,
			"created_at":      agent.CreatedAt,
			"updated_at":      agent.UpdatedAt,
		},
	}
	exported := make([]exportedVersion, 0, len(versions))
	for _, v := range versions {
		exported = append(exported, exportedVersion{
			Version:      v.Version,
			Status:       v.Status,
			Model:        v.Model,
			Provider:     v.Provider,
			Instructions: v.Instructions,
			Variables:    v.Variables,
			Skills:       v.Skills,
			ModelParams:  v.ModelParams,
			CreatedAt:    v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			CreatedBy:    v.CreatedBy,
			ChangeReason: v.ChangeReason,
			ParentVer:    v.ParentVersion,
			ContentHash:  v.ContentHash,
		})
	}
	payload["versions"] = exported

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to encode export")
		os.Exit(1)
	}

	if output == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(output, append(data, '\n'), 0644); err != nil {
		presenter.Error(err, "Failed to write export file")
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("Exported %s to %s", name, output))
}
