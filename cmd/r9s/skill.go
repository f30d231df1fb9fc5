package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/presenter"
	"github.com/r9s-dev/r9s/pkg/skills"
)

// SkillLintConfig holds configuration for the skill lint command
type SkillLintConfig struct {
	All          bool
	AllowScripts bool
	Watch        bool
	DebounceTime int
}

// NewSkillLintConfig creates a new SkillLintConfig with default values
func NewSkillLintConfig() *SkillLintConfig {
	return &SkillLintConfig{
		DebounceTime: 500,
	}
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage reusable skills",
	Long: `Commands for saving, inspecting, and validating skills.

A skill is a directory holding a SKILL.md manifest plus optional
scripts/, references/, and assets/ subdirectories.`,
}

var skillAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Save a skill manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		content, _ := cmd.Flags().GetString("content")
		runSkillAdd(cmd.Context(), args[0], file, content)
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Run: func(cmd *cobra.Command, args []string) {
		runSkillList(cmd.Context())
	},
}

var skillShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a skill's metadata and document outline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withInstructions, _ := cmd.Flags().GetBool("instructions")
		runSkillShow(cmd.Context(), args[0], withInstructions)
	},
}

var skillRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a skill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noConfirm, _ := cmd.Flags().GetBool("no-confirm")
		runSkillRemove(cmd.Context(), args[0], noConfirm)
	},
}

var skillInstallCmd = &cobra.Command{
	Use:   "install URL",
	Short: "Install a skill from a GitHub repository",
	Long: `Downloads a repository archive and copies one skill directory out of
it. The URL points at the directory holding SKILL.md, for example:

  r9s skill install https://github.com/acme/skills/tree/main/skills/code-review`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		force, _ := cmd.Flags().GetBool("force")
		runSkillInstall(cmd.Context(), args[0], name, force)
	},
}

var skillLintCmd = &cobra.Command{
	Use:   "lint [NAME]",
	Short: "Validate skill directories",
	Long: `Validates skill directories against the manifest rules: frontmatter
shape, name/directory agreement, description length, and the script
policy. With --watch it keeps running and re-validates a skill whenever
its files change.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getSkillLintConfigFromFlags(cmd)
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		runSkillLint(cmd.Context(), name, config)
	},
}

func init() {
	skillAddCmd.Flags().StringP("file", "f", "", "Read the SKILL.md document from a file")
	skillAddCmd.Flags().String("content", "", "Inline SKILL.md document")

	skillShowCmd.Flags().Bool("instructions", false, "Print the full instruction body")

	skillRemoveCmd.Flags().Bool("no-confirm", false, "Skip the confirmation prompt")

	skillInstallCmd.Flags().String("name", "", "Install under a different name")
	skillInstallCmd.Flags().Bool("force", false, "Overwrite an existing skill of the same name")

	defaults := NewSkillLintConfig()
	skillLintCmd.Flags().Bool("all", defaults.All, "Validate every installed skill")
	skillLintCmd.Flags().Bool("allow-scripts", defaults.AllowScripts, "Permit skills that carry a scripts directory")
	skillLintCmd.Flags().BoolP("watch", "w", defaults.Watch, "Keep running and re-validate on file changes")
	skillLintCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")

	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillShowCmd)
	skillCmd.AddCommand(skillRemoveCmd)
	skillCmd.AddCommand(skillInstallCmd)
	skillCmd.AddCommand(skillLintCmd)
	rootCmd.AddCommand(skillCmd)
}

// getSkillLintConfigFromFlags extracts lint configuration from command flags
func getSkillLintConfigFromFlags(cmd *cobra.Command) *SkillLintConfig {
	config := NewSkillLintConfig()

	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
	}
	if allowScripts, err := cmd.Flags().GetBool("allow-scripts"); err == nil {
		config.AllowScripts = allowScripts
	}
	if watch, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = watch
	}
	if debounce, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounce
	}

	return config
}

func runSkillAdd(ctx context.Context, name, file, content string) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			presenter.Error(err, "Failed to read skill file")
			os.Exit(1)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		presenter.Error(errors.New("skill document is required"), "Pass --file or --content")
		os.Exit(1)
	}

	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	path, err := store.Save(ctx, name, content)
	if err != nil {
		presenter.Error(err, "Failed to save skill")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Saved skill %s", name))
	presenter.Info(path)
}

func runSkillList(ctx context.Context) {
	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	names, err := store.List(ctx)
	if err != nil {
		presenter.Error(err, "Failed to list skills")
		os.Exit(1)
	}
	if len(names) == 0 {
		presenter.Info("No skills found.")
		return
	}

	presenter.Section("Skills")
	for _, name := range names {
		skill, err := store.Load(ctx, name, nil)
		if err != nil {
			fmt.Printf("- %s (invalid)\n", name)
			continue
		}
		line := fmt.Sprintf("- %s: %s", name, skill.Description)
		if len(skill.Scripts) > 0 {
			line += fmt.Sprintf(" [%d scripts]", len(skill.Scripts))
		}
		fmt.Println(line)
	}
}

func runSkillShow(ctx context.Context, name string, withInstructions bool) {
	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	skill, err := store.Load(ctx, name, nil)
	if err != nil {
		presenter.Error(err, "Failed to load skill")
		os.Exit(1)
	}

	presenter.Section(fmt.Sprintf("Skill: %s", skill.Name))
	fmt.Printf("- description: %s\n", skill.Description)
	if skill.License != "" {
		fmt.Printf("- license: %s\n", skill.License)
	}
	if skill.Compatibility != "" {
		fmt.Printf("- compatibility: %s\n", skill.Compatibility)
	}
	if len(skill.AllowedTools) > 0 {
		fmt.Printf("- allowed_tools: %s\n", strings.Join(skill.AllowedTools, ", "))
	}
	if len(skill.Scripts) > 0 {
		fmt.Printf("- scripts: %s\n", strings.Join(skill.Scripts, ", "))
	}
	if len(skill.References) > 0 {
		fmt.Printf("- references: %s\n", strings.Join(skill.References, ", "))
	}
	if len(skill.Assets) > 0 {
		fmt.Printf("- assets: %s\n", strings.Join(skill.Assets, ", "))
	}

	manifest, err := store.ManifestPath(name)
	if err == nil {
		if raw, err := os.ReadFile(manifest); err == nil {
			if _, headings, err := skills.Preview(string(raw)); err == nil && len(headings) > 0 {
				fmt.Println()
				presenter.Section("Outline")
				for _, h := range headings {
					fmt.Printf("%s- %s\n", strings.Repeat("  ", h.Level-1), h.Text)
				}
			}
		}
	}

	if withInstructions {
		fmt.Println()
		presenter.Section("Instructions")
		fmt.Println(skill.Instructions)
	}
}

func runSkillRemove(ctx context.Context, name string, noConfirm bool) {
	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	if !noConfirm {
		response := presenter.Prompt(fmt.Sprintf("Remove skill %q?", name), "y", "N")
		if response != "y" && response != "Y" {
			presenter.Info("Removal cancelled.")
			return
		}
	}

	if err := store.Delete(ctx, name); err != nil {
		presenter.Error(err, "Failed to remove skill")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Removed skill %s", name))
}

func runSkillInstall(ctx context.Context, rawURL, name string, force bool) {
	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	var opts []skills.InstallerOption
	if force {
		opts = append(opts, skills.WithForce(true))
	}
	if name != "" {
		opts = append(opts, skills.WithSkillName(name))
	}

	installer := skills.NewInstaller(store, opts...)
	dir, err := installer.Install(ctx, rawURL)
	if err != nil {
		presenter.Error(err, "Failed to install skill")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Installed skill %s", filepath.Base(dir)))
	presenter.Info(dir)
}

func runSkillLint(ctx context.Context, name string, config *SkillLintConfig) {
	store, err := newSkillStore()
	if err != nil {
		presenter.Error(err, "Failed to open skill store")
		os.Exit(1)
	}

	policy := &skills.ScriptPolicy{AllowScripts: config.AllowScripts}

	var names []string
	if name != "" && !config.All {
		names = []string{name}
	} else {
		names, err = store.List(ctx)
		if err != nil {
			presenter.Error(err, "Failed to list skills")
			os.Exit(1)
		}
	}
	if len(names) == 0 && !config.Watch {
		presenter.Info("No skills found.")
		return
	}

	failed := lintSkills(store, policy, names)

	if !config.Watch {
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	// Watch mode keeps running; a failing skill is reported again on
	// its next change rather than aborting the process.
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		presenter.Warning("\nCancellation requested, shutting down...")
		cancel()
	}()

	var target string
	if name != "" && !config.All {
		target = name
	}
	runSkillLintWatch(watchCtx, store, policy, target, time.Duration(config.DebounceTime)*time.Millisecond)
}

// lintSkills validates each named skill and returns how many failed.
func lintSkills(store *skills.LocalStore, policy *skills.ScriptPolicy, names []string) int {
	failed := 0
	for _, name := range names {
		if err := lintSkill(store, policy, name); err != nil {
			presenter.Error(err, fmt.Sprintf("Skill %s failed validation", name))
			failed++
			continue
		}
		presenter.Success(fmt.Sprintf("%s: ok", name))
	}
	return failed
}

func lintSkill(store *skills.LocalStore, policy *skills.ScriptPolicy, name string) error {
	dir, err := store.SkillDir(name)
	if err != nil {
		return err
	}
	_, err = skills.ValidateDirectory(dir, policy)
	return err
}

// skillEvent is a debounced change notification for one skill.
type skillEvent struct {
	Skill string
	Time  time.Time
}

func runSkillLintWatch(ctx context.Context, store *skills.LocalStore, policy *skills.ScriptPolicy, target string, debounce time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		presenter.Error(err, "Failed to create file watcher")
		logger.G(ctx).WithError(err).Fatal("Failed to create file watcher")
	}
	defer watcher.Close()

	base := store.BaseDir()

	events := make(chan skillEvent)
	debouncedEvents := make(chan skillEvent)

	go debounceSkillEvents(ctx, events, debouncedEvents, debounce)

	// Re-validate debounced changes
	go func() {
		for {
			select {
			case event, ok := <-debouncedEvents:
				if !ok {
					return
				}
				presenter.Info(fmt.Sprintf("Change detected: %s", event.Skill))
				logger.G(ctx).WithFields(map[string]interface{}{
					"skill":     event.Skill,
					"timestamp": event.Time,
				}).Debug("Skill change detected")

				manifest, err := store.ManifestPath(event.Skill)
				if err != nil {
					presenter.Error(err, fmt.Sprintf("Skill %s failed validation", event.Skill))
					continue
				}
				if _, err := os.Stat(manifest); os.IsNotExist(err) {
					presenter.Info(fmt.Sprintf("%s: removed", event.Skill))
					continue
				}
				if err := lintSkill(store, policy, event.Skill); err != nil {
					presenter.Error(err, fmt.Sprintf("Skill %s failed validation", event.Skill))
					continue
				}
				presenter.Success(fmt.Sprintf("%s: ok", event.Skill))
			case <-ctx.Done():
				return
			}
		}
	}()

	// Translate raw file events into per-skill events
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				rel, err := filepath.Rel(base, event.Name)
				if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
					continue
				}
				skillName := strings.Split(rel, string(os.PathSeparator))[0]
				if target != "" && skillName != target {
					continue
				}

				// Newly created subdirectories need their own watch
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := watcher.Add(event.Name); err != nil {
							logger.G(ctx).WithError(err).WithField("directory", event.Name).Debug("Failed to watch new directory")
						}
					}
				}

				events <- skillEvent{Skill: skillName, Time: time.Now()}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				presenter.Error(err, "File watcher error")
				logger.G(ctx).WithError(err).Error("Error watching skills")
			case <-ctx.Done():
				return
			}
		}
	}()

	// Watch the store root and every directory under it
	err = filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			logger.G(ctx).WithField("directory", path).Debug("Adding directory to watcher")
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		presenter.Error(err, "Failed to watch skill directories")
		logger.G(ctx).WithError(err).Fatal("Failed to watch skill directories")
	}

	presenter.Info("Watching skills for changes... Press Ctrl+C to stop")
	<-ctx.Done()
}

// debounceSkillEvents collapses rapid changes to the same skill into one
// notification after the delay elapses.
func debounceSkillEvents(ctx context.Context, input <-chan skillEvent, output chan<- skillEvent, delay time.Duration) {
	var pending = make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-input:
			if !ok {
				for _, timer := range pending {
					timer.Stop()
				}
				return
			}
			if timer, exists := pending[event.Skill]; exists {
				timer.Stop()
				delete(pending, event.Skill)
			}

			eventCopy := event
			pending[event.Skill] = time.AfterFunc(delay, func() {
				select {
				case output <- eventCopy:
				case <-ctx.Done():
				}
			})
		case <-ctx.Done():
			for _, timer := range pending {
				timer.Stop()
			}
			return
		}
	}
}
