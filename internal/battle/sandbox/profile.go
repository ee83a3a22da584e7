package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/shlex"
)

// sourcePlaceholder marks where the source file path is substituted into a
// profile command line.
const sourcePlaceholder = "{source}"

// LanguageProfile describes how one language is checked and executed.
// Command lines are configured as shell-like strings and parsed once.
type LanguageProfile struct {
	ID string
	// SourceFileName is the name the submitted code is written under inside
	// the per-call workspace, e.g. "main.js".
	SourceFileName string
	// CheckCommand optionally validates syntax before running, e.g.
	// "node --check {source}". A nonzero exit maps to ReasonCompile.
	CheckCommand []string
	// RunCommand executes the program with the test input on stdin,
	// e.g. "node {source}".
	RunCommand []string
	// Env is the complete environment for the child process.
	Env []string
}

// LanguageProfileConfig is the YAML shape of one language profile.
type LanguageProfileConfig struct {
	ID             string   `yaml:"id"`
	SourceFileName string   `yaml:"sourceFileName"`
	CheckCommand   string   `yaml:"checkCommand"`
	RunCommand     string   `yaml:"runCommand"`
	Env            []string `yaml:"env"`
}

// ProfileRepository resolves language identifiers into execution profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, languageID string) (LanguageProfile, error)
}

// LocalProfileRepository keeps profiles parsed from static configuration.
type LocalProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]LanguageProfile
}

// NewLocalProfileRepository parses the configured profiles. Command lines are
// split with shell quoting rules; a missing run command is rejected.
func NewLocalProfileRepository(configs []LanguageProfileConfig) (*LocalProfileRepository, error) {
	profiles := make(map[string]LanguageProfile, len(configs))
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("language profile id is required")
		}
		if cfg.SourceFileName == "" {
			return nil, fmt.Errorf("language %q: sourceFileName is required", cfg.ID)
		}
		runCmd, err := parseCommand(cfg.RunCommand)
		if err != nil {
			return nil, fmt.Errorf("language %q: parse run command: %w", cfg.ID, err)
		}
		if len(runCmd) == 0 {
			return nil, fmt.Errorf("language %q: runCommand is required", cfg.ID)
		}
		var checkCmd []string
		if cfg.CheckCommand != "" {
			checkCmd, err = parseCommand(cfg.CheckCommand)
			if err != nil {
				return nil, fmt.Errorf("language %q: parse check command: %w", cfg.ID, err)
			}
		}
		profiles[cfg.ID] = LanguageProfile{
			ID:             cfg.ID,
			SourceFileName: cfg.SourceFileName,
			CheckCommand:   checkCmd,
			RunCommand:     runCmd,
			Env:            cfg.Env,
		}
	}
	return &LocalProfileRepository{profiles: profiles}, nil
}

// GetProfile returns the profile for a language id.
func (r *LocalProfileRepository) GetProfile(ctx context.Context, languageID string) (LanguageProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[languageID]
	if !ok {
		return LanguageProfile{}, fmt.Errorf("language %q is not configured", languageID)
	}
	return profile, nil
}

func parseCommand(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return shlex.Split(raw)
}

// expandCommand substitutes the source path into a parsed command line.
func expandCommand(cmd []string, sourcePath string) []string {
	out := make([]string, len(cmd))
	for i, arg := range cmd {
		out[i] = strings.ReplaceAll(arg, sourcePlaceholder, sourcePath)
	}
	return out
}
