package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

// ruleSetDir serves rule set operations from <dataDir>/rulesets. Every
// backend embeds one, so rule files never live in the session store.
type ruleSetDir struct {
	dataDir string
	logger  *slog.Logger
}

func (r ruleSetDir) ruleSetsDir() string {
	return filepath.Join(r.dataDir, "rulesets")
}

func (r ruleSetDir) ListRuleSets(ctx context.Context) ([]storage.RuleSetInfo, error) {
	entries, err := os.ReadDir(r.ruleSetsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []storage.RuleSetInfo{}, nil
		}
		r.logger.Error("Failed to read rule sets directory", "error", err)
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}

	infos := make([]storage.RuleSetInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !rules.IsRuleFile(entry.Name()) {
			continue
		}
		rs, err := rules.Load(filepath.Join(r.ruleSetsDir(), entry.Name()))
		if err != nil {
			r.logger.Warn("Skipping unreadable rule set", "file", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, storage.RuleSetInfo{
			File:     entry.Name(),
			ID:       rs.ID,
			Title:    rs.Title,
			Language: rs.Language,
		})
	}
	slices.SortFunc(infos, func(a, b storage.RuleSetInfo) int { return strings.Compare(a.File, b.File) })
	return infos, nil
}

func (r ruleSetDir) GetRuleSet(ctx context.Context, file string) (*rules.GameRules, error) {
	if file == "" || filepath.Base(file) != file || !rules.IsRuleFile(file) {
		return nil, fmt.Errorf("%w: %q", storage.ErrRuleSetNotFound, file)
	}

	path := filepath.Join(r.ruleSetsDir(), file)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrRuleSetNotFound, file)
		}
		return nil, fmt.Errorf("failed to stat rule set: %w", err)
	}

	rs, err := rules.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}
	return rs, nil
}
