// Package access decides which platform users may reach an agent and which agent serves them.
package access

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DeniedNotice is sent to senders rejected by an enforced whitelist.
const DeniedNotice = "❌ You are not allowed to use this bot."

// Entry binds one platform id (user or chat) to an agent.
type Entry struct {
	ID    string `yaml:"id"`
	Agent string `yaml:"agent"`
}

type fileFormat struct {
	Entries []Entry `yaml:"entries"`
}

// Whitelist maps user and chat ids to agent ids. When enforced, senders with no
// matching id are refused; otherwise they are served by the unknown agent.
type Whitelist struct {
	mu      sync.RWMutex
	entries map[string]string
	enforce bool
}

// NewWhitelist builds a Whitelist. Blank ids and agents are ignored.
func NewWhitelist(entries map[string]string, enforce bool) *Whitelist {
	w := &Whitelist{entries: make(map[string]string, len(entries)), enforce: enforce}
	for id, agent := range entries {
		w.set(id, agent)
	}
	return w
}

func (w *Whitelist) set(id, agent string) {
	id = strings.TrimSpace(id)
	agent = strings.TrimSpace(agent)
	if id == "" || agent == "" {
		return
	}
	w.entries[id] = agent
}

// Merge adds entries, overriding existing ids.
func (w *Whitelist) Merge(entries []Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		w.set(e.ID, e.Agent)
	}
}

// AgentFor returns the agent bound to the first id that has one.
func (w *Whitelist) AgentFor(ids ...string) (string, bool) {
	if w == nil {
		return "", false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, id := range ids {
		if agent, ok := w.entries[strings.TrimSpace(id)]; ok {
			return agent, true
		}
	}
	return "", false
}

// Allowed reports whether a sender identified by ids may use the bot.
func (w *Whitelist) Allowed(ids ...string) bool {
	if w == nil || !w.enforce {
		return true
	}
	_, ok := w.AgentFor(ids...)
	return ok
}

// Enforced reports whether unknown senders are refused.
func (w *Whitelist) Enforced() bool {
	return w != nil && w.enforce
}

// IDs returns the whitelisted ids in sorted order.
func (w *Whitelist) IDs() []string {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.entries))
	for id := range w.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadFile reads whitelist entries from a YAML file:
//
//	entries:
//	  - id: "123456"
//	    agent: support-agent
//
// A missing file yields no entries.
func LoadFile(path string, logger *slog.Logger) ([]Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if logger != nil {
				logger.Warn("whitelist file does not exist, skipping", slog.String("path", path))
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read whitelist file: %w", err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse whitelist file %s: %w", path, err)
	}
	for i, e := range parsed.Entries {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Agent) == "" {
			return nil, fmt.Errorf("whitelist entry %d: id and agent are required", i)
		}
	}
	if logger != nil {
		logger.Info("loaded whitelist file", slog.String("path", path), slog.Int("entries", len(parsed.Entries)))
	}
	return parsed.Entries, nil
}
