// Package presets loads named request presets from YAML files and applies
// them to outbound native requests. A preset can contribute an extra system
// block and/or a suffix message placed after the last user message.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// Preset is one named request preset.
type Preset struct {
	// System is an additional system block, appended after the mandatory
	// prefix.
	System string `yaml:"system"`

	// Suffix is a user message inserted immediately after the last user
	// message of the conversation.
	Suffix string `yaml:"suffix"`

	// SuffixThinking replaces Suffix when the request enables extended
	// thinking.
	SuffixThinking string `yaml:"suffix-thinking"`
}

var validPresetName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type cacheEntry struct {
	preset *Preset
	err    error
}

// Cache loads presets from a directory once and memoizes the result,
// including failures, so a missing or broken preset file costs one disk read
// rather than one per request.
type Cache struct {
	dir string

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a preset cache over the given directory. An empty
// directory path disables presets entirely.
func NewCache(dir string) *Cache {
	return &Cache{
		dir:     dir,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the named preset, loading it from <dir>/<name>.yaml on first
// use.
func (c *Cache) Get(name string) (*Preset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[name]; ok {
		return entry.preset, entry.err
	}

	preset, err := c.load(name)
	c.entries[name] = cacheEntry{preset: preset, err: err}
	return preset, err
}

func (c *Cache) load(name string) (*Preset, error) {
	if c.dir == "" {
		return nil, fmt.Errorf("presets are not configured")
	}
	if !validPresetName.MatchString(name) {
		return nil, fmt.Errorf("invalid preset name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q: %w", name, err)
	}

	var preset Preset
	if err = yaml.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("failed to parse preset %q: %w", name, err)
	}
	return &preset, nil
}

// Apply injects the preset into a raw native request body. The system block
// lands after whatever system content is already present; the suffix message
// is inserted right after the last user message (later normalization merges
// adjacent user messages). Applied before the mandatory-prefix pass.
func (p *Preset) Apply(rawJSON []byte) []byte {
	out := rawJSON

	if p.System != "" {
		out = appendSystemText(out, p.System)
	}

	suffix := p.Suffix
	if thinkingEnabled(out) && p.SuffixThinking != "" {
		suffix = p.SuffixThinking
	}
	if suffix != "" {
		out = insertSuffixMessage(out, suffix)
	}
	return out
}

func appendSystemText(rawJSON []byte, text string) []byte {
	block := map[string]any{"type": "text", "text": text}
	systemResult := gjson.GetBytes(rawJSON, "system")

	switch {
	case systemResult.Type == gjson.String:
		system := []any{
			map[string]any{"type": "text", "text": systemResult.String()},
			block,
		}
		out, _ := sjson.SetBytes(rawJSON, "system", system)
		return out
	case systemResult.IsArray():
		out, _ := sjson.SetBytes(rawJSON, "system.-1", block)
		return out
	default:
		out, _ := sjson.SetBytes(rawJSON, "system", []any{block})
		return out
	}
}

func insertSuffixMessage(rawJSON []byte, suffix string) []byte {
	messagesResult := gjson.GetBytes(rawJSON, "messages")
	if !messagesResult.IsArray() {
		return rawJSON
	}

	messages := messagesResult.Array()
	lastUser := -1
	for i, m := range messages {
		if m.Get("role").String() == "user" {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return rawJSON
	}

	rebuilt := make([]any, 0, len(messages)+1)
	for i, m := range messages {
		rebuilt = append(rebuilt, m.Value())
		if i == lastUser {
			rebuilt = append(rebuilt, map[string]any{"role": "user", "content": suffix})
		}
	}
	out, _ := sjson.SetBytes(rawJSON, "messages", rebuilt)
	return out
}

func thinkingEnabled(rawJSON []byte) bool {
	return gjson.GetBytes(rawJSON, "thinking.type").String() == "enabled"
}
