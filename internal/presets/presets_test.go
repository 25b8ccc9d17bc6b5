package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writePreset(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644))
}

func TestCache_GetAndMemoize(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "coder", "system: You write code.\nsuffix: Only output code.\n")

	cache := NewCache(dir)
	preset, err := cache.Get("coder")
	require.NoError(t, err)
	require.Equal(t, "You write code.", preset.System)
	require.Equal(t, "Only output code.", preset.Suffix)

	// A later change to the file is not observed; the first load sticks.
	writePreset(t, dir, "coder", "system: Changed.\n")
	preset, err = cache.Get("coder")
	require.NoError(t, err)
	require.Equal(t, "You write code.", preset.System)
}

func TestCache_FailureMemoized(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)

	_, err := cache.Get("missing")
	require.Error(t, err)

	// Creating the file afterwards does not resurrect the name.
	writePreset(t, dir, "missing", "suffix: late\n")
	_, err = cache.Get("missing")
	require.Error(t, err)
}

func TestCache_RejectsUnsafeNames(t *testing.T) {
	cache := NewCache(t.TempDir())
	for _, name := range []string{"../escape", "a/b", "", "name.yaml", "sp ace"} {
		_, err := cache.Get(name)
		require.Error(t, err, "name %q", name)
	}
}

func TestCache_DisabledWithoutDirectory(t *testing.T) {
	cache := NewCache("")
	_, err := cache.Get("anything")
	require.Error(t, err)
}

func TestCache_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "broken", "system: [unclosed\n")
	_, err := NewCache(dir).Get("broken")
	require.Error(t, err)
}

func TestPreset_ApplySystemAndSuffix(t *testing.T) {
	preset := &Preset{System: "Stay in character.", Suffix: "Answer as the preset demands."}
	in := `{"system":"existing","messages":[
		{"role":"user","content":"q1"},
		{"role":"assistant","content":"a1"},
		{"role":"user","content":"q2"}
	]}`
	out := preset.Apply([]byte(in))

	system := gjson.GetBytes(out, "system").Array()
	require.Len(t, system, 2)
	require.Equal(t, "existing", system[0].Get("text").String())
	require.Equal(t, "Stay in character.", system[1].Get("text").String())

	messages := gjson.GetBytes(out, "messages").Array()
	require.Len(t, messages, 4)
	require.Equal(t, "q2", messages[2].Get("content").String())
	require.Equal(t, "user", messages[3].Get("role").String())
	require.Equal(t, "Answer as the preset demands.", messages[3].Get("content").String())
}

func TestPreset_SuffixAfterLastUserNotEnd(t *testing.T) {
	preset := &Preset{Suffix: "suffix"}
	in := `{"messages":[
		{"role":"user","content":"q"},
		{"role":"assistant","content":"a"}
	]}`
	out := preset.Apply([]byte(in))

	messages := gjson.GetBytes(out, "messages").Array()
	require.Len(t, messages, 3)
	require.Equal(t, "suffix", messages[1].Get("content").String())
	require.Equal(t, "a", messages[2].Get("content").String())
}

func TestPreset_ThinkingSelectsAlternateSuffix(t *testing.T) {
	preset := &Preset{Suffix: "plain", SuffixThinking: "reason step by step"}

	out := preset.Apply([]byte(`{"messages":[{"role":"user","content":"q"}],"thinking":{"type":"enabled","budget_tokens":1024}}`))
	require.Equal(t, "reason step by step", gjson.GetBytes(out, "messages.1.content").String())

	out = preset.Apply([]byte(`{"messages":[{"role":"user","content":"q"}]}`))
	require.Equal(t, "plain", gjson.GetBytes(out, "messages.1.content").String())

	out = preset.Apply([]byte(`{"messages":[{"role":"user","content":"q"}],"thinking":{"type":"disabled"}}`))
	require.Equal(t, "plain", gjson.GetBytes(out, "messages.1.content").String())
}

func TestPreset_ApplyNoUserMessages(t *testing.T) {
	preset := &Preset{Suffix: "suffix"}
	in := `{"messages":[{"role":"assistant","content":"a"}]}`
	out := preset.Apply([]byte(in))
	require.Len(t, gjson.GetBytes(out, "messages").Array(), 1)
}

func TestPreset_EmptyPresetIsNoop(t *testing.T) {
	preset := &Preset{}
	in := `{"messages":[{"role":"user","content":"q"}],"system":"s"}`
	out := preset.Apply([]byte(in))
	require.JSONEq(t, in, string(out))
}

func TestPreset_SystemAppendedToBlockArray(t *testing.T) {
	preset := &Preset{System: "added"}
	in := `{"messages":[],"system":[{"type":"text","text":"first"}]}`
	out := preset.Apply([]byte(in))

	system := gjson.GetBytes(out, "system").Array()
	require.Len(t, system, 2)
	require.Equal(t, "added", system[1].Get("text").String())
}
