package translator

// Cache-breakpoint placement. The upstream prefix cache performs automatic
// lookback across a bounded window of prior cached blocks, so marking the
// second-to-last user message plus the last message is enough to keep the
// conversation prefix hot as a multi-turn exchange grows. The marker count is
// configuration because the lookback window is an upstream tuning detail.

// ApplyCacheBreakpoints recomputes the cache-control markers on a normalized
// message list in place. Every pre-existing marker is stripped first, which
// makes the operation idempotent. Lists shorter than two messages are too
// short to benefit and are left unmarked.
func ApplyCacheBreakpoints(msgs []Message, maxBreakpoints int) {
	for i := range msgs {
		stripCacheControl(&msgs[i])
	}

	if len(msgs) < 2 || maxBreakpoints <= 0 {
		return
	}

	var userIndices []int
	for i, m := range msgs {
		if m.Role == "user" {
			userIndices = append(userIndices, i)
		}
	}

	var targets []int
	if len(userIndices) >= 2 {
		targets = append(targets, userIndices[len(userIndices)-2])
	} else if len(userIndices) == 1 {
		targets = append(targets, userIndices[0])
	}

	// The last message is always marked; union, not duplicate.
	last := len(msgs) - 1
	if len(targets) == 0 || targets[len(targets)-1] != last {
		targets = append(targets, last)
	}

	// Keep the markers closest to the end of the conversation when the
	// configured budget is smaller than the computed set.
	if len(targets) > maxBreakpoints {
		targets = targets[len(targets)-maxBreakpoints:]
	}

	for _, idx := range targets {
		markMessage(&msgs[idx])
	}
}

// markMessage attaches an ephemeral cache-control annotation to the last
// content block, lifting string content into a single-block array first.
// The marker never carries a time-to-live attribute.
func markMessage(m *Message) {
	blocks := toBlocks(m.Content)
	if len(blocks) == 0 {
		return
	}
	if lastBlock, ok := blocks[len(blocks)-1].(map[string]any); ok {
		lastBlock["cache_control"] = map[string]any{"type": "ephemeral"}
	}
	m.Content = blocks
}

// stripCacheControl removes every cache-control annotation from a message.
func stripCacheControl(m *Message) {
	blocks, ok := m.Content.([]any)
	if !ok {
		return
	}
	for _, block := range blocks {
		if blockMap, isMap := block.(map[string]any); isMap {
			delete(blockMap, "cache_control")
		}
	}
}

// stripCacheTTL drops the time-to-live attribute from a cache-control marker
// while keeping the marker itself.
func stripCacheTTL(block map[string]any) {
	if cacheControl, ok := block["cache_control"].(map[string]any); ok {
		delete(cacheControl, "ttl")
	}
}
