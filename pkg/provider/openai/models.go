package openai

import (
	"sort"
	"strings"

	"github.com/rhuss/byok/pkg/api"
)

// catalogEntry holds limits the models endpoint does not report.
type catalogEntry struct {
	name          string
	maxTokens     int
	contextWindow int
}

var catalog = map[string]catalogEntry{
	"gpt-4o":        {name: "GPT-4o", maxTokens: 16384, contextWindow: 128000},
	"gpt-4o-mini":   {name: "GPT-4o mini", maxTokens: 16384, contextWindow: 128000},
	"gpt-4.1":       {name: "GPT-4.1", maxTokens: 32768, contextWindow: 1047576},
	"gpt-4.1-mini":  {name: "GPT-4.1 mini", maxTokens: 32768, contextWindow: 1047576},
	"gpt-4-turbo":   {name: "GPT-4 Turbo", maxTokens: 4096, contextWindow: 128000},
	"gpt-3.5-turbo": {name: "GPT-3.5 Turbo", maxTokens: 4096, contextWindow: 16385},
	"o3-mini":       {name: "o3-mini", maxTokens: 100000, contextWindow: 200000},
}

// chatPrefixes select chat-capable families from /v1/models.
var chatPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}

// excludedMarkers filter out non-chat variants sharing a chat prefix.
var excludedMarkers = []string{"audio", "realtime", "transcribe", "tts", "embedding", "image", "search", "instruct"}

func isChatModel(id string) bool {
	for _, m := range excludedMarkers {
		if strings.Contains(id, m) {
			return false
		}
	}
	for _, p := range chatPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

func modelInfo(id string) api.ModelInfo {
	info := api.ModelInfo{
		ID:                id,
		Provider:          api.ProviderOpenAI,
		Name:              id,
		MaxTokens:         4096,
		SupportsStreaming: true,
		ContextWindow:     128000,
	}
	if e, ok := catalog[id]; ok {
		info.Name = e.name
		info.MaxTokens = e.maxTokens
		info.ContextWindow = e.contextWindow
	}
	return info
}

// toModelInfos filters the vendor list to chat models. When nothing
// usable is returned the static catalog is used instead.
func toModelInfos(data []modelData) []api.ModelInfo {
	var out []api.ModelInfo
	for _, m := range data {
		if isChatModel(m.ID) {
			out = append(out, modelInfo(m.ID))
		}
	}
	if len(out) == 0 {
		for id := range catalog {
			out = append(out, modelInfo(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
