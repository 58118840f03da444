package anthropic

import (
	"sort"

	"github.com/rhuss/byok/pkg/api"
)

// contextWindow is shared by every current Claude model.
const contextWindow = 200000

type catalogEntry struct {
	name      string
	maxTokens int
}

var catalog = map[string]catalogEntry{
	"claude-3-7-sonnet-20250219": {name: "Claude 3.7 Sonnet", maxTokens: 64000},
	"claude-3-5-sonnet-20241022": {name: "Claude 3.5 Sonnet", maxTokens: 8192},
	"claude-3-5-haiku-20241022":  {name: "Claude 3.5 Haiku", maxTokens: 8192},
	"claude-3-opus-20240229":     {name: "Claude 3 Opus", maxTokens: 4096},
	"claude-3-haiku-20240307":    {name: "Claude 3 Haiku", maxTokens: 4096},
}

func modelInfo(id, displayName string) api.ModelInfo {
	info := api.ModelInfo{
		ID:                id,
		Provider:          api.ProviderAnthropic,
		Name:              displayName,
		MaxTokens:         8192,
		SupportsStreaming: true,
		ContextWindow:     contextWindow,
	}
	if e, ok := catalog[id]; ok {
		info.MaxTokens = e.maxTokens
		if info.Name == "" {
			info.Name = e.name
		}
	}
	if info.Name == "" {
		info.Name = id
	}
	return info
}

// toModelInfos converts the vendor list, falling back to the static
// catalog when it is empty.
func toModelInfos(data []modelData) []api.ModelInfo {
	var out []api.ModelInfo
	for _, m := range data {
		if m.Type != "" && m.Type != "model" {
			continue
		}
		out = append(out, modelInfo(m.ID, m.DisplayName))
	}
	if len(out) == 0 {
		for id := range catalog {
			out = append(out, modelInfo(id, ""))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out
}
