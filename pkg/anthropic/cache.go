package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 5-minute TTL. Stage prompts share a large static
// prefix, so consecutive stages in one run hit the warm cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
