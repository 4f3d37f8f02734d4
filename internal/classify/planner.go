package classify

// Default token accounting for group planning. Estimates are deliberately
// coarse constants rather than a tokenizer pass; the budget carries enough
// slack to absorb the variance.
const (
	DefaultTokenBudget        = 4000
	DefaultPromptOverhead     = 1000
	DefaultTokensPerParagraph = 200
	DefaultTokensPerResponse  = 30
	DefaultMaxGroupSize       = 12
)

// PlannerConfig bounds how many paragraphs fit in one model request.
type PlannerConfig struct {
	TokenBudget        int
	PromptOverhead     int
	TokensPerParagraph int
	TokensPerResponse  int
	MaxGroupSize       int
}

func (c *PlannerConfig) applyDefaults() {
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.PromptOverhead <= 0 {
		c.PromptOverhead = DefaultPromptOverhead
	}
	if c.TokensPerParagraph <= 0 {
		c.TokensPerParagraph = DefaultTokensPerParagraph
	}
	if c.TokensPerResponse <= 0 {
		c.TokensPerResponse = DefaultTokensPerResponse
	}
	if c.MaxGroupSize <= 0 {
		c.MaxGroupSize = DefaultMaxGroupSize
	}
}

// Group is a planned model request covering a contiguous run of paragraphs.
// Indices refer to the input slice passed to Plan.
type Group struct {
	Indices         []int
	EstimatedTokens int
}

// Plan splits paragraph indices into contiguous groups that each fit the
// token budget. Every index appears in exactly one group, in input order.
// A single paragraph always gets a group even if it alone would exceed the
// budget.
func Plan(texts []string, cfg PlannerConfig) []Group {
	cfg.applyDefaults()
	if len(texts) == 0 {
		return nil
	}

	perParagraph := cfg.TokensPerParagraph + cfg.TokensPerResponse
	maxPerGroup := (cfg.TokenBudget - cfg.PromptOverhead) / perParagraph
	if maxPerGroup > cfg.MaxGroupSize {
		maxPerGroup = cfg.MaxGroupSize
	}
	if maxPerGroup < 1 {
		maxPerGroup = 1
	}

	var groups []Group
	for start := 0; start < len(texts); start += maxPerGroup {
		end := start + maxPerGroup
		if end > len(texts) {
			end = len(texts)
		}
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		groups = append(groups, Group{
			Indices:         indices,
			EstimatedTokens: cfg.PromptOverhead + len(indices)*perParagraph,
		})
	}
	return groups
}

// MaxResponseTokens estimates the completion budget for a group.
func MaxResponseTokens(groupSize int, cfg PlannerConfig) int {
	cfg.applyDefaults()
	return groupSize*cfg.TokensPerResponse + 100
}
