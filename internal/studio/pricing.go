package studio

// PricingConfig holds the tier prices and thresholds. Values are
// configuration constants, not derived.
type PricingConfig struct {
	GenBasePrice int64
	GenMidPrice  int64
	GenTopPrice  int64

	MidPromptLen   int
	MidOutputBytes int
	TopPromptLen   int
	TopOutputBytes int
	TopFileCount   int

	ChatSimplePrice   int64
	ChatDocumentPrice int64
}

// DefaultPricing returns the standard tier table in centi-credits.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		GenBasePrice:      500,
		GenMidPrice:       1000,
		GenTopPrice:       2000,
		MidPromptLen:      500,
		MidOutputBytes:    10_000,
		TopPromptLen:      1000,
		TopOutputBytes:    100_000,
		TopFileCount:      20,
		ChatSimplePrice:   100,
		ChatDocumentPrice: 200,
	}
}

// GenerationCost selects the price tier from the request and response shape.
// Tiering is monotonic: any dimension exceeding a higher threshold overrides
// a lower tier.
func (p PricingConfig) GenerationCost(promptLen, outputBytes, fileCount int) int64 {
	if promptLen > p.TopPromptLen || outputBytes > p.TopOutputBytes || fileCount > p.TopFileCount {
		return p.GenTopPrice
	}
	if promptLen > p.MidPromptLen || outputBytes > p.MidOutputBytes {
		return p.GenMidPrice
	}
	return p.GenBasePrice
}

// ChatCost prices a chat request from its shape alone: attachments present
// selects the document tier, otherwise the simple tier.
func (p PricingConfig) ChatCost(hasAttachments bool) int64 {
	if hasAttachments {
		return p.ChatDocumentPrice
	}
	return p.ChatSimplePrice
}
