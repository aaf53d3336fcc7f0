package domain

// GenerationMethod selects how the allocator produces candidate shortcodes.
type GenerationMethod string

const (
	MethodRandom     GenerationMethod = "random"
	MethodSequential GenerationMethod = "sequential"
	MethodMemorable  GenerationMethod = "memorable"
	MethodURLBased   GenerationMethod = "url_based"
)

const (
	DefaultShortcodeLength = 6
	MinShortcodeLength     = 3
	MaxShortcodeLength     = 50
	MaxAllocationAttempts  = 100
)
