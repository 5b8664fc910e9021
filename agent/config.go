// Loop configuration.
//
// Information Hiding:
// - Default values hidden

package agent

// DefaultMaxSteps is the number of tool round trips a turn may make
// before the model is asked for a final answer without tools.
const DefaultMaxSteps = 5

// Config holds completion loop configuration.
type Config struct {
	// Instruction is the system prompt sent with every model call.
	Instruction string

	// MaxSteps lowers the tool round trip bound. Zero, negative and values
	// above DefaultMaxSteps mean DefaultMaxSteps.
	MaxSteps int
}

// DefaultConfig returns the assistant's loop configuration.
func DefaultConfig() Config {
	return Config{
		Instruction: Instruction,
		MaxSteps:    DefaultMaxSteps,
	}
}

func (c Config) maxSteps() int {
	if c.MaxSteps <= 0 || c.MaxSteps > DefaultMaxSteps {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}
