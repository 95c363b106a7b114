package factorgraph

// MessagePassingMode selects which edges take part in an iteration.
type MessagePassingMode int

const (
	// Internal passes messages between nodes of the same graph.
	Internal MessagePassingMode = iota
	// External passes messages between nodes of different graphs.
	External
)

func (m MessagePassingMode) String() string {
	if m == External {
		return "external"
	}
	return "internal"
}

// MessageCount counts non-empty messages.
type MessageCount struct {
	Sent     int
	Received int
}

// Add returns the element-wise sum.
func (c MessageCount) Add(other MessageCount) MessageCount {
	return MessageCount{Sent: c.Sent + other.Sent, Received: c.Received + other.Received}
}

// MessageCounts splits message counts by passing mode.
type MessageCounts struct {
	Internal MessageCount
	External MessageCount
}

// Add returns the element-wise sum.
func (c MessageCounts) Add(other MessageCounts) MessageCounts {
	return MessageCounts{
		Internal: c.Internal.Add(other.Internal),
		External: c.External.Add(other.External),
	}
}

// Total sums both modes.
func (c MessageCounts) Total() MessageCount {
	return c.Internal.Add(c.External)
}

func (c *MessageCounts) of(mode MessagePassingMode) *MessageCount {
	if mode == External {
		return &c.External
	}
	return &c.Internal
}

func modeBetween(a, b GraphID) MessagePassingMode {
	if a == b {
		return Internal
	}
	return External
}
