package margin

// Usage tracks token consumption reported by a completion endpoint. Zero
// values mean the endpoint did not report usage.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
