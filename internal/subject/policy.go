package subject

// Policy decides when a conversation is re-analyzed.
type Policy struct {
	// Threshold is the number of unseen messages that triggers analysis.
	// Values below 1 act as 1.
	Threshold int
}

// ShouldAnalyze reports whether a conversation with unseen new messages is
// due for analysis. force always analyzes.
func (p Policy) ShouldAnalyze(unseen int, force bool) bool {
	if force {
		return true
	}
	return unseen >= max(p.Threshold, 1)
}
