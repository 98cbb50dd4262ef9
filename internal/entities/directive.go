package entities

// BlockDirective asks the host to deny further turns to the visitor.
type BlockDirective struct {
	Reason string
}

// LeadDirective carries visitor data the model decided is a qualified lead.
// Keys are lower case.
type LeadDirective struct {
	Fields map[string]string
}

// ParsedReply is the outcome of scanning a raw model answer for directives.
type ParsedReply struct {
	Block     *BlockDirective
	Lead      *LeadDirective
	CleanText string
}
