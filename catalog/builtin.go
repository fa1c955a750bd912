package catalog

// Builtin returns a catalog with the business templates shipped in the binary.
func Builtin() *Catalog {
	return New(BuiltinEntries()...)
}

// BuiltinEntries returns fresh copies of the shipped templates. Organization
// is deliberately absent: drilling into one yields the placeholder canvas.
func BuiltinEntries() []Entry {
	return []Entry{
		{
			Kind:         "payment",
			Name:         "Payment Flow",
			Description:  "Money moving from a payer to a payee after approval",
			DefaultLabel: "Payment",
			SeedNodes: []SeedNode{
				{ID: "payer", Kind: "organization", Label: "Payer", X: 100, Y: 150},
				{ID: "approval", Kind: "approval", Label: "Approval", X: 300, Y: 150},
				{ID: "payee", Kind: "person", Label: "Payee", X: 500, Y: 150},
			},
			SeedEdges: []SeedEdge{
				{Source: "payer", Target: "approval", Kind: "task"},
				{Source: "approval", Target: "payee", Kind: "payment"},
			},
			DisplayFields: []Field{
				{Label: "Amount", Key: "amount", Default: "0"},
				{Label: "Currency", Key: "currency", Default: "USD"},
				{Label: "Due", Key: "deadline"},
				{Label: "Status", Key: "status", Default: "draft"},
			},
			Statuses: []string{"draft", "pending", "approved", "paid"},
		},
		{
			Kind:         "contract",
			Name:         "Contract",
			Description:  "Two parties agreeing to terms",
			DefaultLabel: "Contract",
			SeedNodes: []SeedNode{
				{ID: "party-a", Kind: "organization", Label: "Party A", X: 100, Y: 100},
				{ID: "party-b", Kind: "organization", Label: "Party B", X: 100, Y: 250},
				{ID: "terms", Kind: "document", Label: "Terms", X: 300, Y: 175},
				{ID: "signatures", Kind: "approval", Label: "Signatures", X: 500, Y: 175},
			},
			SeedEdges: []SeedEdge{
				{Source: "party-a", Target: "terms"},
				{Source: "party-b", Target: "terms"},
				{Source: "terms", Target: "signatures", Kind: "task"},
			},
			DisplayFields: []Field{
				{Label: "Parties", Key: "parties"},
				{Label: "Value", Key: "value", Default: "0"},
				{Label: "Status", Key: "status", Default: "draft"},
			},
			Statuses: []string{"draft", "review", "signed", "active", "expired"},
		},
		{
			Kind:         "wallet",
			Name:         "Wallet",
			Description:  "Funds held under a signing policy",
			DefaultLabel: "$user's Wallet",
			SeedNodes: []SeedNode{
				{ID: "signer-1", Kind: "person", Label: "Signer 1", X: 100, Y: 100},
				{ID: "signer-2", Kind: "person", Label: "Signer 2", X: 100, Y: 250},
				{ID: "vault", Kind: "wallet", Label: "Vault", X: 350, Y: 175},
			},
			SeedEdges: []SeedEdge{
				{Source: "signer-1", Target: "vault"},
				{Source: "signer-2", Target: "vault"},
			},
			DisplayFields: []Field{
				{Label: "Type", Key: "wallet_type", Default: "multisig"},
				{Label: "Threshold", Key: "threshold", Default: "2"},
				{Label: "Balance", Key: "balance", Default: "0"},
			},
		},
		{
			Kind:         "decision",
			Name:         "Decision",
			Description:  "A condition branching into success and failure paths",
			DefaultLabel: "Decision",
			SeedNodes: []SeedNode{
				{ID: "condition", Kind: "decision", Label: "Condition", X: 100, Y: 175},
				{ID: "on-success", Kind: "task", Label: "On Success", X: 350, Y: 100},
				{ID: "on-failure", Kind: "task", Label: "On Failure", X: 350, Y: 250},
			},
			SeedEdges: []SeedEdge{
				{Source: "condition", Target: "on-success", Kind: "success"},
				{Source: "condition", Target: "on-failure", Kind: "failure"},
			},
			DisplayFields: []Field{
				{Label: "Condition", Key: "condition"},
				{Label: "Outcome", Key: "outcome", Default: "pending"},
			},
			Statuses: []string{"open", "decided"},
		},
		{
			Kind:         "team",
			Name:         "Team",
			Description:  "People and the work they own",
			DefaultLabel: "$user's Team",
			SeedNodes: []SeedNode{
				{ID: "lead", Kind: "person", Label: "Team Lead", X: 100, Y: 175},
				{ID: "member", Kind: "person", Label: "Member", X: 300, Y: 100},
				{ID: "backlog", Kind: "task", Label: "Backlog", X: 300, Y: 250},
			},
			SeedEdges: []SeedEdge{
				{Source: "lead", Target: "member"},
				{Source: "lead", Target: "backlog", Kind: "task"},
			},
			DisplayFields: []Field{
				{Label: "Lead", Key: "lead"},
				{Label: "Members", Key: "members", Default: "0"},
			},
		},
		{
			Kind:         "milestone",
			Name:         "Milestone",
			Description:  "A dated goal broken into tasks",
			DefaultLabel: "Milestone",
			SeedNodes: []SeedNode{
				{ID: "scope", Kind: "task", Label: "Scope", X: 100, Y: 175},
				{ID: "deliver", Kind: "task", Label: "Deliver", X: 350, Y: 175},
			},
			SeedEdges: []SeedEdge{
				{Source: "scope", Target: "deliver", Kind: "task"},
			},
			DisplayFields: []Field{
				{Label: "Deadline", Key: "deadline"},
				{Label: "Owner", Key: "owner"},
				{Label: "Status", Key: "status", Default: "planned"},
			},
			Statuses: []string{"planned", "in_progress", "done"},
		},
	}
}
