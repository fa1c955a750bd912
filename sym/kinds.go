// Package sym defines the closed vocabulary of node and edge kinds.
//
// Node kinds are open-ended strings inside the graph model; this package is the
// boundary where they become tagged variants with a glyph, a palette slot and a
// drill-down behaviour. Unknown kinds resolve to Generic so rendering and
// navigation never dead-end.
package sym

import "strings"

// Kind is a node kind tag.
type Kind string

// Node kinds known to the palette.
const (
	Organization Kind = "organization"
	Team         Kind = "team"
	Person       Kind = "person"
	Payment      Kind = "payment"
	Invoice      Kind = "invoice"
	Contract     Kind = "contract"
	Wallet       Kind = "wallet"
	Decision     Kind = "decision"
	Task         Kind = "task"
	Milestone    Kind = "milestone"
	Approval     Kind = "approval"
	Document     Kind = "document"

	// Properties is the placeholder kind seeded into canvases whose origin kind
	// has no template.
	Properties Kind = "properties"
)

// Category groups kinds for palette sections.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryParty            // who: organizations, teams, people
	CategoryValue            // what moves: payments, invoices, wallets
	CategoryAgreement        // contracts, approvals, documents
	CategoryFlow             // decisions, tasks, milestones
	CategorySystem           // placeholders
)

func (c Category) String() string {
	switch c {
	case CategoryParty:
		return "party"
	case CategoryValue:
		return "value"
	case CategoryAgreement:
		return "agreement"
	case CategoryFlow:
		return "flow"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// Def describes a kind at the rendering boundary.
type Def struct {
	Kind        Kind
	Glyph       string
	Label       string
	Description string
	Category    Category
	Palette     int  // 1-based position in PaletteOrder, 0 = not in palette
	Drillable   bool // single activation opens a sub-canvas
}

// Generic is returned for kinds outside the registry.
var Generic = Def{
	Glyph:       "◇",
	Label:       "Node",
	Description: "Untyped node",
	Category:    CategoryUnknown,
	Drillable:   true,
}

var registry = []Def{
	{Organization, "⌂", "Organization", "Company or legal entity", CategoryParty, 1, true},
	{Team, "⚑", "Team", "Group of people working together", CategoryParty, 2, true},
	{Person, "☺", "Person", "Individual participant", CategoryParty, 3, false},
	{Payment, "¤", "Payment", "Transfer of funds between parties", CategoryValue, 4, true},
	{Invoice, "≣", "Invoice", "Request for payment", CategoryValue, 5, false},
	{Wallet, "◈", "Wallet", "Account or multisig wallet", CategoryValue, 6, true},
	{Contract, "§", "Contract", "Agreement between parties", CategoryAgreement, 7, true},
	{Approval, "✓", "Approval", "Sign-off gate", CategoryAgreement, 8, false},
	{Document, "▤", "Document", "Attached document", CategoryAgreement, 9, false},
	{Decision, "◆", "Decision", "Conditional branch with success and failure paths", CategoryFlow, 10, true},
	{Task, "□", "Task", "Unit of work with assignees", CategoryFlow, 11, false},
	{Milestone, "⚐", "Milestone", "Deadline or delivery checkpoint", CategoryFlow, 12, true},
	{Properties, "⚙", "Properties", "Attributes of the parent node", CategorySystem, 0, false},
}

var byKind map[Kind]Def

// PaletteOrder lists palette kinds in display order.
var PaletteOrder []Kind

func init() {
	byKind = make(map[Kind]Def, len(registry))
	for _, d := range registry {
		byKind[d.Kind] = d
	}
	PaletteOrder = make([]Kind, 0, len(registry))
	for _, d := range registry {
		if d.Palette > 0 {
			PaletteOrder = append(PaletteOrder, d.Kind)
		}
	}
}

// Normalize lower-cases and trims a raw kind string.
func Normalize(raw string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(raw)))
}

// Lookup returns the definition for kind and whether it is a known variant.
func Lookup(kind string) (Def, bool) {
	d, ok := byKind[Normalize(kind)]
	return d, ok
}

// Resolve returns the definition for kind, falling back to Generic with the
// kind recorded so callers can still display it.
func Resolve(kind string) Def {
	if d, ok := Lookup(kind); ok {
		return d
	}
	d := Generic
	d.Kind = Normalize(kind)
	if d.Kind != "" {
		d.Label = titleCase(string(d.Kind))
	}
	return d
}

// Glyph returns the icon glyph for kind.
func Glyph(kind string) string {
	return Resolve(kind).Glyph
}

// Label returns the display name for kind.
func Label(kind string) string {
	return Resolve(kind).Label
}

// All returns every registered definition in registry order.
func All() []Def {
	out := make([]Def, len(registry))
	copy(out, registry)
	return out
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
