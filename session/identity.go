package session

// Identity supplies the current user's display name for default labels.
type Identity interface {
	DisplayName() string
}

// StaticIdentity is a fixed display name, typically from configuration.
type StaticIdentity string

// DisplayName implements Identity.
func (s StaticIdentity) DisplayName() string { return string(s) }

// Anonymous has no display name.
var Anonymous Identity = StaticIdentity("")
