package proto

// Rebasing bounds. These are behavioral constants; peers rely on them matching.
const (
	MinLeadMs      = 5
	MaxLeadMs      = 2000
	FallbackLeadMs = 50
)

// Rebase turns a sender's absolute start time into a local deadline.
// A start already in the past (or under MinLeadMs away) is pushed to
// now+MinLeadMs. A start more than MaxLeadMs ahead is treated as clock skew
// and scheduled at now+FallbackLeadMs.
func Rebase(now, remote uint32) uint32 {
	rel := int32(remote - now)
	switch {
	case rel < MinLeadMs:
		rel = MinLeadMs
	case rel > MaxLeadMs:
		rel = FallbackLeadMs
	}
	return now + uint32(rel)
}

// RebaseCommand returns a copy of cmd with its start time rebased onto now.
func RebaseCommand(cmd Command, now uint32) Command {
	return cmd.WithStartTime(Rebase(now, cmd.StartTime()))
}
