package app

// MirrorChangedMsg is sent when any mirrored collection changed.
type MirrorChangedMsg struct{}

// RefreshedMsg is sent when a mirror refresh completes.
type RefreshedMsg struct {
	Table string
	Err   error
}

// ActionResultMsg is sent when a CLI command run from the command line
// completes.
type ActionResultMsg struct {
	Output string
	Err    error
}

// MutationResultMsg is sent when an optimistic edit has been written (or
// failed to be). Table names the mirror to refresh on failure.
type MutationResultMsg struct {
	What  string
	Table string
	Err   error
}
