package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // not read by Machine; no instruction logging is done
	LimitFPS bool // not read by Machine; the UI layer handles pacing
	// ForceDMG renders CGB-capable ROMs with the DMG pipeline.
	ForceDMG bool
}
