package debug

// DEBUG gates the VM's per-instruction trace dump and the compiler's
// end-of-pass chunk disassembly, both logged at logrus.DebugLevel. It costs
// nothing at the default verbosity since logrus itself skips formatting
// below the configured level, but checking it up front also skips building
// the stack-trace string in the hot loop.
var DEBUG = false
