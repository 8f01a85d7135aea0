package ir

// EngineVersion is the ledgerbox engine version, recorded with every
// logged transaction and reported by the CLI's --version flag.
const EngineVersion = "0.1.0"
