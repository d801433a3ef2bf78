package types

// Version is the canonical project version.
// The CLI, the event stream contract and the journal records share it.
const Version = "0.3.0"

// ContractVersion is the event stream and journal record contract version.
// Lockstep with Version.
const ContractVersion = Version
