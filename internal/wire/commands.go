package wire

// Command names are stable, protocol-versioned strings exchanged as the
// first element of every request frame (§4.2, §5). They are never
// renamed across protocol versions; a new behaviour gets a new name.
const (
	CommandProtocol               = "protocol"
	CommandSchema                 = "schema"
	CommandQuit                   = "quit"
	CommandExportSnapshot         = "export_snapshot"
	CommandImportSnapshot         = "import_snapshot"
	CommandUnholdSnapshot         = "unhold_snapshot"
	CommandWithoutSnapshot        = "without_snapshot"
	CommandRange                  = "range"
	CommandHash                   = "hash"
	CommandRows                   = "rows"
	CommandIdle                   = "idle"
	CommandTargetBlockSize        = "target_block_size"
	CommandTargetMinimumBlockSize = "target_minimum_block_size"
)

// EarliestProtocolVersion and LatestProtocolVersion bound the versions
// this build of Kitchen Sync can speak. A "protocol" handshake agrees on
// min(fromVersion, LatestProtocolVersion); if that is below
// EarliestProtocolVersion, the session fails before any schema is
// exchanged.
const (
	EarliestProtocolVersion = 7
	LatestProtocolVersion   = 9
)
