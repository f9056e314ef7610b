package wal

// ============================================================================
// Checksum Calculation
// Responsibility: Calculate and verify CRC32 checksum for WAL events
// ============================================================================

import (
	"hash/crc32"
	"strconv"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// CalculateChecksum calculates the CRC32 checksum for an event.
//
// Algorithm: concatenate the key fields of the event (type, client, stmt,
// seq - excluding Timestamp, which changes across replay/rotation) and run
// CRC32-IEEE over the result.
func CalculateChecksum(eventType EventType, clientID types.ClientID, stmt string, seq uint64) uint32 {
	data := string(eventType) + strconv.FormatUint(uint64(clientID), 10) + stmt + strconv.FormatUint(seq, 10)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum reports whether an event's stored checksum matches what it
// recomputes to.
func VerifyChecksum(event Event) bool {
	expected := CalculateChecksum(event.Type, event.ClientID, event.Stmt, event.Seq)
	return event.Checksum == expected
}
