package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for command and event
// subjects. Commands for one entity always land on the same shard, which
// keeps per-entity delivery ordered across consumer instances.
const ShardCount = 1024

// GetShardID calculates the deterministic shard for an entity id.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// CommandSubject returns the subject a command envelope is published on.
// Format: app.command.{shard}.{entity_type}.{entity_id}
func CommandSubject(entityType, entityID string) string {
	return fmt.Sprintf("app.command.%d.%s.%s", GetShardID(entityID), entityType, entityID)
}

// EventSubject returns the subject a finished event is dispatched on.
// Format: app.event.{shard}.{entity_type}.{entity_id}
func EventSubject(entityType, entityID string) string {
	return fmt.Sprintf("app.event.%d.%s.%s", GetShardID(entityID), entityType, entityID)
}
