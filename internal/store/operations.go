// ABOUTME: Named parameterized operations prepared on every pooled connection
// ABOUTME: Written with '?' placeholders and rebound per dialect by the pool

package store

// Operation names
const (
	OpAddNode            = "add_node"
	OpUpdateNodeKey      = "update_node_key"
	OpTouchNode          = "touch_node"
	OpValidateNode       = "validate_node"
	OpValidateNodeKey    = "validate_node_key"
	OpListNodes          = "list_nodes"
	OpValidateController = "validate_controller"
	OpAddController      = "add_controller"
	OpSetCommand         = "set_command"
	OpGetCommand         = "get_command"
	OpMarkCommandAsSent  = "mark_command_as_sent"
	OpSetResponse        = "set_response"
	OpGetResponse        = "get_response"
)

var operations = map[string]string{
	OpAddNode: `INSERT INTO nodes (
			host_identifier, node_key, node_invalid,
			os_arch, os_build, os_major, os_minor, os_name, os_platform,
			hardware_vendor, hw_model, hw_version,
			hw_cpu_logical_core, hw_cpu_type, hw_physical_memory,
			hostname, agent_version, enrolled_on, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	OpUpdateNodeKey: `UPDATE nodes SET node_key = ? WHERE host_identifier = ?`,

	OpTouchNode: `UPDATE nodes SET last_seen = ? WHERE host_identifier = ?`,

	OpValidateNode: `SELECT id, host_identifier, node_key, node_invalid,
			os_arch, os_build, os_major, os_minor, os_name, os_platform,
			hardware_vendor, hw_model, hw_version,
			hw_cpu_logical_core, hw_cpu_type, hw_physical_memory,
			hostname, agent_version, enrolled_on, last_seen
		FROM nodes WHERE host_identifier = ?`,

	OpValidateNodeKey: `SELECT COUNT(*) FROM nodes WHERE node_key = ?`,

	OpListNodes: `SELECT id, host_identifier, hostname, os_name, agent_version
		FROM nodes WHERE last_seen > ? AND id > ?
		ORDER BY id ASC LIMIT ?`,

	OpValidateController: `SELECT id, controller_identifier, controller_key, created_on
		FROM controllers WHERE controller_identifier = ?`,

	OpAddController: `INSERT INTO controllers (controller_identifier, controller_key, created_on)
		VALUES (?, ?, ?) RETURNING id`,

	OpSetCommand: `INSERT INTO command_queue (host_identifier, command, queue_time, sent)
		VALUES (?, ?, ?, FALSE) RETURNING id`,

	OpGetCommand: `SELECT id, host_identifier, command, queue_time
		FROM command_queue
		WHERE host_identifier = ? AND (sent = FALSE OR sent IS NULL)
		ORDER BY id ASC LIMIT 1`,

	// The sent guard turns the update into a compare-and-set: a row claimed
	// by a concurrent poller reports zero rows affected.
	OpMarkCommandAsSent: `UPDATE command_queue SET sent = TRUE, sent_time = ?
		WHERE id = ? AND (sent = FALSE OR sent IS NULL)`,

	OpSetResponse: `INSERT INTO response_queue (host_identifier, command_id, timestamp, response)
		VALUES (?, ?, ?, ?)`,

	OpGetResponse: `SELECT host_identifier, command_id, timestamp, response
		FROM response_queue WHERE host_identifier = ? AND command_id = ?`,
}
