package request

// SqlOp names one operation in the Sql* request family.
// These share the Request envelope (Kind == KindSql) and carry one of
// these as their payload, broadcast by the matching Sql job.
type SqlOp string

const (
	SqlCreateDb              SqlOp = "CreateDb"
	SqlDeleteDb              SqlOp = "DeleteDb"
	SqlEnableDb              SqlOp = "EnableDb"
	SqlDisableDb              SqlOp = "DisableDb"
	SqlGrantAccess            SqlOp = "GrantAccess"
	SqlCreateTable            SqlOp = "CreateTable"
	SqlCreateTables           SqlOp = "CreateTables"
	SqlDeleteTable            SqlOp = "DeleteTable"
	SqlRemoveTablePartitions  SqlOp = "RemoveTablePartitions"
	SqlRowStats               SqlOp = "RowStats"
)

// SqlPayload is the Sql-kind request's worker-bound instruction.
type SqlPayload struct {
	Op       SqlOp
	Database string
	// Tables lists the physical table names this operation applies to,
	// already expanded (prototype + <name>_<chunk> +
	// <name>FullOverlap_<chunk> + the dummy-chunk pair) and batched to
	// respect workerNumProcessingThreads.
	Tables []string
	// IgnoreNonPartitioned treats an already-departitioned table as
	// success for SqlRemoveTablePartitions.
	IgnoreNonPartitioned bool
}
