package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for storage and caching.
	DatabaseBackend string

	// Mode represents a travel mode attached to a section.
	Mode string

	// PipelineStage names one stage of the intake pipeline.
	PipelineStage string

	// RunStatus represents the outcome of a pipeline stage run.
	RunStatus string

	// TimeField selects the timestamp axis used by range queries.
	TimeField string
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// Travel modes. The empty mode means the section is unconfirmed.
const (
	ModeUnconfirmed Mode = ""
	ModeWalking     Mode = "walking"
	ModeRunning     Mode = "running"
	ModeCycling     Mode = "cycling"
	ModeTransport   Mode = "transport"
	ModeBus         Mode = "bus"
	ModeTrain       Mode = "train"
	ModeDrive       Mode = "drive"
	ModeMixed       Mode = "mixed"
	ModeAir         Mode = "air"
)

// Metadata keys with a structured payload.
const (
	KeyLocation       = "background/location"
	KeyMotionActivity = "background/motion_activity"
	KeyCleanedSection = "analysis/cleaned_section"
	KeyConfirmedTrip  = "analysis/confirmed_trip"
	KeyModeConfirm    = "manual/mode_confirm"
)

// Pipeline stages in execution order.
const (
	StageConfirmTrips PipelineStage = "CONFIRM_TRIPS"
	StageExport       PipelineStage = "EXPORT"
	StageScore        PipelineStage = "SCORE"
)

// Run statuses recorded for pipeline stage runs.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Timestamp axes for range queries.
const (
	TimeFieldData  TimeField = "data.ts"           // default
	TimeFieldWrite TimeField = "metadata.write_ts" // write order
)

// AllStages lists every pipeline stage in the order the runner executes them.
var AllStages = []PipelineStage{StageConfirmTrips, StageExport, StageScore}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidStages lists all valid pipeline stages.
var ValidStages = map[PipelineStage]struct{}{
	StageConfirmTrips: {},
	StageExport:       {},
	StageScore:        {},
}

// ValidTimeFields lists all valid range query axes.
var ValidTimeFields = map[TimeField]struct{}{
	TimeFieldData:  {},
	TimeFieldWrite: {},
}
