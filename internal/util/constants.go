package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 文件上传相关常量
const (
	MimeImage = "image/"
	MimePDF   = "application/pdf"
)

var (
	AllowedSolutionTypes = []string{MimeImage, MimePDF}
)

// 领域事件
const (
	EventSessionFinished  = "session.finished"
	EventSubmissionGraded = "submission.graded"
)
