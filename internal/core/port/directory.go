package port

import "context"

// EmployeeRecord is the directory's view of an enterprise user.
type EmployeeRecord struct {
	NIK      string
	Name     string
	Email    string
	Phone    string
	Username string
}

// DirectoryClient resolves enterprise NIK identifiers against the external
// employee directory. Failures surface to the caller unretried, since they
// may reflect invalid enterprise credentials.
type DirectoryClient interface {
	FindByNIK(ctx context.Context, nik string) (*EmployeeRecord, error)
}
