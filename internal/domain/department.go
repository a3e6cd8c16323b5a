package domain

type DepartmentName string

// DefaultDepartment is the landing area for unauthenticated
// connections. It is never deleted.
const DefaultDepartment DepartmentName = "default"

func ValidateDepartmentName(name DepartmentName) error {
	if len(name) == 0 {
		return ErrDeptNameEmpty
	}
	if len(name) > MaxDeptNameLen {
		return ErrDeptNameTooLong
	}
	return nil
}
