package auth

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"

	UserStatusActive = "active"
)

const (
	PermPayrollRead  = "payroll.read"
	PermPayrollWrite = "payroll.write"
	PermPayrollPay   = "payroll.pay"
	PermPayrollEdit  = "payroll.edit"
	PermAlertsRead   = "alerts.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollPay,
	PermPayrollEdit,
	PermAlertsRead,
}

// RolePermissions is the seeded grant table. The admin operates payroll; employees may
// only read their own history through the console.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollPay,
		PermPayrollEdit,
		PermAlertsRead,
	},
	RoleEmployee: {
		PermPayrollRead,
	},
}

type UserContext struct {
	UserID   string
	RoleID   string
	RoleName string
}
