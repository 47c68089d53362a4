package chain

import (
	"time"

	"github.com/kintsdev/chain/rules"
)

const employeeTable = "HR.Employee"

type employee struct {
	EmployeeKey  int64      `db:"EmployeeKey" norm:"primary_key,auto_increment"`
	FirstName    string     `db:"FirstName"`
	MiddleName   *string    `db:"MiddleName"`
	LastName     string     `db:"LastName"`
	CreatedByKey *int64     `db:"CreatedByKey"`
	UpdatedByKey *int64     `db:"UpdatedByKey"`
	CreatedDate  *time.Time `db:"CreatedDate"`
	UpdatedDate  *time.Time `db:"UpdatedDate"`
	DeletedFlag  bool       `db:"DeletedFlag"`
}

var employeeColumns = []string{
	"EmployeeKey", "FirstName", "MiddleName", "LastName", "CreatedByKey",
	"UpdatedByKey", "CreatedDate", "UpdatedDate", "DeletedFlag",
}

type appUser struct {
	EmployeeKey int64
	IsAdmin     bool
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func isAdmin(u any) bool {
	au, ok := u.(appUser)
	return ok && au.IsAdmin
}

// hrRules stamps the audit columns, soft deletes through DeletedFlag and hides
// MiddleName from non-admins on reads and updates.
func hrRules() *rules.Collection {
	return rules.NewCollection(
		rules.Must(rules.ApplyUserData("CreatedByKey", "EmployeeKey", rules.OperationInsert)),
		rules.Must(rules.ApplyUserData("UpdatedByKey", "EmployeeKey", rules.OperationInsertOrUpdate)),
		rules.Must(rules.ApplyDateTime("CreatedDate", rules.DateTimeUTC, rules.OperationInsert)).WithClock(clock),
		rules.Must(rules.ApplyDateTime("UpdatedDate", rules.DateTimeUTC, rules.OperationInsertOrUpdate)).WithClock(clock),
		rules.Must(rules.SoftDelete("DeletedFlag", true, rules.OperationSelectOrDelete)),
		rules.Must(rules.RestrictColumn(employeeTable, "MiddleName", rules.OperationSelect|rules.OperationUpdate, isAdmin)),
	)
}

func strPtr(s string) *string { return &s }
