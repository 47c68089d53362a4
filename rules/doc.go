// Package rules implements audit rules: declarative policies evaluated around insert,
// update, delete and select operations.
//
// A Rule is an immutable tagged value; its Kind decides how it is evaluated:
//
//   - ApplyValue, ApplyDateTime, ApplyDateTimeOffset and ApplyUserData generate column values
//     (timestamps, user stamps, constants).
//   - SoftDelete turns deletes into updates of a marker column and hides marked rows from selects.
//   - RestrictColumn hides a column from reads or drops it from writes unless a predicate
//     on the current user holds.
//   - Validation rules check the argument object before any SQL is issued.
//
// Rules are grouped in a Collection, which is append-only and safe for concurrent use:
//
//	audit := rules.NewCollection(
//	    rules.Must(rules.ApplyDateTime("CreatedDate", rules.DateTimeUTC, rules.OperationInsert)),
//	    rules.Must(rules.ApplyUserData("CreatedByKey", "EmployeeKey", rules.OperationInsert)),
//	    rules.Must(rules.SoftDelete("DeletedFlag", true, rules.OperationSelectOrDelete)),
//	)
//
// The collection never performs I/O. Callers describe the target table with a Table and
// obtain evaluation plans (PrepareWrite, PrepareDelete, PlanSelect) that they turn into SQL.
package rules
