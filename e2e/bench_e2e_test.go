//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kintsdev/chain"
)

// Benchmarks below reuse the global ds from TestMain in e2e_test.go

func BenchmarkE2E_InsertEmployees(b *testing.B) {
	reset(b)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	repo := chain.NewRepository[Employee](as(7, "clerk"), employeeTable)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = repo.Insert(ctx, &Employee{FirstName: fmt.Sprintf("b%08d", i), LastName: "bench"})
	}
}

func BenchmarkE2E_FindPage(b *testing.B) {
	reset(b)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	repo := chain.NewRepository[Employee](as(7, "clerk"), employeeTable)
	for i := 0; i < 200; i++ {
		_ = repo.Insert(ctx, &Employee{FirstName: fmt.Sprintf("p%04d", i), LastName: "page"})
	}
	pr := chain.PageRequest{Limit: 25, Offset: 50, OrderBy: `"EmployeeKey" DESC`}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = repo.FindPage(ctx, pr)
	}
}

func BenchmarkE2E_SoftDelete(b *testing.B) {
	reset(b)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	repo := chain.NewRepository[Employee](as(7, "clerk"), employeeTable)
	e := &Employee{FirstName: "sd", LastName: "bench"}
	_ = repo.Insert(ctx, e)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = repo.Delete(ctx, e)
	}
}

func BenchmarkE2E_TxCommit(b *testing.B) {
	reset(b)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	user := as(7, "clerk")
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = user.WithTransaction(ctx, func(tx *chain.DataSource) error {
			return chain.NewRepository[Employee](tx, employeeTable).Insert(ctx, &Employee{FirstName: fmt.Sprintf("tx%08d", i), LastName: "bench"})
		})
	}
}

func BenchmarkE2E_RawQueries(b *testing.B) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	_, _ = ds.Raw("CREATE TABLE IF NOT EXISTS calc_test(a int, b int)").Exec(ctx)
	_, _ = ds.Raw("TRUNCATE calc_test").Exec(ctx)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ds.Raw("INSERT INTO calc_test(a,b) VALUES(?,?)", 7, 5).Exec(ctx)
		var res []map[string]any
		_ = ds.Raw("SELECT a + b AS s FROM calc_test").Find(ctx, &res)
	}
}
