package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRules(t *testing.T) {
	assert.True(t, InternalImportForbidden("cloudmock/internal/core"))
	assert.True(t, InternalImportForbidden("example.com/mod/internal/x"))
	assert.False(t, InternalImportForbidden("cloudmock/pkg/domain"))

	assert.True(t, DriverImportForbidden("modernc.org/sqlite"))
	assert.True(t, DriverImportForbidden("github.com/jackc/pgx/v5/stdlib"))
	assert.True(t, DriverImportForbidden("github.com/aws/aws-sdk-go-v2/service/s3"))
	assert.False(t, DriverImportForbidden("github.com/sirupsen/logrus"))

	rule := Exact("a/b", "c")
	assert.True(t, rule("c"))
	assert.False(t, rule("a/b/c"))
}

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	writeSource(t, dir, "x_test.go", "package tmp\nimport _ \"modernc.org/sqlite\"\n")
	AssertNoDirectImports(t, dir, DriverImportForbidden, "tests are not scanned")
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, _ ...any) { r.msg = format }

func TestViolationsAreReported(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "b.go", "package tmp\nimport _ \"modernc.org/sqlite\"\n")
	writeSource(t, dir, "a.go", "package tmp\nimport _ \"github.com/aws/aws-sdk-go-v2/aws\"\n")

	viols, err := importViolations(dir, DriverImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a.go imports github.com/aws/aws-sdk-go-v2/aws",
		"b.go imports modernc.org/sqlite",
	}, viols)

	rec := &recorder{}
	report(rec, "drivers", viols)
	assert.NotEmpty(t, rec.msg)
}
