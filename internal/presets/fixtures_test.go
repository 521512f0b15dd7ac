package presets_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/presets"
	"cloudmock/internal/response"
	"cloudmock/pkg/domain"
)

const zoneFixture = `
domains:
  - id: 5
    domain: example.test
    type: master
    soa_email: ops@example.test
    status: active
    tags: []
domain_records:
  - parent_id: 5
    value:
      type: A
      name: www
      target: 203.0.113.10
  - parent_id: 5
    value:
      type: MX
      target: mail.example.test
      priority: 10
quotas:
  - service: linode
    quota_name: Linode Instances
    quota_limit: 50
    resource_metric: instance
`

func TestFixturePopulatorSeedsParentsFirst(t *testing.T) {
	reg := builtin(t, presets.Options{Fixtures: map[string][]byte{"zone": []byte(zoneFixture)}})
	s := compose(t, reg, presets.Selection{Populators: []string{"fixtures:zone"}})

	var d domain.Domain
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/domains/5", &d))
	assert.Equal(t, "example.test", d.Domain)

	var records response.Page[domain.DomainRecord]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/domains/5/records", &records))
	assert.Equal(t, 2, records.Results)

	var quotas response.Page[domain.Quota]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/linode/quotas", &quotas))
	require.Equal(t, 1, quotas.Results)
	assert.Equal(t, 50, quotas.Data[0].QuotaLimit)
}

func TestFixtureRejectsUnknownKeys(t *testing.T) {
	_, err := presets.FixturePopulator("typo", []byte("linodez:\n  - label: web\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture typo")

	_, err = presets.Builtin(presets.Options{Fixtures: map[string][]byte{"bad": []byte("domains: [")}})
	assert.Error(t, err)
}

func TestLoadFixtureFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(zoneFixture), 0o600))

	files, err := presets.LoadFixtureFiles([]string{path})
	require.NoError(t, err)
	assert.Contains(t, files, "zone")

	_, err = presets.LoadFixtureFiles([]string{path, path})
	assert.Error(t, err)
	_, err = presets.LoadFixtureFiles([]string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}
