package backup

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"erpcore/internal/model"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryName(t *testing.T) {
	at := time.Date(2023, 11, 2, 8, 30, 0, 5000000, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "backup_padaria_do_zé_2023-11-02T11-30-00-005Z.json", EntryName("  Padaria  do Zé ", at))
	assert.Equal(t, "backup_a_b_2023-11-02T11-30-00-005Z.json", EntryName("A/B", at))
	assert.Equal(t, "backup_company_2023-11-02T11-30-00-005Z.json", EntryName("", at))

	entry := EntryName("Acme", at)
	assert.Equal(t, "backup_acme_2023-11-02T11-30-00-005Z.zip", Filename(entry, FormatZip))
	assert.Equal(t, "backup_acme_2023-11-02T11-30-00-005Z.json.zst", Filename(entry, FormatZstd))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatZip, f)
	f, err = ParseFormat(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, FormatZstd, f)
	_, err = ParseFormat("rar")
	require.Error(t, err)

	f, err = FormatOf("backup_acme_2023-11-02T11-30-00-005Z.json.zst")
	require.NoError(t, err)
	assert.Equal(t, FormatZstd, f)
	f, err = FormatOf("backup_acme.zip")
	require.NoError(t, err)
	assert.Equal(t, FormatZip, f)
	_, err = FormatOf("backup_acme.tar")
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func sampleArchive(tenant uuid.UUID) *Archive {
	return &Archive{
		Company:   &model.Company{ID: tenant, Name: "Acme"},
		Customers: []model.Customer{{ID: uuid.New(), CompanyID: tenant, Name: "Ana"}},
	}
}

func TestEncodeZipHasSingleEntry(t *testing.T) {
	tenant := uuid.New()
	data, err := Encode(sampleArchive(tenant), "backup_acme.json", FormatZip)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "backup_acme.json", zr.File[0].Name)
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
}

func TestDecodeAcceptsRawJSON(t *testing.T) {
	tenant := uuid.New()
	raw, err := json.Marshal(sampleArchive(tenant))
	require.NoError(t, err)

	a, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, tenant, a.Company.ID)
	require.Len(t, a.Customers, 1)
	assert.Nil(t, a.Products)
}

func TestDecodeRejects(t *testing.T) {
	tenant := uuid.New()
	foreign := sampleArchive(tenant)
	foreign.Customers[0].CompanyID = uuid.New()
	foreignJSON, err := json.Marshal(foreign)
	require.NoError(t, err)

	nameless := sampleArchive(tenant)
	nameless.Customers[0].Name = ""
	namelessJSON, err := json.Marshal(nameless)
	require.NoError(t, err)

	var twoEntries bytes.Buffer
	zw := zip.NewWriter(&twoEntries)
	for _, name := range []string{"a.json", "b.json"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("{}"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var emptyZip bytes.Buffer
	require.NoError(t, zip.NewWriter(&emptyZip).Close())

	tests := map[string][]byte{
		"unknown field":       []byte(`{"company":{"id":"` + tenant.String() + `","name":"Acme"},"invoices":[]}`),
		"missing company":     []byte(`{"customers":[]}`),
		"company without id":  []byte(`{"company":{"name":"Acme"}}`),
		"row of other tenant": foreignJSON,
		"row without name":    namelessJSON,
		"trailing data":       []byte(`{"company":{"id":"` + tenant.String() + `","name":"Acme"}} {}`),
		"two zip entries":     twoEntries.Bytes(),
		"empty zip":           emptyZip.Bytes(),
		"json array":          []byte(`[]`),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}
