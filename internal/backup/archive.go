package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"erpcore/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveVersion is written into every new archive.
const ArchiveVersion = 1

// MaxDocumentSize bounds the decompressed JSON document of an archive.
const MaxDocumentSize = 512 << 20

// Format is the container an archive document is stored in.
type Format string

const (
	FormatZip  Format = "zip"
	FormatZstd Format = "zstd"
)

// Extension returns the file suffix for f.
func (f Format) Extension() string {
	if f == FormatZstd {
		return ".json.zst"
	}
	return ".zip"
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatZstd {
		return "application/zstd"
	}
	return "application/zip"
}

// ParseFormat accepts "zip", "zstd" or "" (zip).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatZip:
		return FormatZip, nil
	case FormatZstd:
		return FormatZstd, nil
	}
	return "", fmt.Errorf("unknown backup format %q", s)
}

// FormatOf returns the format a file name was written in.
func FormatOf(filename string) (Format, error) {
	for _, f := range []Format{FormatZstd, FormatZip} {
		if strings.HasSuffix(filename, f.Extension()) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
}

// Archive is the JSON document holding one tenant's data.
type Archive struct {
	Company        *model.Company        `json:"company" validate:"required"`
	Employees      []model.Employee      `json:"employees" validate:"dive"`
	Customers      []model.Customer      `json:"customers" validate:"dive"`
	Suppliers      []model.Supplier      `json:"suppliers" validate:"dive"`
	Products       []model.Product       `json:"products" validate:"dive"`
	Services       []model.Service       `json:"services" validate:"dive"`
	Categories     []model.Category      `json:"categories" validate:"dive"`
	Sales          []model.Sale          `json:"sales" validate:"dive"`
	ServiceOrders  []model.ServiceOrder  `json:"serviceOrders" validate:"dive"`
	ShippingOrders []model.ShippingOrder `json:"shippingOrders" validate:"dive"`
	GeneratedAt    time.Time             `json:"generatedAt,omitzero"`
	Version        int                   `json:"version,omitempty"`
}

// Counts returns the number of rows per table.
func (a *Archive) Counts() map[string]int {
	return map[string]int{
		model.TableEmployees:      len(a.Employees),
		model.TableCustomers:      len(a.Customers),
		model.TableSuppliers:      len(a.Suppliers),
		model.TableCategories:     len(a.Categories),
		model.TableProducts:       len(a.Products),
		model.TableServices:       len(a.Services),
		model.TableSales:          len(a.Sales),
		model.TableServiceOrders:  len(a.ServiceOrders),
		model.TableShippingOrders: len(a.ShippingOrders),
	}
}

// companyIDs lists every row's owner so a single check covers all tables.
func (a *Archive) companyIDs() map[string][]uuid.UUID {
	ids := make(map[string][]uuid.UUID)
	add := func(table string, id uuid.UUID) { ids[table] = append(ids[table], id) }
	for _, r := range a.Employees {
		add(model.TableEmployees, r.CompanyID)
	}
	for _, r := range a.Customers {
		add(model.TableCustomers, r.CompanyID)
	}
	for _, r := range a.Suppliers {
		add(model.TableSuppliers, r.CompanyID)
	}
	for _, r := range a.Categories {
		add(model.TableCategories, r.CompanyID)
	}
	for _, r := range a.Products {
		add(model.TableProducts, r.CompanyID)
	}
	for _, r := range a.Services {
		add(model.TableServices, r.CompanyID)
	}
	for _, r := range a.Sales {
		add(model.TableSales, r.CompanyID)
	}
	for _, r := range a.ServiceOrders {
		add(model.TableServiceOrders, r.CompanyID)
	}
	for _, r := range a.ShippingOrders {
		add(model.TableShippingOrders, r.CompanyID)
	}
	return ids
}

var nameSlug = regexp.MustCompile(`[\s/\\]+`)

// EntryName is the name of the JSON document inside the container:
// backup_<company name lowercased, whitespace as _>_<UTC timestamp>.json.
func EntryName(companyName string, at time.Time) string {
	slug := nameSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(companyName)), "_")
	if slug == "" {
		slug = "company"
	}
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	return "backup_" + slug + "_" + ts + ".json"
}

// Filename is the archive file name for an entry stored in format f.
func Filename(entry string, f Format) string {
	return strings.TrimSuffix(entry, ".json") + f.Extension()
}

// Encode writes a as indented JSON inside the container for f.
func Encode(a *Archive, entry string, f Format) ([]byte, error) {
	doc, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive: %w", err)
	}

	switch f {
	case FormatZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		out := enc.EncodeAll(doc, nil)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to close zstd encoder: %w", err)
		}
		return out, nil
	default:
		return zipDocument(doc, entry, a.GeneratedAt)
	}
}

func zipDocument(doc []byte, entry string, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return nil, fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	zipMagic  = []byte("PK\x03\x04")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode extracts and validates the archive document from data, which may be a zip
// container, a zstd stream or raw JSON. Every failure wraps ErrCorruptArchive.
func Decode(data []byte) (*Archive, error) {
	doc, err := extract(data)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	var a Archive
	if err := dec.Decode(&a); err != nil {
		return nil, corrupt("invalid document: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, corrupt("unexpected data after document")
	}

	if err := validate.Struct(&a); err != nil {
		return nil, corrupt("invalid rows: %v", err)
	}
	for table, owners := range a.companyIDs() {
		for _, owner := range owners {
			if owner != a.Company.ID {
				return nil, corrupt("%s row owned by %s, archive company is %s", table, owner, a.Company.ID)
			}
		}
	}
	return &a, nil
}

func extract(data []byte) ([]byte, error) {
	switch {
	case len(bytes.TrimSpace(data)) == 0:
		return nil, corrupt("empty file")
	case bytes.HasPrefix(data, zipMagic):
		return unzipDocument(data)
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDocumentSize))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		doc, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, corrupt("invalid zstd stream: %v", err)
		}
		return doc, nil
	default:
		if len(data) > MaxDocumentSize {
			return nil, corrupt("document exceeds %d bytes", MaxDocumentSize)
		}
		return data, nil
	}
}

func unzipDocument(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt("invalid zip container: %v", err)
	}

	var entry *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if entry != nil {
			return nil, corrupt("zip container holds more than one file")
		}
		entry = f
	}
	if entry == nil {
		return nil, corrupt("zip container is empty")
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, corrupt("cannot open %s: %v", entry.Name, err)
	}
	defer rc.Close()

	doc, err := io.ReadAll(io.LimitReader(rc, MaxDocumentSize+1))
	if err != nil {
		return nil, corrupt("cannot read %s: %v", entry.Name, err)
	}
	if len(doc) > MaxDocumentSize {
		return nil, corrupt("document exceeds %d bytes", MaxDocumentSize)
	}
	return doc, nil
}
