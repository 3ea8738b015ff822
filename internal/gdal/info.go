package gdal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CRSInspector reports the coordinate reference system of a raster file.
// An empty identity means the file has no determinable CRS.
type CRSInspector interface {
	CRS(ctx context.Context, path string) (string, error)
}

// Inspector also returns the full report, used to verify a written COG.
type Inspector interface {
	CRSInspector
	Inspect(ctx context.Context, path string) (Report, error)
}

// Report is the subset of `gdalinfo -json` output the converter reads.
type Report struct {
	Driver       string
	Width        int
	Height       int
	Bands        int
	WKT          string
	Tiled        bool
	HasOverviews bool
}

// CRS returns the report's CRS identity, or "" when it has none.
func (r Report) CRS() string { return CRSIdentity(r.WKT) }

type infoJSON struct {
	Driver           string `json:"driverShortName"`
	Size             []int  `json:"size"`
	CoordinateSystem *struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	Bands []struct {
		Block     []int             `json:"block"`
		Overviews []json.RawMessage `json:"overviews"`
	} `json:"bands"`
}

// ParseReport decodes gdalinfo's JSON output.
func ParseReport(data []byte) (Report, error) {
	var raw infoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, fmt.Errorf("parse gdalinfo output: %w", err)
	}
	r := Report{Driver: raw.Driver, Bands: len(raw.Bands)}
	if len(raw.Size) == 2 {
		r.Width, r.Height = raw.Size[0], raw.Size[1]
	}
	if raw.CoordinateSystem != nil {
		r.WKT = raw.CoordinateSystem.WKT
	}
	if len(raw.Bands) > 0 {
		b := raw.Bands[0]
		// Strip-organized files report full-width blocks.
		r.Tiled = len(b.Block) == 2 && b.Block[0] < r.Width
		r.HasOverviews = len(b.Overviews) > 0
	}
	return r, nil
}

// outerAuthority matches the authority clause closing a WKT1 or WKT2
// definition, e.g. ID["EPSG",4326]] or AUTHORITY["EPSG","4326"]].
var outerAuthority = regexp.MustCompile(`(?:ID|AUTHORITY)\["([^"]+)",\s*"?(\d+)"?\]\]\s*$`)

// CRSIdentity reduces a WKT definition to a comparable identity:
// "AUTH:CODE" for the outermost authority when present, otherwise the
// whitespace-normalized WKT. Empty input yields "".
func CRSIdentity(wkt string) string {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return ""
	}
	if m := outerAuthority.FindStringSubmatch(wkt); m != nil {
		return strings.ToUpper(m[1]) + ":" + m[2]
	}
	return strings.Join(strings.Fields(wkt), " ")
}

// Info runs gdalinfo -json.
type Info struct {
	Binary  string
	Timeout time.Duration
}

var _ Inspector = Info{}

// Inspect returns the parsed report for path.
func (i Info) Inspect(ctx context.Context, path string) (Report, error) {
	bin := i.Binary
	if bin == "" {
		bin = InfoBinary
	}
	var stdout bytes.Buffer
	if _, err := run(ctx, i.Timeout, bin, []string{"-json", path}, &stdout); err != nil {
		return Report{}, err
	}
	return ParseReport(stdout.Bytes())
}

func (i Info) CRS(ctx context.Context, path string) (string, error) {
	r, err := i.Inspect(ctx, path)
	if err != nil {
		return "", err
	}
	return r.CRS(), nil
}
