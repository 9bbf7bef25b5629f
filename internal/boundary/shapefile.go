// Package boundary loads geographic boundaries from TIGER/Line shapefiles
// and serves them keyed by GEOID. Polygons are opaque to the pipeline; they
// are attached to observations and carried through unchanged.
package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Index holds boundary polygons keyed by geography id.
type Index struct {
	byGEOID map[string]geom.T
}

// LoadShapefile reads a TIGER/Line shapefile, converting each record's shape
// to a multipolygon keyed by its GEOID attribute. Records with a missing
// GEOID or an unconvertible shape are skipped.
func LoadShapefile(path string) (*Index, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	geoidIdx := -1
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, "GEOID") {
			geoidIdx = i
			break
		}
	}
	if geoidIdx < 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no GEOID field", path)
	}

	idx := &Index{byGEOID: make(map[string]geom.T)}
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		geoid := strings.TrimSpace(strings.TrimRight(reader.Attribute(geoidIdx), "\x00"))
		if geoid == "" {
			skipped++
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		g := polygonToMultiPolygon(poly)
		if g == nil {
			skipped++
			continue
		}

		idx.byGEOID[geoid] = g
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	zap.L().Info("boundary: shapefile loaded",
		zap.String("path", path),
		zap.Int("boundaries", len(idx.byGEOID)),
	)

	return idx, nil
}

// Boundary returns the polygon for a geography id, or nil when unknown.
func (x *Index) Boundary(geographyID string) geom.T {
	return x.byGEOID[geographyID]
}

// Len returns the number of indexed boundaries.
func (x *Index) Len() int {
	return len(x.byGEOID)
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// with SRID 4326.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
