package geo

import "math"

// CellSizeDeg is the edge of a proximity bucket in degrees (~11km at the equator).
const CellSizeDeg = 0.1

const (
	kmPerDegree = 111.0
	lonCells    = 3600 // 360 / CellSizeDeg
	latCells    = 1800 // 180 / CellSizeDeg
)

// Cell identifies a coarse grid bucket. X counts longitude cells eastwards
// from the antimeridian, Y counts latitude cells northwards from the south pole.
type Cell struct {
	X, Y int
}

func CellOf(p Point) Cell {
	return Cell{
		X: wrapX(int(math.Floor((normalizeLon(p.Longitude) + 180) / CellSizeDeg))),
		Y: clampY(int(math.Floor((p.Latitude + 90) / CellSizeDeg))),
	}
}

// CellsWithinRadius returns every cell that may contain a point within
// radiusKm of center. The set is conservative: it can include cells with no
// qualifying points, never the reverse. When the box spans every longitude
// (large radius or polar center) all is true, cells is nil and callers
// should fall back to a full scan.
func CellsWithinRadius(center Point, radiusKm float64) (cells []Cell, all bool) {
	if radiusKm < 0 {
		return nil, false
	}

	latRange := radiusKm / kmPerDegree
	minLat := center.Latitude - latRange
	maxLat := center.Latitude + latRange

	minY := clampY(int(math.Floor((minLat+90)/CellSizeDeg)) - 1)
	maxY := clampY(int(math.Floor((maxLat+90)/CellSizeDeg)) + 1)

	// widest longitude span happens at the latitude closest to a pole
	poleward := math.Max(math.Abs(minLat), math.Abs(maxLat))
	if poleward >= 89.9 {
		return nil, true
	}
	lonRange := radiusKm / (kmPerDegree * math.Cos(toRad(poleward)))
	if lonRange >= 180 {
		return nil, true
	}

	lon := normalizeLon(center.Longitude) + 180
	minX := int(math.Floor((lon-lonRange)/CellSizeDeg)) - 1
	maxX := int(math.Floor((lon+lonRange)/CellSizeDeg)) + 1
	if maxX-minX+1 >= lonCells {
		return nil, true
	}

	cells = make([]Cell, 0, (maxY-minY+1)*(maxX-minX+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			cells = append(cells, Cell{X: wrapX(x), Y: y})
		}
	}
	return cells, false
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

func wrapX(x int) int {
	x %= lonCells
	if x < 0 {
		x += lonCells
	}
	return x
}

func clampY(y int) int {
	if y < 0 {
		return 0
	}
	if y >= latCells {
		return latCells - 1
	}
	return y
}
