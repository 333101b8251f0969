package worldmodel

// ComputeBlastTiles returns the tiles a bomb of the given power reaches
// from origin: the origin itself, then up to power tiles outward along
// each of the four cardinal directions, stopping at (and including) the
// first tile that blocks the blast. An indestructible wall always blocks
// without being included. A soft crate or an occupied-by-agent tile is
// included and then blocks the arm, unless piercing is set, in which case
// the arm continues through both (an indestructible wall still stops a
// piercing blast — it is the one obstacle piercing never bypasses).
//
// Used by the Bomb Analyzer (chain-reaction resolution). The Influence
// Maps do not call it; they spread danger with their own BFS.
func ComputeBlastTiles(grid *Grid, origin Position, power int, piercing bool) []Position {
	tiles := []Position{origin}
	for _, dir := range [4]Dir{DirNorth, DirSouth, DirEast, DirWest} {
		p := origin
		for step := 0; step < power; step++ {
			p = p.Step(dir)
			if !p.InBounds(grid.N) {
				break
			}
			tile := grid.Tile(p)
			if tile.Kind == TileIndestructible {
				break
			}
			tiles = append(tiles, p)
			if !piercing && (tile.Kind == TileSoftCrate || hasAgent(grid, p)) {
				break
			}
		}
	}
	return tiles
}

func hasAgent(grid *Grid, p Position) bool {
	for _, o := range grid.Occupants(p) {
		if o.Kind == OccupantAgent {
			return true
		}
	}
	return false
}
