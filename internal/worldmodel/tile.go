// Package worldmodel defines the static grid vocabulary shared by every
// other component: tiles, positions, and the dense/sparse grid that backs
// the authoritative game state.
package worldmodel

// TileKind tags the variant a Tile carries. One byte is enough to encode
// every tile the board supports.
type TileKind uint8

const (
	TileEmpty TileKind = iota
	TileIndestructible
	TileSoftCrate
	TilePowerUp
)

// PowerUpKind tags which power-up a TilePowerUp tile grants when collected.
type PowerUpKind uint8

const (
	PowerUpNone PowerUpKind = iota
	PowerUpBombUp
	PowerUpRangeUp
	PowerUpSpeedUp
	PowerUpKick
	PowerUpRemote
)

// Tile is a two-byte tagged variant over {Empty, IndestructibleWall,
// SoftCrate, PowerUp(kind)}.
type Tile struct {
	Kind    TileKind
	PowerUp PowerUpKind
}

// Passable reports whether an agent or bomb may occupy the tile.
func (t Tile) Passable() bool {
	return t.Kind == TileEmpty || t.Kind == TilePowerUp
}

// BlocksBlast reports whether the tile halts blast propagation (soft
// crates and indestructible walls do). It does not report whether the
// tile is consumed by the blast.
func (t Tile) BlocksBlast() bool {
	return t.Kind == TileIndestructible || t.Kind == TileSoftCrate
}

var (
	EmptyTile         = Tile{Kind: TileEmpty}
	IndestructibleWall = Tile{Kind: TileIndestructible}
	SoftCrate         = Tile{Kind: TileSoftCrate}
)

// PowerUpTile constructs a tile carrying the given power-up.
func PowerUpTile(kind PowerUpKind) Tile {
	return Tile{Kind: TilePowerUp, PowerUp: kind}
}
