package core

const OverlayTileSize = 64

// Overlay blits buffers to the screen as a row of square tiles, read-only.
type Overlay struct {
	TileSize int
}

// TileRect is the screen rectangle of tile i.
func (o Overlay) TileRect(i int) Rect {
	size := o.TileSize
	if size <= 0 {
		size = OverlayTileSize
	}
	return Rect{X: i * size, Y: 0, W: size, H: size}
}

// Draw draws targets[i] into tile i. Missing or released targets leave their
// tile empty; a missing program draws nothing. It returns the number of tiles drawn.
func (o Overlay) Draw(dev Device, prog Program, targets ...Target) (int, error) {
	if !alive(prog) {
		return 0, nil
	}
	drawn := 0
	for i, t := range targets {
		if !alive(t) {
			continue
		}
		if err := dev.DrawTexture(o.TileRect(i), t, prog); err != nil {
			return drawn, err
		}
		drawn++
	}
	return drawn, nil
}
