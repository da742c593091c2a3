package sim

import "fmt"

// Config holds every simulation parameter. Consumed once at start,
// read-only afterwards.
type Config struct {
	NumSeeds    int
	NumLeechers int
	NumPieces   int
	PieceSize   int64 // bytes

	MaxTime float64 // simulation horizon

	UploadSpeed   float64 // bytes per time unit, per peer
	DownloadSpeed float64

	ChokeInterval      float64 // regular choke review period
	OptimisticInterval float64 // optimistic unchoke review period
	UnchokeSlots       int     // regular unchoke slot count
	EndgameFraction    float64 // missing/total ratio that enters endgame

	ControlLatency float64 // delivery delay for control messages

	Seed int64 // rng seed; identical seeds give identical runs
}

// DefaultConfig mirrors classic BitTorrent constants: 10-unit choke
// reviews, 30-unit optimistic reviews, 4 upload slots.
func DefaultConfig() Config {
	return Config{
		NumSeeds:           1,
		NumLeechers:        5,
		NumPieces:          10,
		PieceSize:          1 << 20,
		MaxTime:            1000,
		UploadSpeed:        1 << 19,
		DownloadSpeed:      1 << 20,
		ChokeInterval:      10,
		OptimisticInterval: 30,
		UnchokeSlots:       4,
		EndgameFraction:    0.1,
		ControlLatency:     1,
		Seed:               1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.NumSeeds < 1:
		return fmt.Errorf("config: need at least one seed, got %d", c.NumSeeds)
	case c.NumLeechers < 0:
		return fmt.Errorf("config: negative leecher count %d", c.NumLeechers)
	case c.NumPieces < 1:
		return fmt.Errorf("config: need at least one piece, got %d", c.NumPieces)
	case c.PieceSize < 1:
		return fmt.Errorf("config: piece size must be positive, got %d", c.PieceSize)
	case c.MaxTime <= 0:
		return fmt.Errorf("config: max time must be positive, got %v", c.MaxTime)
	case c.UploadSpeed <= 0 || c.DownloadSpeed <= 0:
		return fmt.Errorf("config: speeds must be positive, got up=%v down=%v", c.UploadSpeed, c.DownloadSpeed)
	case c.ChokeInterval <= 0 || c.OptimisticInterval <= 0:
		return fmt.Errorf("config: review intervals must be positive, got %v and %v", c.ChokeInterval, c.OptimisticInterval)
	case c.UnchokeSlots < 1:
		return fmt.Errorf("config: need at least one unchoke slot, got %d", c.UnchokeSlots)
	case c.EndgameFraction < 0 || c.EndgameFraction > 1:
		return fmt.Errorf("config: endgame fraction out of [0,1]: %v", c.EndgameFraction)
	case c.ControlLatency < 0:
		return fmt.Errorf("config: negative control latency %v", c.ControlLatency)
	}
	return nil
}

// TransferTime is the duration of one piece transfer, limited by the
// slower of the sender's upload and the receiver's download speed.
func (c Config) TransferTime(senderUp, receiverDown float64) float64 {
	speed := senderUp
	if receiverDown < speed {
		speed = receiverDown
	}
	return float64(c.PieceSize) / speed
}
