package text

import (
	"encoding/gob"
	"os"
)

// Checkpoint snapshots the textual form of a batch of functions between
// pipeline stages: a small gob-encoded struct written atomically to a
// path, used by the `check` subcommand's `--dump-after-*` regression
// harness to resume a batch run without recompiling everything already
// verified.
type Checkpoint struct {
	Sources       map[string]string // function name -> textual IR
	CompletedName string            // last function name fully checked
}

func init() {
	gob.Register(Checkpoint{})
}

// SaveCheckpoint writes ckpt to path.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(ckpt)
}

// LoadCheckpoint reads a Checkpoint previously written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}
