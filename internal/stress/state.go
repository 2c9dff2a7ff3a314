package stress

import "github.com/sawpanic/cascadeengine/internal/rolling"

// symbolState holds the three rolling buffers for one symbol. It is
// created lazily on first snapshot, owned exclusively by the Engine,
// and never shared across goroutines without the Engine's own
// per-symbol partitioning (spec §5).
type symbolState struct {
	spreadBuf  *rolling.Stats
	zScoreBuf  *rolling.Stats
	oiBuf      *rolling.Stats
	lastTsMs   int64
	hasLastTs  bool
}

func newSymbolState(historyLength int) *symbolState {
	return &symbolState{
		spreadBuf: rolling.New(historyLength),
		zScoreBuf: rolling.New(historyLength),
		oiBuf:     rolling.New(historyLength),
	}
}
