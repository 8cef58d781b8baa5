package varpack

import "sync"

var decoderPool = &sync.Pool{
	New: func() any {
		return new(decoder)
	},
}
