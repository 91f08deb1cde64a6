package block

import (
	"encoding/json"
	"testing"
)

// FuzzBlockUnmarshal checks that arbitrary JSON never panics Validate or
// Hash, even when it decodes into a structurally nonsensical block.
func FuzzBlockUnmarshal(f *testing.F) {
	f.Add([]byte(`{"header":{"index":0,"timestamp":1000,"previous_hash":"","nonce":0,"difficulty":4,"merkle_root":"0000000000000000000000000000000000000000000000000000000000000000"},"transactions":[]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"header":null}`))
	f.Add([]byte(`{"header":{"difficulty":18446744073709551615},"transactions":[{}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var blk Block
		if err := json.Unmarshal(data, &blk); err != nil {
			return
		}
		blk.Validate()
		if blk.Header != nil {
			blk.Hash()
		}
	})
}
