package encoding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_StringsStayStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"name": "alice", "tags": []string{"a", "b"}})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, Unmarshal(data, &out))

	_, isString := out["name"].(string)
	assert.True(t, isString, "expected string, got %T", out["name"])
}

func TestCompressed_Concurrent(t *testing.T) {
	type record struct {
		ID   string `msgpack:"id"`
		Seq  int    `msgpack:"seq"`
		Note string `msgpack:"note"`
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				in := record{ID: "node", Seq: id*1000 + j, Note: "payload payload payload"}
				data, err := MarshalCompressed(in)
				if err != nil {
					t.Errorf("MarshalCompressed failed: %v", err)
					return
				}
				var out record
				if err := UnmarshalCompressed(data, &out); err != nil {
					t.Errorf("UnmarshalCompressed failed: %v", err)
					return
				}
				if out != in {
					t.Errorf("mismatch: %+v != %+v", out, in)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestDecompress_RejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zstd frame"))
	assert.Error(t, err)
}

func TestDecompress_RejectsOversizedFrame(t *testing.T) {
	bomb, err := Compress(make([]byte, MaxDecodedSize+1))
	require.NoError(t, err)
	require.Less(t, len(bomb), 1<<20, "zeros compress to a small frame")

	_, err = Decompress(bomb)
	assert.Error(t, err)

	small, err := Compress([]byte("fits"))
	require.NoError(t, err)
	out, err := Decompress(small)
	require.NoError(t, err)
	assert.Equal(t, []byte("fits"), out)
}
