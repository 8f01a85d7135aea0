package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_JSON(t *testing.T) {
	out, err := execute(t, "layout", "posts", "--format", "json")
	require.NoError(t, err)

	var infos []StoreInfo
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &infos))
	require.Len(t, infos, 1)

	info := infos[0]
	assert.Equal(t, "PostStore", info.Store)
	assert.Equal(t, 100, info.Capacity)
	assert.Equal(t, 536, info.RecordSize)
	assert.Equal(t, 53620, info.StoreSize)
	assert.Len(t, info.Discriminator, 16)
	require.Len(t, info.Bookkeeping, 1)
	assert.Equal(t, "next_post_id", info.Bookkeeping[0].Name)

	require.Len(t, info.Record, 7)
	assert.Equal(t, FieldInfo{Name: "content", Kind: "string", Width: 284, MaxContent: 280}, info.Record[4])
	assert.Equal(t, FieldInfo{Name: "post_id", Kind: "u64", Width: 8}, info.Record[0])
}

func TestLayout_AllPrograms(t *testing.T) {
	out, err := execute(t, "layout")
	require.NoError(t, err)

	assert.Contains(t, out, "deepfake (ImageStore")
	assert.Contains(t, out, "originality (OriginalityStore")
	assert.Contains(t, out, "posts (PostStore")
	assert.Contains(t, out, "53,620 bytes")
	assert.Contains(t, out, "77,016 bytes")
	assert.Contains(t, out, "69,016 bytes")
	assert.Contains(t, out, "1,000 records of 77 bytes")
}

func TestLayout_Budget(t *testing.T) {
	_, err := execute(t, "layout", "--budget", "64KiB")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "deepfake")
	assert.Contains(t, err.Error(), "originality")
	assert.NotContains(t, err.Error(), "posts")

	_, err = execute(t, "layout", "--budget", "100KiB")
	require.NoError(t, err)

	_, err = execute(t, "layout", "--budget", "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLayout_UnknownProgram(t *testing.T) {
	_, err := execute(t, "layout", "tokens")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown program "tokens"`)
}
