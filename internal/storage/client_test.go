package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	client, err := NewClient(Config{Endpoint: "localhost:9000", Access: "a", Secret: "b", Bucket: "exports"})
	require.NoError(t, err)
	assert.Equal(t, "exports", client.Bucket())
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Endpoint: "minio:9000"}.Enabled())
}

func TestExportKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "exports/board/2024/03/20240309T190506Z-board.xlsx", ExportKey("board", "board.xlsx", at))
	assert.Equal(t, "exports/ticket/2024/03/20240309T190506Z-x.pdf", ExportKey("ticket", "../../x.pdf", at))
}
