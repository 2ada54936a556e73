package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/normalize"
)

func rtt(v float64) *float64 { return &v }

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "measurement_1.csv"), zap.NewNop().Sugar())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore(t)

	rows := []normalize.Row{
		{ProbeID: 101, RoundTime: 1700000000, HopIndex: 1, PacketIndex: 1, ReplyAddr: "192.0.2.1", RTT: rtt(4.125)},
		{ProbeID: 101, RoundTime: 1700000000, HopIndex: 1, PacketIndex: 2},
		{ProbeID: 101, RoundTime: 1700000000, HopIndex: 2, PacketIndex: 1, ReplyAddr: "198.51.100.7", RTT: rtt(22.5)},
		{ProbeID: 202, RoundTime: 1700000300, HopIndex: 1, PacketIndex: 1},
	}

	require.NoError(t, store.Save(rows))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, rows, loaded, "round trip must preserve rows, nulls and order")

	// Null markers survive as nils, not zeros.
	assert.Nil(t, loaded[1].RTT)
	assert.Empty(t, loaded[1].ReplyAddr)
	require.NotNil(t, loaded[0].RTT)
	assert.Equal(t, 4.125, *loaded[0].RTT)
}

func TestSaveWritesHeaderAndNullMarkers(t *testing.T) {
	store := newStore(t)
	rows := []normalize.Row{
		{ProbeID: 7, RoundTime: 100, HopIndex: 1, PacketIndex: 1, ReplyAddr: "10.0.0.1", RTT: rtt(3)},
		{ProbeID: 7, RoundTime: 100, HopIndex: 2, PacketIndex: 1},
	}
	require.NoError(t, store.Save(rows))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "probe_id,round_time,hop_index,packet_index,reply_address,rtt", lines[0])
	assert.Equal(t, "7,100,2,1,,", lines[2], "unanswered slots serialize as empty fields")
}

func TestLoadMissingFile(t *testing.T) {
	store := newStore(t)
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadCorruptSnapshot(t *testing.T) {
	store := newStore(t)

	// Row 3 has the wrong column count.
	corrupt := "probe_id,round_time,hop_index,packet_index,reply_address,rtt\n" +
		"101,100,1,1,10.0.0.1,4.1\n" +
		"101,100,1\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(corrupt), 0o644))

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
	assert.Contains(t, err.Error(), "line 3", "the offending row must be named")
}

func TestLoadUnparseableNumericField(t *testing.T) {
	store := newStore(t)

	corrupt := "probe_id,round_time,hop_index,packet_index,reply_address,rtt\n" +
		"101,100,one,1,10.0.0.1,4.1\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(corrupt), 0o644))

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestEmptyTableRoundTrip(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(nil))
	assert.True(t, store.Exists())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
