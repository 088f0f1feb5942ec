package serve

import (
	"testing"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBuckets(t *testing.T) {
	shards, err := parseBuckets("1=default, 20 = sessions")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 1, Name: "default"},
		{ShardID: 20, Name: "sessions"},
	}, shards)

	for _, invalid := range []string{"", "1", "x=default", "1=", "1=a=b"} {
		_, err := parseBuckets(invalid)
		assert.Error(t, err, invalid)
	}
}
