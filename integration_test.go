package main

import (
	"context"
	"math"
	"math/rand"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/per"
	"github.com/cartridge/prioreplay/internal/replaypb"
	"github.com/cartridge/prioreplay/internal/service"
	"github.com/cartridge/prioreplay/internal/storage"
)

func startReplay(t *testing.T, capacity int) replaypb.ReplayClient {
	t.Helper()

	logger := zerolog.Nop()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	backend, err := storage.NewMemoryBackend(capacity, collector, logger, per.WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	server := grpc.NewServer(grpc.UnaryInterceptor(service.LoggingInterceptor(logger)))
	replaypb.RegisterReplayServer(server, service.NewReplayService(backend, collector, logger))

	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
		backend.Close()
	})

	return replaypb.NewReplayClient(conn)
}

// TestReplayServiceIntegration runs a store/sample/update training loop over gRPC
func TestReplayServiceIntegration(t *testing.T) {
	client := startReplay(t, 4)
	ctx := context.Background()

	// TicTacToe transitions: 11 byte state (9 board + current_player + winner)
	transitions := []*replaypb.Transition{
		{
			EnvId:     "tictactoe",
			EpisodeId: "episode-1",
			State:     []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0},
			Action:    []byte{4},
			NextState: []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 2, 0},
		},
		{
			EnvId:      "tictactoe",
			EpisodeId:  "episode-1",
			State:      []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 2, 0},
			Action:     []byte{0},
			NextState:  []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
			StepNumber: 1,
		},
		{
			EnvId:      "tictactoe",
			EpisodeId:  "episode-1",
			State:      []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
			Action:     []byte{8},
			NextState:  []byte{2, 0, 0, 0, 1, 0, 0, 0, 1, 2, 0},
			StepNumber: 2,
		},
		{
			EnvId:      "tictactoe",
			EpisodeId:  "episode-1",
			State:      []byte{2, 0, 0, 0, 1, 0, 0, 0, 1, 2, 0},
			Action:     []byte{2},
			NextState:  []byte{2, 0, 2, 0, 1, 0, 0, 0, 1, 1, 0},
			StepNumber: 3,
			Reward:     -1,
			Done:       true,
		},
	}

	t.Run("StoreBatch", func(t *testing.T) {
		resp, err := client.StoreBatch(ctx, &replaypb.StoreBatchRequest{Transitions: transitions})
		require.NoError(t, err)
		assert.Equal(t, uint32(4), resp.StoredCount)
		assert.Equal(t, uint32(0), resp.FailedCount)
		assert.Len(t, resp.TransitionIds, 4)
	})

	t.Run("GetStats", func(t *testing.T) {
		resp, err := client.GetStats(ctx, &replaypb.GetStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, uint64(4), resp.Size)
		assert.Equal(t, 4.0, resp.TotalPriority)
		assert.Equal(t, uint64(4), resp.TransitionsByEnv["tictactoe"])
		assert.Greater(t, resp.StorageBytes, uint64(0))
	})

	var sampled *replaypb.SampleResponse
	t.Run("Sample", func(t *testing.T) {
		resp, err := client.Sample(ctx, &replaypb.SampleRequest{BatchSize: 2})
		require.NoError(t, err)
		require.Len(t, resp.Transitions, 2)
		require.Len(t, resp.TreeIndices, 2)
		assert.Equal(t, []float64{1, 1}, resp.Weights)
		assert.InDelta(t, 0.401, resp.Beta, 1e-12)
		for i, tr := range resp.Transitions {
			assert.Equal(t, "tictactoe", tr.EnvId)
			assert.Len(t, tr.State, 11)
			assert.Equal(t, uint32(resp.TreeIndices[i]-3), tr.StepNumber)
		}
		sampled = resp
	})

	t.Run("UpdatePriorities", func(t *testing.T) {
		require.NotNil(t, sampled)
		resp, err := client.UpdatePriorities(ctx, &replaypb.UpdatePrioritiesRequest{
			TreeIndices: sampled.TreeIndices,
			AbsErrors:   []float64{2.0, 2.0},
		})
		require.NoError(t, err)
		assert.Equal(t, uint32(2), resp.UpdatedCount)

		stats, err := client.GetStats(ctx, &replaypb.GetStatsRequest{})
		require.NoError(t, err)
		assert.InDelta(t, 2+2*math.Pow(1.01, 0.6), stats.TotalPriority, 1e-9)
		assert.InDelta(t, math.Pow(1.01, 0.6), stats.MaxPriority, 1e-12)
	})

	t.Run("Eviction", func(t *testing.T) {
		resp, err := client.StoreTransition(ctx, &replaypb.StoreTransitionRequest{
			Transition: &replaypb.Transition{EnvId: "gridworld", StepNumber: 10},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.TransitionId)

		stats, err := client.GetStats(ctx, &replaypb.GetStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, uint64(4), stats.Size)
		assert.Equal(t, uint64(1), stats.Evicted)
		assert.Equal(t, uint64(3), stats.TransitionsByEnv["tictactoe"])
		assert.Equal(t, uint64(1), stats.TransitionsByEnv["gridworld"])
	})
}

func TestReplayServiceErrors(t *testing.T) {
	client := startReplay(t, 2)
	ctx := context.Background()

	_, err := client.Sample(ctx, &replaypb.SampleRequest{BatchSize: 1})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.StoreTransition(ctx, &replaypb.StoreTransitionRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.StoreTransition(ctx, &replaypb.StoreTransitionRequest{Transition: &replaypb.Transition{}})
	require.NoError(t, err)

	_, err = client.Sample(ctx, &replaypb.SampleRequest{BatchSize: 3})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.UpdatePriorities(ctx, &replaypb.UpdatePrioritiesRequest{
		TreeIndices: []int64{1},
		AbsErrors:   []float64{-0.5},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
